/*
Copyright 2026 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package logger

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

const (
	flagLogEncoding = "log-encoding"
	flagLogLevel    = "log-level"
)

var levelStrings = map[string]zapcore.Level{
	// logr maps log.V(n) to the zap level -n, so V(2) is logged at the
	// custom level -2, `trace` below.
	"trace": zapcore.DebugLevel - 1,
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"error": zapcore.ErrorLevel,
}

// Verbosity levels to use with log.V(...), matching the zap levels above.
const (
	TraceLevel = 2
	DebugLevel = 1
	InfoLevel  = 0
)

var stackLevelStrings = map[string]zapcore.Level{
	"trace": zapcore.ErrorLevel,
	"debug": zapcore.ErrorLevel,
	"info":  zapcore.PanicLevel,
	"error": zapcore.PanicLevel,
}

// Options contains the configuration of the logger.
//
// The cache hits and misses of the S3 Access Grants caches are logged at
// the debug level:
//
//	var opts logger.Options
//	opts.BindFlags(cmd.PersistentFlags())
//	...
//	log, err := logger.NewLogger(opts)
//	// Handle any error.
//	ctx = logr.NewContext(ctx, log)
type Options struct {
	LogEncoding string
	LogLevel    string

	// Output is where the log lines are written. Defaults to stderr.
	Output io.Writer
}

// BindFlags binds the logger options to the given pflag.FlagSet.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.LogEncoding, flagLogEncoding, "console",
		"Log encoding format. Can be 'json' or 'console'.")
	fs.StringVar(&o.LogLevel, flagLogLevel, "info",
		"Log verbosity level. Can be one of 'trace', 'debug', 'info', 'error'.")
}

// Validate returns an error if the encoding or the level is unknown.
func (o *Options) Validate() error {
	switch o.LogEncoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("unsupported --%s '%s', must be one of 'json', 'console'", flagLogEncoding, o.LogEncoding)
	}
	if _, ok := levelStrings[o.LogLevel]; o.LogLevel != "" && !ok {
		return fmt.Errorf("unsupported --%s '%s', must be one of 'trace', 'debug', 'info', 'error'", flagLogLevel, o.LogLevel)
	}
	return nil
}

// NewLogger returns a zap backed logger configured with the given Options,
// with timestamps in the ISO8601 format.
func NewLogger(opts Options) (logr.Logger, error) {
	if err := opts.Validate(); err != nil {
		return logr.Discard(), err
	}

	zapOpts := zap.Options{
		EncoderConfigOptions: []zap.EncoderConfigOption{
			func(config *zapcore.EncoderConfig) {
				config.EncodeTime = zapcore.ISO8601TimeEncoder
			},
		},
		DestWriter: opts.Output,
	}

	if opts.LogEncoding == "json" {
		zap.JSONEncoder(zapOpts.EncoderConfigOptions...)(&zapOpts)
	} else {
		zap.ConsoleEncoder(zapOpts.EncoderConfigOptions...)(&zapOpts)
	}

	level := opts.LogLevel
	if level == "" {
		level = "info"
	}
	zapOpts.Level = levelStrings[level]
	zapOpts.StacktraceLevel = stackLevelStrings[level]

	return zap.New(zap.UseFlagOptions(&zapOpts)), nil
}
