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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3control"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fluxcd/pkg/s3accessgrants/accessgrants"
	"github.com/fluxcd/pkg/s3accessgrants/logger"
	"github.com/fluxcd/pkg/s3accessgrants/masktoken"
	"github.com/fluxcd/pkg/s3accessgrants/version"
)

var getCmd = &cobra.Command{
	Use:   "get PREFIX...",
	Short: "Get the credentials granting access to the given S3 prefixes",
	Long: `Get the credentials granting access to the given S3 prefixes, e.g. s3://bucket/foo.
The prefixes are requested in order through the same provider, so credentials
issued for a prefix are reused for the prefixes it contains.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	bindGetFlags(getCmd.Flags())
}

func bindGetFlags(flags *pflag.FlagSet) {
	flags.String("account-id", "", "The account owning the S3 Access Grants instance lookups.")
	flags.String("request-account-id", "", "The account the instance lookup of each request is sent to. Defaults to --account-id.")
	flags.String("region", "", "The AWS region. Defaults to the region of the shared AWS configuration.")
	flags.String("permission", string(accessgrants.PermissionRead), "The requested permission: READ, WRITE or READWRITE.")
	flags.Duration("duration", 0, "The lifetime requested for the issued credentials, between 15m and 12h.")
	flags.Int("expiration-percentage", accessgrants.DefaultExpirationPercentage,
		"The share of the credentials lifetime during which they are served from the cache.")
	flags.Int("cache-size", accessgrants.DefaultCredentialsCacheSize, "The maximum number of cached credentials.")
	flags.Bool("cache-access-denied", false, "Cache the access denied responses.")
	flags.Bool("resolve-bucket-region", false, "Send the S3 Access Grants requests to the region of the bucket.")
	flags.Bool("fallback", false, "Return the caller credentials when S3 Access Grants fails.")
	flags.Bool("show-secrets", false, "Print the secret access key and session token unmasked.")
	flags.Bool("print-metrics", false, "Print the cache metrics to stderr once done.")
}

type getConfig struct {
	accountID            string
	requestAccountID     string
	region               string
	permission           accessgrants.Permission
	duration             time.Duration
	expirationPercentage int
	cacheSize            int
	cacheAccessDenied    bool
	resolveBucketRegion  bool
	fallback             bool
	showSecrets          bool
	printMetrics         bool
}

func newGetConfig(v *viper.Viper) (*getConfig, error) {
	permission, err := accessgrants.ParsePermission(v.GetString("permission"))
	if err != nil {
		return nil, err
	}
	cfg := &getConfig{
		accountID:            v.GetString("account-id"),
		requestAccountID:     v.GetString("request-account-id"),
		region:               v.GetString("region"),
		permission:           permission,
		duration:             v.GetDuration("duration"),
		expirationPercentage: v.GetInt("expiration-percentage"),
		cacheSize:            v.GetInt("cache-size"),
		cacheAccessDenied:    v.GetBool("cache-access-denied"),
		resolveBucketRegion:  v.GetBool("resolve-bucket-region"),
		fallback:             v.GetBool("fallback"),
		showSecrets:          v.GetBool("show-secrets"),
		printMetrics:         v.GetBool("print-metrics"),
	}
	if cfg.accountID == "" {
		return nil, errors.New("--account-id or S3GRANTS_ACCOUNT_ID is required")
	}
	return cfg, nil
}

// providerOptions returns the options of the provider built for cfg.
func (c *getConfig) providerOptions(awsCfg aws.Config, reg prometheus.Registerer) []accessgrants.ProviderOption {
	opts := []accessgrants.ProviderOption{
		accessgrants.WithCacheOptions(accessgrants.WithMetricsRegisterer(reg)),
		accessgrants.WithCredentialsCacheOptions(
			accessgrants.WithMaxCacheSize(c.cacheSize),
			accessgrants.WithDuration(c.duration),
			accessgrants.WithExpirationPercentage(c.expirationPercentage),
		),
	}
	if c.cacheAccessDenied {
		opts = append(opts, accessgrants.WithAccessDeniedCache())
	}
	if c.resolveBucketRegion {
		opts = append(opts, accessgrants.WithBucketRegionResolver(s3.NewFromConfig(awsCfg)))
	}
	if c.fallback {
		opts = append(opts, accessgrants.WithFallbackCredentials(awsCfg.Credentials))
	}
	return opts
}

// grantOutput is printed for each requested prefix.
type grantOutput struct {
	Prefix          string    `json:"prefix"`
	Permission      string    `json:"permission"`
	AccessKeyID     string    `json:"accessKeyId,omitempty"`
	SecretAccessKey string    `json:"secretAccessKey,omitempty"`
	SessionToken    string    `json:"sessionToken,omitempty"`
	Source          string    `json:"source,omitempty"`
	Expiration      time.Time `json:"expiration,omitzero"`
	Error           string    `json:"error,omitempty"`
}

func runGet(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := newGetConfig(v)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(loggerOptions)
	if err != nil {
		return err
	}
	ctx := logr.NewContext(setupSignalHandler(), log)

	loadOpts := []func(*config.LoadOptions) error{config.WithAppID(version.AppID())}
	if cfg.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	callerCreds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve the caller credentials: %w", err)
	}
	identity := accessgrants.IdentityFromCredentials(callerCreds)

	reg := prometheus.NewRegistry()
	provider, err := accessgrants.NewCachedCredentialsProvider(cfg.accountID, s3control.NewFromConfig(awsCfg),
		cfg.providerOptions(awsCfg, reg)...)
	if err != nil {
		return err
	}
	defer provider.Close()

	secrets := []string{callerCreds.SecretAccessKey, callerCreds.SessionToken}
	var failed int
	for _, prefix := range args {
		out := grantOutput{Prefix: prefix, Permission: string(cfg.permission)}
		creds, err := provider.GetCredentials(ctx, accessgrants.Request{
			Identity:   identity,
			Permission: cfg.permission,
			Prefix:     prefix,
			AccountID:  cfg.requestAccountID,
		})
		if err != nil {
			failed++
			log.Error(err, "failed to get credentials", "prefix", prefix, "status", accessgrants.StatusCode(err))
			out.Error = err.Error()
		} else {
			out.AccessKeyID = creds.AccessKeyID
			out.SecretAccessKey = creds.SecretAccessKey
			out.SessionToken = creds.SessionToken
			out.Source = creds.Source
			out.Expiration = creds.Expires
			secrets = append(secrets, creds.SecretAccessKey, creds.SessionToken)
		}
		if err := printOutput(cmd.OutOrStdout(), out, cfg.showSecrets, secrets); err != nil {
			return err
		}
	}

	if cfg.printMetrics {
		if err := printMetrics(os.Stderr, reg); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to get credentials for %d of %d prefixes", failed, len(args))
	}
	return nil
}

func printOutput(w io.Writer, out grantOutput, showSecrets bool, secrets []string) error {
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	s := string(b)
	if !showSecrets {
		if s, err = masktoken.MaskSecrets(s, secrets...); err != nil {
			return fmt.Errorf("failed to mask secrets: %w", err)
		}
	}
	_, err = fmt.Fprintln(w, s)
	return err
}

func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
