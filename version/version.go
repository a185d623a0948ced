/*
Copyright 2020 The Flux authors

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

package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is the version of the s3grants binary, set at build time with
// -ldflags "-X github.com/fluxcd/pkg/s3accessgrants/version.Version=v1.2.3".
var Version = "v0.0.0-dev"

// appName identifies the binary in the AWS SDK user agent.
const appName = "s3grants"

// ParseVersion parses a version string and returns a semver.Version object.
// The validation is looser than the official semver spec, allowing for
// a 'v' prefix and 0-prefixed numbers in the major, minor, and patch segments
// (e.g., v2025.02.03-rc.1 is considered valid).
func ParseVersion(v string) (*semver.Version, error) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) != 3 {
		return nil, semver.ErrInvalidSemVer
	}

	return semver.NewVersion(v)
}

// Current returns the parsed build Version.
func Current() (*semver.Version, error) {
	v, err := ParseVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid build version '%s': %w", Version, err)
	}
	return v, nil
}

// AppID returns the application id sent by the AWS SDK in the user agent
// of every request, e.g. s3grants/1.2.3. The prerelease and metadata parts
// of the version are dropped.
func AppID() string {
	v, err := Current()
	if err != nil {
		return appName
	}
	return fmt.Sprintf("%s/%d.%d.%d", appName, v.Major(), v.Minor(), v.Patch())
}
