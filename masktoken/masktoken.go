/*
Copyright 2022 The Flux authors

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

package masktoken

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Mask is written in place of every redacted secret.
const Mask = "*****"

// MaskSecrets redacts all the occurrences of the given secrets from s,
// replacing them with Mask. Empty secrets are ignored, and longer secrets
// take precedence over the secrets they contain.
// The secrets are expected to be valid UTF-8 strings.
// This can for example be used to print credentials or error messages
// without leaking session tokens.
func MaskSecrets(s string, secrets ...string) (string, error) {
	quoted := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		if !utf8.ValidString(secret) {
			return "", fmt.Errorf("secret is not a valid UTF-8 string")
		}
		quoted = append(quoted, regexp.QuoteMeta(secret))
	}
	if len(quoted) == 0 {
		return s, nil
	}

	slices.SortFunc(quoted, func(a, b string) int {
		return len(b) - len(a)
	})
	re, err := regexp.Compile(strings.Join(quoted, "|"))
	if err != nil {
		return "", err
	}
	return re.ReplaceAllLiteralString(s, Mask), nil
}
