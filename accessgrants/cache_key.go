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

package accessgrants

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Permission is the access mode requested for a prefix.
type Permission string

const (
	PermissionRead      Permission = "READ"
	PermissionWrite     Permission = "WRITE"
	PermissionReadWrite Permission = "READWRITE"
)

// ParsePermission returns the Permission named by s.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToUpper(strings.TrimSpace(s)))
	if !p.valid() {
		return "", &Error{Reason: ErrInvalidPermission, Err: fmt.Errorf("'%s' is not one of READ, WRITE, READWRITE", s)}
	}
	return p, nil
}

func (p Permission) valid() bool {
	switch p {
	case PermissionRead, PermissionWrite, PermissionReadWrite:
		return true
	}
	return false
}

// Identity is the identity of the caller requesting access. Requests to
// S3 Access Grants are signed with it.
type Identity struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// IdentityFromCredentials returns the Identity for the given AWS credentials.
func IdentityFromCredentials(creds aws.Credentials) Identity {
	return Identity{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}
}

func (i Identity) provider() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(i.AccessKeyID, i.SecretAccessKey, i.SessionToken)
}

// CacheKey identifies a cache slot by identity, permission and prefix.
// It's a comparable value: derived keys are copies and never alter the
// key they are derived from.
type CacheKey struct {
	identity   Identity
	permission Permission
	prefix     string
}

// NewCacheKey returns the CacheKey for the given identity, permission and prefix.
func NewCacheKey(identity Identity, permission Permission, prefix string) CacheKey {
	return CacheKey{
		identity:   identity,
		permission: permission,
		prefix:     prefix,
	}
}

// Identity returns the identity of the key.
func (k CacheKey) Identity() Identity {
	return k.identity
}

// Permission returns the permission of the key.
func (k CacheKey) Permission() Permission {
	return k.permission
}

// Prefix returns the S3 prefix of the key.
func (k CacheKey) Prefix() string {
	return k.prefix
}

// WithPermission returns a copy of the key with the given permission.
func (k CacheKey) WithPermission(permission Permission) CacheKey {
	k.permission = permission
	return k
}

// WithPrefix returns a copy of the key with the given prefix.
func (k CacheKey) WithPrefix(prefix string) CacheKey {
	k.prefix = prefix
	return k
}

// String returns the key of the cache slot. The parts are hashed so that
// the caller's secrets never show up in the cache index.
func (k CacheKey) String() string {
	return buildCacheKey(
		k.identity.AccessKeyID,
		k.identity.SecretAccessKey,
		k.identity.SessionToken,
		string(k.permission),
		k.prefix,
	)
}

func buildCacheKey(parts ...string) string {
	s := strings.Join(parts, "\n")
	hash := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", hash)
}
