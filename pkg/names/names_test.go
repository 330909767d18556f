// Copyright 2025 The Runr Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package names

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		maxLen int
		want   string
	}{
		{
			name:   "already normalized and short",
			base:   "billing-api",
			maxLen: 30,
			want:   "billing-api",
		},
		{
			name:   "upper case folds",
			base:   "Billing-API",
			maxLen: 30,
			want:   "billing-api",
		},
		{
			name:   "non-alphanumeric runs collapse to one hyphen",
			base:   "billing__api..v2",
			maxLen: 30,
			want:   "billing-api-v2",
		},
		{
			name:   "leading and trailing separators trimmed",
			base:   "--billing--",
			maxLen: 30,
			want:   "billing",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Derive(tc.base, tc.maxLen))
		})
	}
}

func TestDeriveTruncation(t *testing.T) {
	base := strings.Repeat("verylongsegment-", 5)
	got := Derive(base, 24)
	require.LessOrEqual(t, len(got), 24)
	// Truncated names carry a content hash so the result is still a
	// function of the full input.
	assert.Regexp(t, `-[0-9a-f]{6}$`, got)
	assert.Equal(t, got, Derive(base, 24))

	other := Derive(base+"x", 24)
	assert.NotEqual(t, got, other, "same prefix, different input must derive distinct names")
}

func TestDeriveEmptyInput(t *testing.T) {
	got := Derive("///", 30)
	require.NotEmpty(t, got)
	assert.Regexp(t, `^n[0-9a-f]{6}$`, got)
}

func TestServiceAccountID(t *testing.T) {
	tests := []struct {
		name    string
		service string
	}{
		{name: "plain service name", service: "billing-api"},
		{name: "long service name", service: strings.Repeat("billing-api-", 6)},
		{name: "digit-leading name", service: "1billing"},
		{name: "short name", service: "db"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id := ServiceAccountID(tc.service)
			require.GreaterOrEqual(t, len(id), ServiceAccountIDMinLen)
			require.LessOrEqual(t, len(id), ServiceAccountIDMaxLen)
			assert.Regexp(t, `^[a-z]`, id, "account IDs must start with a letter")
			assert.Equal(t, id, ServiceAccountID(tc.service), "derivation must be stable")
		})
	}
}

func TestServiceAccountEmail(t *testing.T) {
	assert.Equal(t,
		"billing-api@acme-prod.iam.gserviceaccount.com",
		ServiceAccountEmail("billing-api", "acme-prod"))
}

func TestVolumeName(t *testing.T) {
	a := VolumeName("/etc/secrets/db")
	b := VolumeName("/etc/secrets/api")
	assert.Equal(t, "etc-secrets-db-04ca28", a)
	assert.Equal(t, "etc-secrets-api-7f4c9b", b)
	assert.Equal(t, a, VolumeName("/etc/secrets/db"), "derivation must be stable")
	assert.LessOrEqual(t, len(VolumeName("/"+strings.Repeat("deep/path/", 12))), VolumeNameMaxLen)
}

// Normalization merges separator runs, so differently punctuated paths
// can share a normalized form. The appended path hash must still keep
// their volume names apart.
func TestVolumeNameDistinguishesNormalizedCollisions(t *testing.T) {
	pairs := [][2]string{
		{"/etc/secrets/x", "/etc.secrets/x"},
		{"/etc/secrets/x", "/etc/secrets/x/"},
		{"/var/run-data", "/var/run/data"},
	}
	for _, pair := range pairs {
		a, b := VolumeName(pair[0]), VolumeName(pair[1])
		assert.NotEqual(t, a, b, "paths %q and %q", pair[0], pair[1])
	}
}
