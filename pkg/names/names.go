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

// Package names derives stable platform identifiers from human-chosen
// base names. Every function here is a pure function of its inputs:
// the same input always produces the same output, across processes and
// reconciliation passes. Regenerating a different identifier on each
// pass would force spurious resource replacement downstream.
package names

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// hashLength is the number of hex characters appended when a name
	// has to be truncated to fit a length budget.
	hashLength = 6

	// ServiceAccountIDMinLen and ServiceAccountIDMaxLen are the platform
	// bounds for service account IDs.
	ServiceAccountIDMinLen = 6
	ServiceAccountIDMaxLen = 30

	// VolumeNameMaxLen bounds generated secret volume names.
	VolumeNameMaxLen = 63
)

// Derive normalizes base to lower-case with non-alphanumeric runs
// collapsed to a single hyphen, and fits it into maxLen characters.
// When truncation is required, a short content hash of the original,
// untruncated input is appended so that two different inputs sharing
// the same truncated prefix still derive distinct identifiers.
func Derive(base string, maxLen int) string {
	name := normalize(base)
	if name == "" {
		name = "n" + shortHash(base)
	}
	if len(name) <= maxLen {
		return name
	}

	keep := maxLen - hashLength - 1
	if keep < 1 {
		keep = 1
	}
	prefix := strings.TrimRight(name[:keep], "-")
	return prefix + "-" + shortHash(base)
}

// ServiceAccountID derives a platform-valid service account ID from a
// service name. The result starts with a letter and fits the platform
// length bounds.
func ServiceAccountID(serviceName string) string {
	id := Derive(serviceName, ServiceAccountIDMaxLen)
	if id[0] < 'a' || id[0] > 'z' {
		id = Derive("sa-"+serviceName, ServiceAccountIDMaxLen)
	}
	if len(id) < ServiceAccountIDMinLen {
		id = id + "-" + shortHash(serviceName)
	}
	return id
}

// ServiceAccountEmail returns the resolved address for a service
// account created under the given project.
func ServiceAccountEmail(accountID, project string) string {
	return fmt.Sprintf("%s@%s.iam.gserviceaccount.com", accountID, project)
}

// VolumeName derives a stable volume name from a mount path. The
// normalized path alone is ambiguous ("/etc/secrets/x" and
// "/etc.secrets/x" normalize identically), so the name always carries
// a short hash of the full mount path to keep distinct paths distinct.
func VolumeName(mountPath string) string {
	base := Derive(strings.TrimPrefix(mountPath, "/"), VolumeNameMaxLen-hashLength-1)
	return base + "-" + shortHash(mountPath)
}

// normalize lower-cases the input and collapses every run of
// non-alphanumeric characters into a single hyphen, trimming hyphens
// from both ends.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := false
	for _, r := range strings.ToLower(s) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen && b.Len() > 0 {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// shortHash returns a fixed-length hex digest of the input.
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLength]
}
