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

// Package delta compares desired and observed resource documents.
//
// The comparison is one-directional: only fields present in the
// desired document are examined, so server-assigned fields on the
// observed side (identifiers, status, revision names) never produce a
// difference. A resource is in sync when every desired field matches
// its observed counterpart.
package delta

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Difference describes a field whose observed value diverges from the
// desired one. Observed is nil when the field is absent.
type Difference struct {
	Path     string      `json:"path"`
	Desired  interface{} `json:"desired"`
	Observed interface{} `json:"observed"`
}

// Compare walks desired and reports every field that observed lacks
// or holds with a different value. It never reports fields that exist
// only in observed.
func Compare(desired, observed map[string]interface{}) []Difference {
	var diffs []Difference
	walkMap(desired, observed, "", &diffs)
	return diffs
}

func walkMap(desired, observed map[string]interface{}, path string, diffs *[]Difference) {
	for key, dv := range desired {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		ov, exists := observed[key]
		if !exists {
			if !isEmptyValue(dv) {
				*diffs = append(*diffs, Difference{Path: childPath, Desired: dv, Observed: nil})
			}
			continue
		}
		walkValue(dv, ov, childPath, diffs)
	}
}

func walkValue(desired, observed interface{}, path string, diffs *[]Difference) {
	switch dv := desired.(type) {
	case map[string]interface{}:
		ov, ok := observed.(map[string]interface{})
		if !ok {
			*diffs = append(*diffs, Difference{Path: path, Desired: desired, Observed: observed})
			return
		}
		walkMap(dv, ov, path, diffs)
	case []interface{}:
		ov, ok := observed.([]interface{})
		if !ok || len(dv) != len(ov) {
			*diffs = append(*diffs, Difference{Path: path, Desired: desired, Observed: observed})
			return
		}
		for i := range dv {
			walkValue(dv[i], ov[i], fmt.Sprintf("%s[%d]", path, i), diffs)
		}
	default:
		if !leafEqual(desired, observed, path) {
			*diffs = append(*diffs, Difference{Path: path, Desired: desired, Observed: observed})
		}
	}
}

// leafEqual compares scalar values. Numeric values compare by
// magnitude regardless of concrete type, since decoded documents mix
// int64 and float64 for the same logical field. CPU and memory limits
// compare as quantities so "1" and "1000m" are the same request.
func leafEqual(desired, observed interface{}, path string) bool {
	if desired == nil || observed == nil {
		return desired == observed
	}
	if isQuantityPath(path) {
		ds, dok := desired.(string)
		os, ook := observed.(string)
		if dok && ook {
			dq, derr := resource.ParseQuantity(ds)
			oq, oerr := resource.ParseQuantity(os)
			if derr == nil && oerr == nil {
				return dq.Cmp(oq) == 0
			}
		}
	}
	if dn, ok := toFloat(desired); ok {
		if on, ok := toFloat(observed); ok {
			return dn == on
		}
		return false
	}
	return desired == observed
}

func isQuantityPath(path string) bool {
	return strings.HasSuffix(path, ".resources.limits.cpu") ||
		strings.HasSuffix(path, ".resources.limits.memory")
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// isEmptyValue reports whether a desired value carries no content, so
// its absence on the observed side is not a divergence.
func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]interface{}:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	default:
		return false
	}
}
