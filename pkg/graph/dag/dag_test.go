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

package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, ids []string, edges map[string][]string) *DirectedAcyclicGraph[string] {
	t.Helper()
	d := NewDirectedAcyclicGraph[string]()
	for i, id := range ids {
		require.NoError(t, d.AddVertex(id, i))
	}
	for from, deps := range edges {
		require.NoError(t, d.AddDependencies(from, deps))
	}
	return d
}

func TestAddVertexRejectsDuplicates(t *testing.T) {
	d := NewDirectedAcyclicGraph[string]()
	require.NoError(t, d.AddVertex("a", 0))
	err := d.AddVertex("a", 1)
	assert.ErrorContains(t, err, "already exists")
}

func TestAddDependenciesValidation(t *testing.T) {
	d := NewDirectedAcyclicGraph[string]()
	require.NoError(t, d.AddVertex("a", 0))
	require.NoError(t, d.AddVertex("b", 1))

	assert.ErrorContains(t, d.AddDependencies("missing", []string{"a"}), "does not exist")
	assert.ErrorContains(t, d.AddDependencies("a", []string{"missing"}), "does not exist")
	assert.ErrorContains(t, d.AddDependencies("a", []string{"a"}), "cannot depend on itself")
	assert.NoError(t, d.AddDependencies("a", []string{"b"}))
	// Re-adding an existing edge is a no-op.
	assert.NoError(t, d.AddDependencies("a", []string{"b"}))
}

func TestCycleDetectionRollsBack(t *testing.T) {
	d := build(t, []string{"a", "b", "c"}, map[string][]string{
		"b": {"a"},
		"c": {"b"},
	})

	err := d.AddDependencies("a", []string{"c"})
	require.Error(t, err)
	ce := AsCycleError[string](err)
	require.NotNil(t, ce)
	assert.NotEmpty(t, ce.Cycle)

	// The rejected edge must not survive; the graph still sorts.
	order, err := d.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopologicalSort(t *testing.T) {
	tests := []struct {
		name  string
		ids   []string
		edges map[string][]string
		want  []string
	}{
		{
			name: "no edges preserves insertion order",
			ids:  []string{"c", "a", "b"},
			want: []string{"c", "a", "b"},
		},
		{
			name: "chain",
			ids:  []string{"a", "b", "c"},
			edges: map[string][]string{
				"c": {"b"},
				"b": {"a"},
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "diamond keeps insertion order among ready vertices",
			ids:  []string{"root", "left", "right", "sink"},
			edges: map[string][]string{
				"left":  {"root"},
				"right": {"root"},
				"sink":  {"left", "right"},
			},
			want: []string{"root", "left", "right", "sink"},
		},
		{
			name: "dependency added late still sorts first",
			ids:  []string{"b", "a"},
			edges: map[string][]string{
				"b": {"a"},
			},
			want: []string{"a", "b"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := build(t, tc.ids, tc.edges)
			got, err := d.TopologicalSort()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			// Sorting is deterministic call to call.
			again, err := d.TopologicalSort()
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestTopologicalSortLevels(t *testing.T) {
	d := build(t, []string{"root", "left", "right", "sink", "island"}, map[string][]string{
		"left":  {"root"},
		"right": {"root"},
		"sink":  {"left", "right"},
	})

	levels, err := d.TopologicalSortLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"root", "island"},
		{"left", "right"},
		{"sink"},
	}, levels)
}
