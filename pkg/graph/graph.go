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

// Package graph expands a validated ServiceSpec into a resource graph:
// typed nodes of desired state joined by explicit dependency edges.
// The graph is rebuilt from scratch on every reconciliation pass and
// is immutable once built.
package graph

import (
	"github.com/cloudrun-tools/runr/pkg/graph/dag"
)

// Graph is the resource graph produced by Build.
type Graph struct {
	// DAG holds the dependency edges between node keys.
	DAG *dag.DirectedAcyclicGraph[string]

	// Nodes maps node key to its immutable desired state.
	Nodes map[string]*Node

	// TopologicalOrder lists node keys with dependencies before
	// dependents; deterministic for a given spec.
	TopologicalOrder []string

	// ServiceKey is the key of the primary resource node.
	ServiceKey string

	// IdentityEmail is the resolved runtime identity address: the
	// derived address of a created identity, or the caller-supplied one.
	IdentityEmail string
}

// Get returns the node for key, or nil.
func (g *Graph) Get(key string) *Node {
	return g.Nodes[key]
}
