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

// Package dag provides a minimal directed acyclic graph keyed by an
// ordered vertex type. Vertices carry an insertion order used to keep
// topological sorts stable: unconstrained vertices come out in the
// order they were added.
package dag

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Vertex is one node in the graph.
type Vertex[T cmp.Ordered] struct {
	// ID uniquely identifies the vertex.
	ID T
	// Order is the insertion position, used as a tie-breaker so sorts
	// are deterministic.
	Order int
	// DependsOn holds the IDs of vertices this vertex depends on.
	DependsOn map[T]struct{}
}

// DirectedAcyclicGraph maintains vertices and dependency edges and
// rejects any edge that would introduce a cycle.
type DirectedAcyclicGraph[T cmp.Ordered] struct {
	Vertices map[T]*Vertex[T]
}

// NewDirectedAcyclicGraph returns an empty graph.
func NewDirectedAcyclicGraph[T cmp.Ordered]() *DirectedAcyclicGraph[T] {
	return &DirectedAcyclicGraph[T]{
		Vertices: make(map[T]*Vertex[T]),
	}
}

// CycleError reports a dependency cycle through the listed vertices.
type CycleError[T cmp.Ordered] struct {
	Cycle []T
}

func (e *CycleError[T]) Error() string {
	return fmt.Sprintf("graph contains a cycle: %v", e.Cycle)
}

// AsCycleError returns the *CycleError in err's chain, or nil.
func AsCycleError[T cmp.Ordered](err error) *CycleError[T] {
	var ce *CycleError[T]
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// AddVertex inserts a new vertex. Adding the same ID twice is an error.
func (d *DirectedAcyclicGraph[T]) AddVertex(id T, order int) error {
	if _, exists := d.Vertices[id]; exists {
		return fmt.Errorf("vertex %v already exists", id)
	}
	d.Vertices[id] = &Vertex[T]{
		ID:        id,
		Order:     order,
		DependsOn: make(map[T]struct{}),
	}
	return nil
}

// AddDependencies records that from depends on each of deps. Both ends
// must already exist. Self references and edges that would close a
// cycle are rejected, leaving the graph unchanged.
func (d *DirectedAcyclicGraph[T]) AddDependencies(from T, deps []T) error {
	vertex, ok := d.Vertices[from]
	if !ok {
		return fmt.Errorf("vertex %v does not exist", from)
	}

	var added []T
	for _, dep := range deps {
		if dep == from {
			return fmt.Errorf("vertex %v cannot depend on itself", from)
		}
		if _, ok := d.Vertices[dep]; !ok {
			return fmt.Errorf("dependency %v of vertex %v does not exist", dep, from)
		}
		if _, dup := vertex.DependsOn[dep]; dup {
			continue
		}
		vertex.DependsOn[dep] = struct{}{}
		added = append(added, dep)
	}

	if cyclic, cycle := d.hasCycle(); cyclic {
		for _, dep := range added {
			delete(vertex.DependsOn, dep)
		}
		return &CycleError[T]{Cycle: cycle}
	}
	return nil
}

// hasCycle runs a depth-first search over every vertex, returning the
// first cycle found.
func (d *DirectedAcyclicGraph[T]) hasCycle() (bool, []T) {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[T]int, len(d.Vertices))
	var stack []T
	var cycle []T

	var visit func(id T) bool
	visit = func(id T) bool {
		color[id] = gray
		stack = append(stack, id)
		for dep := range d.Vertices[id].DependsOn {
			switch color[dep] {
			case gray:
				// Found a back edge; slice the cycle out of the stack.
				for i, v := range stack {
					if v == dep {
						cycle = append(slices.Clone(stack[i:]), dep)
						return true
					}
				}
				cycle = []T{dep, id, dep}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range d.sortedIDs() {
		if color[id] == white && visit(id) {
			return true, cycle
		}
	}
	return false, nil
}

// TopologicalSort returns the vertices in dependency order:
// dependencies before dependents. Among vertices whose dependencies
// are satisfied, insertion order wins.
func (d *DirectedAcyclicGraph[T]) TopologicalSort() ([]T, error) {
	if cyclic, cycle := d.hasCycle(); cyclic {
		return nil, &CycleError[T]{Cycle: cycle}
	}

	remaining := make(map[T]int, len(d.Vertices))
	for id, v := range d.Vertices {
		remaining[id] = len(v.DependsOn)
	}
	dependents := d.dependentsIndex()

	order := make([]T, 0, len(d.Vertices))
	for len(order) < len(d.Vertices) {
		next, ok := d.lowestReady(remaining)
		if !ok {
			// Unreachable after the cycle check above.
			return nil, &CycleError[T]{}
		}
		order = append(order, next)
		delete(remaining, next)
		for _, dep := range dependents[next] {
			if _, pending := remaining[dep]; pending {
				remaining[dep]--
			}
		}
	}
	return order, nil
}

// TopologicalSortLevels groups vertices into levels by dependency
// depth: every vertex's dependencies live in strictly earlier levels,
// and vertices within one level are mutually independent. Within a
// level, insertion order is preserved.
func (d *DirectedAcyclicGraph[T]) TopologicalSortLevels() ([][]T, error) {
	if cyclic, cycle := d.hasCycle(); cyclic {
		return nil, &CycleError[T]{Cycle: cycle}
	}

	remaining := make(map[T]int, len(d.Vertices))
	for id, v := range d.Vertices {
		remaining[id] = len(v.DependsOn)
	}
	dependents := d.dependentsIndex()

	var levels [][]T
	for len(remaining) > 0 {
		var level []T
		for _, id := range d.sortedIDs() {
			if count, pending := remaining[id]; pending && count == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil, &CycleError[T]{}
		}
		for _, id := range level {
			delete(remaining, id)
			for _, dep := range dependents[id] {
				if _, pending := remaining[dep]; pending {
					remaining[dep]--
				}
			}
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// dependentsIndex inverts the DependsOn edges: for each vertex, the
// vertices that depend on it.
func (d *DirectedAcyclicGraph[T]) dependentsIndex() map[T][]T {
	out := make(map[T][]T, len(d.Vertices))
	for id, v := range d.Vertices {
		for dep := range v.DependsOn {
			out[dep] = append(out[dep], id)
		}
	}
	return out
}

// sortedIDs returns all vertex IDs ordered by insertion order.
func (d *DirectedAcyclicGraph[T]) sortedIDs() []T {
	ids := make([]T, 0, len(d.Vertices))
	for id := range d.Vertices {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b T) int {
		return cmp.Compare(d.Vertices[a].Order, d.Vertices[b].Order)
	})
	return ids
}

// lowestReady returns the pending vertex with no unsatisfied
// dependencies and the lowest insertion order.
func (d *DirectedAcyclicGraph[T]) lowestReady(remaining map[T]int) (T, bool) {
	var best T
	found := false
	for id, count := range remaining {
		if count != 0 {
			continue
		}
		if !found || d.Vertices[id].Order < d.Vertices[best].Order {
			best = id
			found = true
		}
	}
	return best, found
}
