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

// Package walker executes a DAG with a bounded worker pool. Vertices
// connected by a dependency edge are strictly sequenced; everything
// else may run concurrently. A failed vertex skips its transitive
// dependents without touching independent subtrees, and cancellation
// lets in-flight work finish while everything unreached is reported
// as skipped.
package walker

import (
	"cmp"
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cloudrun-tools/runr/pkg/graph/dag"
)

// Status is the terminal state of one vertex after a walk.
type Status int

const (
	// StatusSucceeded means the vertex function returned nil.
	StatusSucceeded Status = iota
	// StatusFailed means the vertex function returned an error.
	StatusFailed
	// StatusSkipped means the vertex never ran: a dependency failed,
	// or the walk was cancelled before reaching it.
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// VertexFunc is executed once per reached vertex.
type VertexFunc[T cmp.Ordered] func(ctx context.Context, id T) error

// Options configures a walk.
type Options struct {
	// Parallelism bounds the number of concurrent workers.
	// Defaults to runtime.NumCPU() when <= 0.
	Parallelism int

	// StopOnError cancels the whole walk on the first vertex failure
	// instead of continuing through independent subtrees.
	StopOnError bool

	// Reverse walks the DAG bottom-up: a vertex runs only after every
	// vertex depending on it has finished. Used for teardown.
	Reverse bool
}

// Result reports the terminal state of every vertex.
type Result[T cmp.Ordered] struct {
	// Statuses has one entry per vertex in the graph.
	Statuses map[T]Status
	// Errors holds the error for every failed vertex.
	Errors map[T]error
}

// AllSucceeded reports whether every vertex ran and returned nil.
func (r Result[T]) AllSucceeded() bool {
	for _, s := range r.Statuses {
		if s != StatusSucceeded {
			return false
		}
	}
	return true
}

// Walk executes fn for every vertex of d, respecting dependency
// edges, and returns a terminal status per vertex. The graph is not
// mutated; all walk state is local to the call.
func Walk[T cmp.Ordered](ctx context.Context, d *dag.DirectedAcyclicGraph[T], fn VertexFunc[T], opts Options) Result[T] {
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}

	total := len(d.Vertices)
	result := Result[T]{
		Statuses: make(map[T]Status, total),
		Errors:   make(map[T]error),
	}
	if total == 0 {
		return result
	}

	// pending counts unfinished predecessors per vertex; next lists the
	// vertices unblocked once a vertex finishes. In a forward walk the
	// predecessors are the dependencies; in a reverse walk, the
	// dependents.
	pending := make(map[T]*int, total)
	next := make(map[T][]T, total)
	for id := range d.Vertices {
		count := 0
		pending[id] = &count
	}
	for id, v := range d.Vertices {
		for dep := range v.DependsOn {
			if opts.Reverse {
				*pending[dep]++
				next[id] = append(next[id], dep)
			} else {
				*pending[id]++
				next[dep] = append(next[dep], id)
			}
		}
	}

	ready := make(chan T, total)
	for id, count := range pending {
		if *count == 0 {
			ready <- id
		}
	}

	var (
		mu        sync.Mutex
		closeOnce sync.Once
	)

	// settle records a terminal status for a vertex, closing the ready
	// channel once every vertex has settled. Returns false if the
	// vertex already settled (via the skip cascade).
	settle := func(id T, status Status, err error) bool {
		mu.Lock()
		defer mu.Unlock()
		if _, done := result.Statuses[id]; done {
			return false
		}
		result.Statuses[id] = status
		if err != nil {
			result.Errors[id] = err
		}
		if len(result.Statuses) == total {
			closeOnce.Do(func() { close(ready) })
		}
		return true
	}

	var skipSubtree func(id T)
	skipSubtree = func(id T) {
		if !settle(id, StatusSkipped, nil) {
			return
		}
		for _, n := range next[id] {
			skipSubtree(n)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Parallelism; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case id, ok := <-ready:
					if !ok {
						return nil
					}

					err := fn(gctx, id)
					if err != nil {
						settle(id, StatusFailed, err)
						for _, n := range next[id] {
							skipSubtree(n)
						}
						if opts.StopOnError {
							return err
						}
						continue
					}
					settle(id, StatusSucceeded, nil)

					for _, n := range next[id] {
						mu.Lock()
						*pending[n]--
						unblocked := *pending[n] == 0
						_, settled := result.Statuses[n]
						mu.Unlock()
						if unblocked && !settled {
							select {
							case ready <- n:
							case <-gctx.Done():
								return gctx.Err()
							}
						}
					}
				}
			}
		})
	}

	// Walk errors are reported per vertex; a non-nil group error only
	// signals cancellation or StopOnError, both reflected below.
	_ = g.Wait()

	// Anything without a terminal status was never reached.
	mu.Lock()
	for id := range d.Vertices {
		if _, done := result.Statuses[id]; !done {
			result.Statuses[id] = StatusSkipped
		}
	}
	mu.Unlock()

	return result
}
