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

package walker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudrun-tools/runr/pkg/graph/dag"
)

func buildDAG(t *testing.T, ids []string, edges map[string][]string) *dag.DirectedAcyclicGraph[string] {
	t.Helper()
	d := dag.NewDirectedAcyclicGraph[string]()
	for i, id := range ids {
		require.NoError(t, d.AddVertex(id, i))
	}
	for from, deps := range edges {
		require.NoError(t, d.AddDependencies(from, deps))
	}
	return d
}

// recorder collects visit order under a lock so walks with
// parallelism > 1 can still assert relative ordering.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) visit(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
}

func (r *recorder) index(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestWalkEmptyGraph(t *testing.T) {
	d := dag.NewDirectedAcyclicGraph[string]()
	res := Walk(context.Background(), d, func(ctx context.Context, id string) error {
		t.Fatalf("vertex function called on empty graph")
		return nil
	}, Options{})
	assert.True(t, res.AllSucceeded())
	assert.Empty(t, res.Statuses)
}

func TestWalkRespectsDependencyOrder(t *testing.T) {
	d := buildDAG(t, []string{"root", "left", "right", "sink"}, map[string][]string{
		"left":  {"root"},
		"right": {"root"},
		"sink":  {"left", "right"},
	})

	rec := &recorder{}
	res := Walk(context.Background(), d, func(ctx context.Context, id string) error {
		rec.visit(id)
		return nil
	}, Options{Parallelism: 4})

	require.True(t, res.AllSucceeded())
	assert.Less(t, rec.index("root"), rec.index("left"))
	assert.Less(t, rec.index("root"), rec.index("right"))
	assert.Less(t, rec.index("left"), rec.index("sink"))
	assert.Less(t, rec.index("right"), rec.index("sink"))
}

func TestWalkReverseOrder(t *testing.T) {
	d := buildDAG(t, []string{"root", "mid", "leaf"}, map[string][]string{
		"mid":  {"root"},
		"leaf": {"mid"},
	})

	rec := &recorder{}
	res := Walk(context.Background(), d, func(ctx context.Context, id string) error {
		rec.visit(id)
		return nil
	}, Options{Parallelism: 2, Reverse: true})

	require.True(t, res.AllSucceeded())
	assert.Equal(t, []string{"leaf", "mid", "root"}, rec.order)
}

func TestWalkSkipsDependentsOfFailure(t *testing.T) {
	d := buildDAG(t, []string{"root", "bad", "child", "grandchild", "sibling"}, map[string][]string{
		"bad":        {"root"},
		"child":      {"bad"},
		"grandchild": {"child"},
		"sibling":    {"root"},
	})

	boom := errors.New("boom")
	res := Walk(context.Background(), d, func(ctx context.Context, id string) error {
		if id == "bad" {
			return boom
		}
		return nil
	}, Options{Parallelism: 1})

	assert.False(t, res.AllSucceeded())
	assert.Equal(t, StatusSucceeded, res.Statuses["root"])
	assert.Equal(t, StatusFailed, res.Statuses["bad"])
	assert.Equal(t, StatusSkipped, res.Statuses["child"])
	assert.Equal(t, StatusSkipped, res.Statuses["grandchild"])
	// Independent subtrees keep going after a failure.
	assert.Equal(t, StatusSucceeded, res.Statuses["sibling"])
	assert.ErrorIs(t, res.Errors["bad"], boom)
	assert.NotContains(t, res.Errors, "child")
}

func TestWalkStopOnError(t *testing.T) {
	d := buildDAG(t, []string{"bad", "other"}, map[string][]string{
		"other": {"bad"},
	})

	res := Walk(context.Background(), d, func(ctx context.Context, id string) error {
		if id == "bad" {
			return errors.New("boom")
		}
		return nil
	}, Options{Parallelism: 1, StopOnError: true})

	assert.Equal(t, StatusFailed, res.Statuses["bad"])
	assert.Equal(t, StatusSkipped, res.Statuses["other"])
}

func TestWalkCancelledContext(t *testing.T) {
	d := buildDAG(t, []string{"a", "b"}, map[string][]string{
		"b": {"a"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Walk(ctx, d, func(ctx context.Context, id string) error {
		return ctx.Err()
	}, Options{Parallelism: 1})

	// Every vertex gets a terminal status even when the walk is
	// cancelled before finishing.
	assert.Len(t, res.Statuses, 2)
	assert.False(t, res.AllSucceeded())
	assert.Equal(t, StatusSkipped, res.Statuses["b"])
	assert.NotEqual(t, StatusSucceeded, res.Statuses["a"])
}

func TestWalkParallelismBound(t *testing.T) {
	d := dag.NewDirectedAcyclicGraph[string]()
	ids := []string{"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7"}
	for i, id := range ids {
		require.NoError(t, d.AddVertex(id, i))
	}

	var mu sync.Mutex
	inFlight, peak := 0, 0
	res := Walk(context.Background(), d, func(ctx context.Context, id string) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}, Options{Parallelism: 2})

	require.True(t, res.AllSucceeded())
	assert.LessOrEqual(t, peak, 2)
}
