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

package reconciler

import (
	"context"
	"sort"

	"github.com/cloudrun-tools/runr/pkg/graph"
	"github.com/cloudrun-tools/runr/pkg/reconciler/delta"
)

// ActionType classifies what a pass would do to one resource.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionNoop   ActionType = "no-op"
	ActionDelete ActionType = "delete"
)

// Action is one planned step. Diff is populated for updates only.
type Action struct {
	Key  string             `json:"key"`
	Kind graph.Kind         `json:"kind"`
	Type ActionType         `json:"type"`
	Diff []delta.Difference `json:"diff,omitempty"`
}

// Plan is the full preview of a pass: actions for every graph node in
// topological order, followed by deletes for observed resources the
// graph no longer names, children before parents.
type Plan struct {
	Actions []Action `json:"actions"`
}

// Changes reports how many actions mutate the backend.
func (p *Plan) Changes() int {
	n := 0
	for _, a := range p.Actions {
		if a.Type != ActionNoop {
			n++
		}
	}
	return n
}

// Compute derives the plan for g against the backend's current state
// without mutating anything. The snapshot is taken with individual
// Get calls so Compute sees exactly what Reconcile would.
func (r *Reconciler) Compute(ctx context.Context, g *graph.Graph) (*Plan, error) {
	observed := make(map[string]map[string]interface{})
	present := make(map[string]bool)
	for _, key := range g.TopologicalOrder {
		doc, found, err := r.backend.Get(ctx, key)
		if err != nil {
			return nil, &BackendOperationError{Key: key, Op: "get", Err: err}
		}
		present[key] = found
		if found {
			observed[key] = doc
		}
	}

	plan := &Plan{}
	for _, key := range g.TopologicalOrder {
		node := g.Nodes[key]
		action := Action{Key: key, Kind: node.Kind}
		switch {
		case !present[key]:
			action.Type = ActionCreate
		default:
			diff := delta.Compare(node.Desired, observed[key])
			if len(diff) == 0 {
				action.Type = ActionNoop
			} else {
				action.Type = ActionUpdate
				action.Diff = diff
			}
		}
		plan.Actions = append(plan.Actions, action)
	}

	stale, err := r.staleKeys(ctx, g)
	if err != nil {
		return nil, err
	}
	for _, key := range stale {
		plan.Actions = append(plan.Actions, Action{
			Key:  key,
			Kind: graph.KindOfKey(key),
			Type: ActionDelete,
		})
	}
	return plan, nil
}

// staleKeys lists managed resources the backend holds that the graph
// no longer names, ordered so dependents are deleted before the
// resources they depend on.
func (r *Reconciler) staleKeys(ctx context.Context, g *graph.Graph) ([]string, error) {
	lister, ok := r.backend.(Lister)
	if !ok {
		return nil, nil
	}
	keys, err := lister.List(ctx)
	if err != nil {
		return nil, &BackendOperationError{Op: "list", Err: err}
	}

	var stale []string
	for _, key := range keys {
		if _, managed := g.Nodes[key]; !managed {
			stale = append(stale, key)
		}
	}
	sortForDeletion(stale)
	return stale, nil
}

// Lister is implemented by backends that can enumerate the resources
// they hold. Without it, stale resources are left in place.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// sortForDeletion orders keys children-first: higher deletion rank
// first, then lexicographic within a rank for determinism.
func sortForDeletion(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		ri := graph.KindOfKey(keys[i]).DeletionRank()
		rj := graph.KindOfKey(keys[j]).DeletionRank()
		if ri != rj {
			return ri > rj
		}
		return keys[i] < keys[j]
	})
}
