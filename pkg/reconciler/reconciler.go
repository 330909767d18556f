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

// Package reconciler drives a resource graph to convergence against a
// backend. A pass walks the graph in dependency order, creating or
// updating each resource, then removes managed resources the graph no
// longer names.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/cloudrun-tools/runr/pkg/graph"
	"github.com/cloudrun-tools/runr/pkg/graph/walker"
	"github.com/cloudrun-tools/runr/pkg/reconciler/delta"
)

const (
	defaultConcurrency    = 4
	defaultBackendTimeout = 2 * time.Minute
)

// Options tune a Reconciler. The zero value is usable.
type Options struct {
	// Concurrency bounds how many independent resources are worked on
	// at once. Zero means defaultConcurrency.
	Concurrency int
	// BackendTimeout bounds each individual backend call. Zero means
	// defaultBackendTimeout.
	BackendTimeout time.Duration
	// StopOnError stops scheduling new resources after the first
	// failure. Dependents of a failed resource are skipped either way.
	StopOnError bool
	// Logger receives per-resource progress. Discarded if unset.
	Logger logr.Logger
}

// Reconciler converges resource graphs against a single backend. It
// is stateless between passes and safe for concurrent use.
type Reconciler struct {
	backend Backend
	log     logr.Logger
	opts    Options
}

// New returns a Reconciler over backend.
func New(backend Backend, opts Options) *Reconciler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = defaultBackendTimeout
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	return &Reconciler{
		backend: backend,
		log:     opts.Logger.WithName("reconciler"),
		opts:    opts,
	}
}

// Reconcile runs one full pass: every graph node is created or
// updated in dependency order, then resources the graph no longer
// names are deleted, children first. The returned Result always
// covers every node, even on partial failure; err mirrors
// Result.Err.
func (r *Reconciler) Reconcile(ctx context.Context, g *graph.Graph) (*Result, error) {
	start := time.Now()

	result := &Result{Nodes: make(map[string]NodeResult)}
	// The identity address is derived, not observed; it is reported
	// even when the pass fails before the service converges.
	result.Outputs.IdentityEmail = g.IdentityEmail
	var mu sync.Mutex

	wr := walker.Walk(ctx, g.DAG, func(ctx context.Context, key string) error {
		nr, err := r.reconcileNode(ctx, g, key, result)
		mu.Lock()
		result.Nodes[key] = nr
		mu.Unlock()
		return err
	}, walker.Options{
		Parallelism: r.opts.Concurrency,
		StopOnError: r.opts.StopOnError,
	})

	mu.Lock()
	for key, st := range wr.Statuses {
		if st != walker.StatusSkipped {
			continue
		}
		result.Nodes[key] = NodeResult{Key: key, Status: NodeSkipped}
	}
	mu.Unlock()

	// Stale resources are deleted only from a healthy pass; a failed
	// sibling may mean the observed state is mid-transition.
	if result.Succeeded() {
		if err := r.deleteStale(ctx, g, result); err != nil {
			return result, err
		}
	}

	reconcileDuration.Observe(time.Since(start).Seconds())
	if result.Succeeded() {
		reconcileTotal.WithLabelValues("success").Inc()
	} else {
		reconcileTotal.WithLabelValues("failure").Inc()
	}
	return result, result.Err()
}

// reconcileNode converges a single resource and records its outputs
// when the resource is the service.
func (r *Reconciler) reconcileNode(ctx context.Context, g *graph.Graph, key string, result *Result) (NodeResult, error) {
	node := g.Nodes[key]
	log := r.log.WithValues("resource", key)

	observed, found, err := r.get(ctx, key, node.Kind)
	if err != nil {
		return NodeResult{Key: key, Status: NodeFailed, Err: err}, err
	}

	nr := NodeResult{Key: key, Status: NodeSynced}
	switch {
	case !found:
		nr.Action = ActionCreate
		observed, err = r.create(ctx, node)
	case len(delta.Compare(node.Desired, observed)) > 0:
		nr.Action = ActionUpdate
		observed, err = r.update(ctx, node, observed)
	default:
		nr.Action = ActionNoop
	}
	if err != nil {
		log.Error(err, "resource failed", "action", nr.Action)
		nr.Status = NodeFailed
		nr.Err = err
		return nr, err
	}
	log.V(1).Info("resource synced", "action", nr.Action)

	if key == g.ServiceKey {
		result.Outputs = extractOutputs(observed, g.IdentityEmail)
	}
	return nr, nil
}

// Destroy removes every graph resource from the backend in reverse
// dependency order.
func (r *Reconciler) Destroy(ctx context.Context, g *graph.Graph) (*Result, error) {
	result := &Result{Nodes: make(map[string]NodeResult)}
	var mu sync.Mutex

	wr := walker.Walk(ctx, g.DAG, func(ctx context.Context, key string) error {
		err := r.delete(ctx, key, g.Nodes[key].Kind)
		nr := NodeResult{Key: key, Status: NodeDeleted, Action: ActionDelete}
		if err != nil {
			nr.Status = NodeFailed
			nr.Err = err
		}
		mu.Lock()
		result.Nodes[key] = nr
		mu.Unlock()
		return err
	}, walker.Options{
		Parallelism: r.opts.Concurrency,
		StopOnError: r.opts.StopOnError,
		Reverse:     true,
	})

	mu.Lock()
	for key, st := range wr.Statuses {
		if st == walker.StatusSkipped {
			result.Nodes[key] = NodeResult{Key: key, Status: NodeSkipped, Action: ActionDelete}
		}
	}
	mu.Unlock()
	return result, result.Err()
}

// deleteStale removes managed resources the graph no longer names.
// Deletes run sequentially, children before parents.
func (r *Reconciler) deleteStale(ctx context.Context, g *graph.Graph, result *Result) error {
	stale, err := r.staleKeys(ctx, g)
	if err != nil {
		return err
	}
	for _, key := range stale {
		nr := NodeResult{Key: key, Status: NodeDeleted, Action: ActionDelete}
		if err := r.delete(ctx, key, graph.KindOfKey(key)); err != nil {
			nr.Status = NodeFailed
			nr.Err = err
			result.Nodes[key] = nr
			return err
		}
		r.log.V(1).Info("stale resource deleted", "resource", key)
		result.Nodes[key] = nr
	}
	return nil
}

func (r *Reconciler) get(ctx context.Context, key string, kind graph.Kind) (map[string]interface{}, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.BackendTimeout)
	defer cancel()
	observed, found, err := r.backend.Get(ctx, key)
	r.observe(kind, "get", err)
	if err != nil {
		return nil, false, &BackendOperationError{Key: key, Op: "get", Err: err}
	}
	return observed, found, nil
}

// create and update pass the backend a private copy of the node;
// graph nodes stay immutable no matter what the backend does to its
// argument.
func (r *Reconciler) create(ctx context.Context, node *graph.Node) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.BackendTimeout)
	defer cancel()
	observed, err := r.backend.Create(ctx, node.DeepCopy())
	r.observe(node.Kind, "create", err)
	if err != nil {
		return nil, &BackendOperationError{Key: node.Key, Op: "create", Err: err}
	}
	return observed, nil
}

func (r *Reconciler) update(ctx context.Context, node *graph.Node, prior map[string]interface{}) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.BackendTimeout)
	defer cancel()
	observed, err := r.backend.Update(ctx, node.DeepCopy(), prior)
	r.observe(node.Kind, "update", err)
	if err != nil {
		return nil, &BackendOperationError{Key: node.Key, Op: "update", Err: err}
	}
	return observed, nil
}

func (r *Reconciler) delete(ctx context.Context, key string, kind graph.Kind) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.BackendTimeout)
	defer cancel()
	err := r.backend.Delete(ctx, key)
	r.observe(kind, "delete", err)
	if err != nil {
		return &BackendOperationError{Key: key, Op: "delete", Err: err}
	}
	return nil
}

func (r *Reconciler) observe(kind graph.Kind, op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	resourceOperationsTotal.WithLabelValues(kind.String(), op, outcome).Inc()
}

// extractOutputs pulls the service addresses out of the observed
// document. Fields the backend has not yet assigned stay empty.
func extractOutputs(observed map[string]interface{}, identityEmail string) Outputs {
	out := Outputs{IdentityEmail: identityEmail}
	if observed == nil {
		return out
	}
	if v, ok := observed["uid"].(string); ok {
		out.ServiceID = v
	}
	if v, ok := observed["uri"].(string); ok {
		out.URI = v
	}
	if v, ok := observed["latestReadyRevision"].(string); ok {
		out.LatestReadyRevision = v
	}
	return out
}
