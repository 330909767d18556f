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
	"errors"
	"fmt"
)

// NodeStatus is the terminal state of one resource after a pass.
type NodeStatus string

const (
	// NodeSynced means the resource matches its desired document,
	// whether that took a create, an update, or nothing at all.
	NodeSynced NodeStatus = "synced"
	// NodeFailed means the backend operation for this resource errored.
	NodeFailed NodeStatus = "failed"
	// NodeSkipped means a dependency failed, so this resource was not
	// touched.
	NodeSkipped NodeStatus = "skipped"
	// NodeDeleted means the resource was removed as no longer desired.
	NodeDeleted NodeStatus = "deleted"
)

// NodeResult records what happened to one resource.
type NodeResult struct {
	Key    string     `json:"key"`
	Status NodeStatus `json:"status"`
	Action ActionType `json:"action"`
	Err    error      `json:"-"`
}

// Outputs are the addresses a converged deployment exposes.
type Outputs struct {
	ServiceID           string `json:"serviceId,omitempty"`
	URI                 string `json:"uri,omitempty"`
	LatestReadyRevision string `json:"latestReadyRevision,omitempty"`
	IdentityEmail       string `json:"identityEmail,omitempty"`
}

// Result is the outcome of a full pass. Outputs are populated only
// when the service itself converged.
type Result struct {
	Nodes   map[string]NodeResult `json:"nodes"`
	Outputs Outputs               `json:"outputs"`
}

// Succeeded reports whether every resource converged.
func (r *Result) Succeeded() bool {
	for _, n := range r.Nodes {
		if n.Status == NodeFailed || n.Status == NodeSkipped {
			return false
		}
	}
	return true
}

// Err joins the per-resource errors, or nil when the pass succeeded.
// Skipped resources contribute no error of their own.
func (r *Result) Err() error {
	var errs []error
	for _, n := range r.Nodes {
		if n.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Key, n.Err))
		}
	}
	return errors.Join(errs...)
}

// BackendOperationError wraps a failed backend call with the resource
// and operation it was performing.
type BackendOperationError struct {
	Key string
	Op  string
	Err error
}

func (e *BackendOperationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *BackendOperationError) Unwrap() error {
	return e.Err
}

// IsBackendOperationError reports whether err wraps a failed backend
// call.
func IsBackendOperationError(err error) bool {
	var boe *BackendOperationError
	return errors.As(err, &boe)
}
