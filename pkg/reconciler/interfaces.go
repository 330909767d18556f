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

	"github.com/cloudrun-tools/runr/pkg/graph"
)

// Backend performs the individual resource operations a pass needs.
// Implementations must be safe for concurrent use; the reconciler
// issues calls for independent resources in parallel.
type Backend interface {
	// Get returns the observed document for key, or found=false when
	// the resource does not exist. Absence is not an error.
	Get(ctx context.Context, key string) (observed map[string]interface{}, found bool, err error)

	// Create materializes the node's desired document and returns the
	// observed document, including any server-assigned fields.
	Create(ctx context.Context, node *graph.Node) (map[string]interface{}, error)

	// Update converges an existing resource on the node's desired
	// document and returns the resulting observed document.
	Update(ctx context.Context, node *graph.Node, observed map[string]interface{}) (map[string]interface{}, error)

	// Delete removes the resource. Deleting an absent resource is not
	// an error.
	Delete(ctx context.Context, key string) error
}
