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

// Package memory implements an in-memory reconciler backend. It
// assigns server-side fields deterministically, which makes it the
// reference backend for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/cloudrun-tools/runr/pkg/graph"
)

// Backend stores resource documents in process memory. It is safe for
// concurrent use.
type Backend struct {
	mu        sync.Mutex
	resources map[string]map[string]interface{}
	failures  map[string]error
	sequence  int64
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		resources: make(map[string]map[string]interface{}),
		failures:  make(map[string]error),
	}
}

// FailWith makes every subsequent mutating operation on key return
// err. Passing nil clears the injection.
func (b *Backend) FailWith(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, key)
		return
	}
	b.failures[key] = err
}

// Seed installs an observed document directly, bypassing create
// semantics. The document is deep-copied.
func (b *Backend) Seed(key string, doc map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resources[key] = copyDocument(doc)
}

// Get implements reconciler.Backend.
func (b *Backend) Get(ctx context.Context, key string) (map[string]interface{}, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.resources[key]
	if !ok {
		return nil, false, nil
	}
	return copyDocument(doc), true, nil
}

// Create implements reconciler.Backend. The stored document is the
// desired one plus deterministic server-assigned fields.
func (b *Backend) Create(ctx context.Context, node *graph.Node) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures[node.Key]; err != nil {
		return nil, err
	}
	if _, exists := b.resources[node.Key]; exists {
		return nil, fmt.Errorf("resource %q already exists", node.Key)
	}

	doc := copyDocument(node.Desired)
	b.sequence++
	doc["generation"] = int64(1)
	doc["etag"] = fmt.Sprintf("etag-%d", b.sequence)
	b.assignServerFields(node, doc)

	b.resources[node.Key] = doc
	return copyDocument(doc), nil
}

// Update implements reconciler.Backend. Server-assigned fields from
// the prior observed document survive the update.
func (b *Backend) Update(ctx context.Context, node *graph.Node, observed map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures[node.Key]; err != nil {
		return nil, err
	}
	prior, exists := b.resources[node.Key]
	if !exists {
		return nil, fmt.Errorf("resource %q does not exist", node.Key)
	}

	doc := copyDocument(node.Desired)
	gen, _ := prior["generation"].(int64)
	b.sequence++
	doc["generation"] = gen + 1
	doc["etag"] = fmt.Sprintf("etag-%d", b.sequence)
	b.assignServerFields(node, doc)

	b.resources[node.Key] = doc
	return copyDocument(doc), nil
}

// Delete implements reconciler.Backend. Absent resources delete
// cleanly.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures[key]; err != nil {
		return err
	}
	delete(b.resources, key)
	return nil
}

// List implements reconciler.Lister.
func (b *Backend) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := maps.Keys(b.resources)
	sort.Strings(keys)
	return keys, nil
}

// Snapshot returns a deep copy of every stored document, keyed by
// resource key.
func (b *Backend) Snapshot() map[string]map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]map[string]interface{}, len(b.resources))
	for key, doc := range b.resources {
		out[key] = copyDocument(doc)
	}
	return out
}

// assignServerFields fills in the fields a real backend would choose:
// addresses for services, the email for identities. Values derive
// only from the document so repeated runs observe the same state.
func (b *Backend) assignServerFields(node *graph.Node, doc map[string]interface{}) {
	switch node.Kind {
	case graph.KindService:
		name, _ := doc["name"].(string)
		project, _ := doc["project"].(string)
		location, _ := doc["location"].(string)
		doc["uid"] = fmt.Sprintf("projects/%s/locations/%s/services/%s", project, location, name)
		doc["uri"] = fmt.Sprintf("https://%s-%s.%s.run.app", name, project, location)
		doc["latestReadyRevision"] = fmt.Sprintf("%s-%05d", name, doc["generation"])
	case graph.KindServiceAccount:
		accountID, _ := doc["accountId"].(string)
		project, _ := doc["project"].(string)
		doc["email"] = fmt.Sprintf("%s@%s.iam.gserviceaccount.com", accountID, project)
		doc["uniqueId"] = fmt.Sprintf("sa-%s-%s", project, accountID)
	case graph.KindDomainMapping:
		domain, _ := doc["domain"].(string)
		doc["resourceRecords"] = []interface{}{
			map[string]interface{}{
				"name":   domain,
				"type":   "CNAME",
				"rrdata": "ghs.googlehosted.com.",
			},
		}
	}
}

func copyDocument(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return nil
	}
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return copyDocument(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
