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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudrun-tools/runr/pkg/graph"
)

func serviceNode() *graph.Node {
	return &graph.Node{
		Key:  graph.ServiceKey("billing-api"),
		Kind: graph.KindService,
		Desired: map[string]interface{}{
			"name":     "billing-api",
			"project":  "acme-prod",
			"location": "europe-west1",
			"template": map[string]interface{}{
				"containers": []interface{}{
					map[string]interface{}{"image": "gcr.io/acme/billing:v3"},
				},
			},
		},
	}
}

func TestCreateAssignsServerFields(t *testing.T) {
	b := New()
	ctx := context.Background()

	observed, err := b.Create(ctx, serviceNode())
	require.NoError(t, err)
	assert.Equal(t, int64(1), observed["generation"])
	assert.Equal(t, "projects/acme-prod/locations/europe-west1/services/billing-api", observed["uid"])
	assert.Equal(t, "https://billing-api-acme-prod.europe-west1.run.app", observed["uri"])
	assert.Equal(t, "billing-api-00001", observed["latestReadyRevision"])

	_, err = b.Create(ctx, serviceNode())
	assert.ErrorContains(t, err, "already exists")
}

func TestUpdateAdvancesGeneration(t *testing.T) {
	b := New()
	ctx := context.Background()
	node := serviceNode()

	created, err := b.Create(ctx, node)
	require.NoError(t, err)

	updated, err := b.Update(ctx, node, created)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated["generation"])
	assert.NotEqual(t, created["etag"], updated["etag"])

	_, err = b.Update(ctx, &graph.Node{Key: "service/ghost", Kind: graph.KindService, Desired: map[string]interface{}{}}, nil)
	assert.ErrorContains(t, err, "does not exist")
}

func TestGetReturnsIsolatedCopies(t *testing.T) {
	b := New()
	ctx := context.Background()
	_, err := b.Create(ctx, serviceNode())
	require.NoError(t, err)

	first, found, err := b.Get(ctx, "service/billing-api")
	require.NoError(t, err)
	require.True(t, found)
	first["template"].(map[string]interface{})["containers"] = nil

	second, _, err := b.Get(ctx, "service/billing-api")
	require.NoError(t, err)
	assert.NotNil(t, second["template"].(map[string]interface{})["containers"])
}

func TestDeleteAndList(t *testing.T) {
	b := New()
	ctx := context.Background()
	_, err := b.Create(ctx, serviceNode())
	require.NoError(t, err)
	b.Seed("iam/roles/run.invoker/allUsers", map[string]interface{}{"role": "roles/run.invoker"})

	keys, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"iam/roles/run.invoker/allUsers", "service/billing-api"}, keys)

	require.NoError(t, b.Delete(ctx, "service/billing-api"))
	// Deleting an absent resource is not an error.
	require.NoError(t, b.Delete(ctx, "service/billing-api"))

	_, found, err := b.Get(ctx, "service/billing-api")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFailureInjection(t *testing.T) {
	b := New()
	ctx := context.Background()

	b.FailWith("service/billing-api", assert.AnError)
	_, err := b.Create(ctx, serviceNode())
	assert.ErrorIs(t, err, assert.AnError)

	b.FailWith("service/billing-api", nil)
	_, err = b.Create(ctx, serviceNode())
	assert.NoError(t, err)
}
