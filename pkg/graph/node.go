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

package graph

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies the type of resource a node describes.
type Kind int

const (
	// KindService is the run service itself, the primary resource.
	KindService Kind = iota
	// KindServiceAccount is a generated runtime identity.
	KindServiceAccount
	// KindIAMBinding is one (role, principal) grant on the service.
	KindIAMBinding
	// KindSecretAccess grants the runtime identity read access to one
	// secret.
	KindSecretAccess
	// KindDomainMapping maps a custom domain to the service.
	KindDomainMapping
	// KindUnknown is returned for keys this package did not produce.
	KindUnknown
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindService:
		return "Service"
	case KindServiceAccount:
		return "ServiceAccount"
	case KindIAMBinding:
		return "IAMBinding"
	case KindSecretAccess:
		return "SecretAccess"
	case KindDomainMapping:
		return "DomainMapping"
	default:
		return "Unknown"
	}
}

// Key prefixes. A node key is "<prefix>/<discriminator...>" and is
// stable across passes: the same spec always produces the same keys,
// which is what lets the reconciler match desired nodes against the
// observed-state snapshot.
const (
	keyPrefixService        = "service"
	keyPrefixServiceAccount = "serviceaccount"
	keyPrefixIAMBinding     = "iam"
	keyPrefixSecretAccess   = "secret"
	keyPrefixDomainMapping  = "domain"
)

// ServiceKey returns the node key for the run service.
func ServiceKey(name string) string {
	return keyPrefixService + "/" + name
}

// ServiceAccountKey returns the node key for a generated identity.
func ServiceAccountKey(accountID string) string {
	return keyPrefixServiceAccount + "/" + accountID
}

// IAMBindingKey returns the node key for one (role, principal) pair.
func IAMBindingKey(role, principal string) string {
	return fmt.Sprintf("%s/%s/%s", keyPrefixIAMBinding, role, principal)
}

// SecretAccessKey returns the node key for one (project, secret) pair.
func SecretAccessKey(project, secret string) string {
	return fmt.Sprintf("%s/%s/%s", keyPrefixSecretAccess, project, secret)
}

// DomainMappingKey returns the node key for a mapped domain.
func DomainMappingKey(domain string) string {
	return keyPrefixDomainMapping + "/" + domain
}

// KindOfKey parses the kind back out of a node key. Used when planning
// deletions for observed keys that no longer have a node in the graph.
func KindOfKey(key string) Kind {
	prefix, _, ok := strings.Cut(key, "/")
	if !ok {
		return KindUnknown
	}
	switch prefix {
	case keyPrefixService:
		return KindService
	case keyPrefixServiceAccount:
		return KindServiceAccount
	case keyPrefixIAMBinding:
		return KindIAMBinding
	case keyPrefixSecretAccess:
		return KindSecretAccess
	case keyPrefixDomainMapping:
		return KindDomainMapping
	default:
		return KindUnknown
	}
}

// DeletionRank orders kinds for teardown: resources that depend on
// others rank higher and are deleted first. Reverse dependency order
// falls out of deleting by descending rank.
func (k Kind) DeletionRank() int {
	switch k {
	case KindServiceAccount:
		return 0
	case KindService:
		return 1
	default:
		return 2
	}
}

// Node is one unit of desired state in the resource graph. Nodes are
// immutable once built; a reconciliation pass never mutates them.
type Node struct {
	// Key uniquely identifies the node and matches it against the
	// observed-state snapshot.
	Key string
	// Kind is the resource type.
	Kind Kind
	// Index is the position in the builder's emission order, used to
	// keep topological sorts deterministic.
	Index int
	// Dependencies lists the keys of nodes this node depends on.
	Dependencies []string
	// Desired is the desired-state payload handed to the backend.
	Desired map[string]interface{}
}

// DeepCopy returns a deep copy of the node.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}
	return &Node{
		Key:          n.Key,
		Kind:         n.Kind,
		Index:        n.Index,
		Dependencies: slices.Clone(n.Dependencies),
		Desired:      deepCopyDocument(n.Desired),
	}
}

func deepCopyDocument(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyDocument(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
