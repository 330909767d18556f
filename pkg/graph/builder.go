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
	"sort"
	"strings"

	"golang.org/x/exp/maps"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/cloudrun-tools/runr/api/v1alpha1"
	"github.com/cloudrun-tools/runr/pkg/graph/dag"
	"github.com/cloudrun-tools/runr/pkg/names"
	"github.com/cloudrun-tools/runr/pkg/validation"
)

// SecretAccessorRole is the role granted on each referenced secret.
const SecretAccessorRole = "roles/secretmanager.secretAccessor"

// candidate is a node plus its inclusion predicate, evaluated once at
// build time. Excluded candidates never become graph nodes, and no
// edge may reference them.
type candidate struct {
	node    *Node
	include bool
}

// Build expands spec into a resource graph. The input is copied,
// defaulted, and validated first; no node is built from an invalid
// spec. Build is deterministic: the same spec yields the same nodes,
// keys, and order on every call.
func Build(spec *v1alpha1.ServiceSpec) (*Graph, error) {
	s := spec.DeepCopy()
	s.SetDefaults()
	if err := validation.Validate(s); err != nil {
		return nil, err
	}

	if err := checkVolumeNames(s); err != nil {
		return nil, err
	}

	createIdentity := s.Identity.Mode == v1alpha1.IdentityModeCreate
	accountID := s.Identity.AccountID
	if accountID == "" {
		accountID = names.ServiceAccountID(s.Name)
	}

	identityEmail := s.Identity.Email
	if createIdentity {
		identityEmail = names.ServiceAccountEmail(accountID, s.Project)
	}

	serviceKey := ServiceKey(s.Name)
	accountKey := ServiceAccountKey(accountID)

	var candidates []candidate
	emit := func(n *Node, include bool) {
		candidates = append(candidates, candidate{node: n, include: include})
	}

	// The generated identity precedes the service so the service can
	// reference its address.
	emit(&Node{
		Key:     accountKey,
		Kind:    KindServiceAccount,
		Desired: buildServiceAccountDocument(s, accountID),
	}, createIdentity)

	serviceDeps := []string(nil)
	if createIdentity {
		serviceDeps = []string{accountKey}
	}
	emit(&Node{
		Key:          serviceKey,
		Kind:         KindService,
		Dependencies: serviceDeps,
		Desired:      buildServiceDocument(s, identityEmail),
	}, true)

	// Flatten the role -> principals multimap into one binding node per
	// (role, principal) pair. The backend's grant API is additive and
	// operates on single pairs; per-pair nodes let a later pass remove
	// one grant without disturbing grants managed outside this tool.
	for _, role := range sortedRoles(s.IAMGrants) {
		seen := sets.New[string]()
		for _, principal := range s.IAMGrants[role] {
			if seen.Has(principal) {
				continue
			}
			seen.Insert(principal)
			emit(&Node{
				Key:          IAMBindingKey(role, principal),
				Kind:         KindIAMBinding,
				Dependencies: []string{serviceKey},
				Desired:      buildBindingDocument(s, role, principal),
			}, true)
		}
	}

	// Secret access is granted to whichever identity the service runs
	// as; the grant hangs off the generated identity when there is one.
	grantDeps := []string{serviceKey}
	if createIdentity {
		grantDeps = []string{accountKey}
	}
	refs, err := collectSecretRefs(s)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		emit(&Node{
			Key:          SecretAccessKey(ref.project, ref.secret),
			Kind:         KindSecretAccess,
			Dependencies: grantDeps,
			Desired:      buildSecretAccessDocument(ref, identityEmail),
		}, true)
	}

	for _, domain := range s.Domains {
		emit(&Node{
			Key:          DomainMappingKey(domain),
			Kind:         KindDomainMapping,
			Dependencies: []string{serviceKey},
			Desired:      buildDomainDocument(s, domain),
		}, true)
	}

	return assemble(candidates, serviceKey, identityEmail)
}

// assemble filters excluded candidates, wires the DAG, and sorts it.
// A cycle here is a builder bug, not user error, so it surfaces as a
// ConsistencyFault.
func assemble(candidates []candidate, serviceKey, identityEmail string) (*Graph, error) {
	d := dag.NewDirectedAcyclicGraph[string]()
	nodes := make(map[string]*Node)

	index := 0
	for _, c := range candidates {
		if !c.include {
			continue
		}
		c.node.Index = index
		if err := d.AddVertex(c.node.Key, index); err != nil {
			return nil, fault("assemble", err)
		}
		nodes[c.node.Key] = c.node
		index++
	}

	for _, n := range nodes {
		deps := make([]string, 0, len(n.Dependencies))
		for _, dep := range n.Dependencies {
			// Edges to excluded nodes are dropped with the node.
			if _, ok := nodes[dep]; ok {
				deps = append(deps, dep)
			}
		}
		n.Dependencies = deps
		if len(deps) == 0 {
			continue
		}
		if err := d.AddDependencies(n.Key, deps); err != nil {
			return nil, fault("assemble", err)
		}
	}

	order, err := d.TopologicalSort()
	if err != nil {
		return nil, fault("sort", err)
	}

	return &Graph{
		DAG:              d,
		Nodes:            nodes,
		TopologicalOrder: order,
		ServiceKey:       serviceKey,
		IdentityEmail:    identityEmail,
	}, nil
}

// checkVolumeNames guards the derived-volume-name invariant: every
// secret volume in the service document must get a distinct name.
// Validation already rejects duplicate mount paths, so a collision
// here means the name derivation itself conflated two paths.
func checkVolumeNames(s *v1alpha1.ServiceSpec) error {
	byName := make(map[string]string, len(s.SecretVolumes))
	for _, sv := range s.SecretVolumes {
		name := names.VolumeName(sv.MountPath)
		if prior, dup := byName[name]; dup {
			return fault("volumes", fmt.Errorf(
				"mount paths %q and %q derive the same volume name %q", prior, sv.MountPath, name))
		}
		byName[name] = sv.MountPath
	}
	return nil
}

// secretRef is one resolved (project, secret) pair.
type secretRef struct {
	project string
	secret  string
}

// collectSecretRefs gathers every secret referenced by environment
// entries and volumes into a deduplicated, deterministic list. A
// secret referenced both ways still yields a single grant.
func collectSecretRefs(s *v1alpha1.ServiceSpec) ([]secretRef, error) {
	seen := sets.New[secretRef]()
	var refs []secretRef

	addRef := func(raw string) error {
		ref, err := parseSecretRef(raw, s.Project)
		if err != nil {
			return err
		}
		if seen.Has(ref) {
			return nil
		}
		seen.Insert(ref)
		refs = append(refs, ref)
		return nil
	}

	for _, e := range s.SecretEnv {
		if err := addRef(e.Secret); err != nil {
			return nil, err
		}
	}
	for _, v := range s.SecretVolumes {
		if err := addRef(v.Secret); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// parseSecretRef resolves a secret reference to its owning project.
// A reference containing a path separator must be fully qualified as
// "projects/<project>/secrets/<name>"; a bare name belongs to the
// spec's own project.
func parseSecretRef(raw, defaultProject string) (secretRef, error) {
	if !strings.Contains(raw, "/") {
		return secretRef{project: defaultProject, secret: raw}, nil
	}
	parts := strings.Split(raw, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "secrets" || parts[1] == "" || parts[3] == "" {
		return secretRef{}, precondition(
			"secret/"+raw, "secrets.malformedReference",
			"secret reference %q must be a bare name or \"projects/<project>/secrets/<name>\"", raw)
	}
	return secretRef{project: parts[1], secret: parts[3]}, nil
}

func sortedRoles(grants map[string][]string) []string {
	roles := maps.Keys(grants)
	sort.Strings(roles)
	return roles
}

// buildServiceDocument computes the derived desired-state payload for
// the run service: merged environment, generated volume names, probe
// and network blocks.
func buildServiceDocument(s *v1alpha1.ServiceSpec, identityEmail string) map[string]interface{} {
	container := map[string]interface{}{
		"image": s.Container.Image,
		"ports": []interface{}{
			map[string]interface{}{"containerPort": s.Container.Port},
		},
		"resources": map[string]interface{}{
			"limits": map[string]interface{}{
				"cpu":    s.Resources.CPULimit,
				"memory": s.Resources.MemoryLimit,
			},
			"cpuIdle":         *s.Resources.CPUIdle,
			"startupCpuBoost": s.Resources.StartupCPUBoost,
		},
	}
	if len(s.Container.Command) > 0 {
		container["command"] = toInterfaceSlice(s.Container.Command)
	}
	if len(s.Container.Args) > 0 {
		container["args"] = toInterfaceSlice(s.Container.Args)
	}

	if env := buildEnvList(s); len(env) > 0 {
		container["env"] = env
	}

	var volumes []interface{}
	var mounts []interface{}
	for _, sv := range s.SecretVolumes {
		volName := names.VolumeName(sv.MountPath)
		mounts = append(mounts, map[string]interface{}{
			"name":      volName,
			"mountPath": sv.MountPath,
		})
		items := make([]interface{}, 0, len(sv.Items))
		for _, item := range sv.Items {
			items = append(items, map[string]interface{}{
				"path":    item.Filename,
				"version": item.Version,
			})
		}
		volume := map[string]interface{}{
			"name": volName,
			"secret": map[string]interface{}{
				"secret": sv.Secret,
			},
		}
		if len(items) > 0 {
			volume["secret"].(map[string]interface{})["items"] = items
		}
		volumes = append(volumes, volume)
	}
	if len(mounts) > 0 {
		container["volumeMounts"] = mounts
	}

	if s.Probes != nil {
		if p := buildProbeDocument(s.Probes.Startup); p != nil {
			container["startupProbe"] = p
		}
		if p := buildProbeDocument(s.Probes.Liveness); p != nil {
			container["livenessProbe"] = p
		}
	}

	template := map[string]interface{}{
		"containers": []interface{}{container},
		"scaling": map[string]interface{}{
			"minInstanceCount": s.Scaling.MinInstanceCount,
			"maxInstanceCount": s.Scaling.MaxInstanceCount,
		},
		"maxInstanceRequestConcurrency": s.Scaling.Concurrency,
		"timeout":                       fmt.Sprintf("%ds", s.RequestTimeoutSeconds),
		"serviceAccount":                identityEmail,
	}
	if len(volumes) > 0 {
		template["volumes"] = volumes
	}
	if s.VPC != nil {
		template["vpcAccess"] = map[string]interface{}{
			"connector": s.VPC.Connector,
			"egress":    egressValue(s.VPC.Egress),
		}
	}

	doc := map[string]interface{}{
		"name":     s.Name,
		"project":  s.Project,
		"location": s.Location,
		"ingress":  ingressValue(s.Ingress),
		"template": template,
	}
	if len(s.Labels) > 0 {
		labels := make(map[string]interface{}, len(s.Labels))
		for k, v := range s.Labels {
			labels[k] = v
		}
		doc["labels"] = labels
	}
	return doc
}

// buildEnvList merges plain and secret-backed entries into a single
// deterministic environment list: plain entries first, then secret
// entries, each in spec order. Name uniqueness across both lists is
// guaranteed by validation.
func buildEnvList(s *v1alpha1.ServiceSpec) []interface{} {
	env := make([]interface{}, 0, len(s.Env)+len(s.SecretEnv))
	for _, e := range s.Env {
		env = append(env, map[string]interface{}{
			"name":  e.Name,
			"value": e.Value,
		})
	}
	for _, e := range s.SecretEnv {
		env = append(env, map[string]interface{}{
			"name": e.Name,
			"valueSource": map[string]interface{}{
				"secretKeyRef": map[string]interface{}{
					"secret":  e.Secret,
					"version": e.Version,
				},
			},
		})
	}
	return env
}

func buildProbeDocument(p *v1alpha1.Probe) map[string]interface{} {
	if p == nil {
		return nil
	}
	doc := map[string]interface{}{
		"initialDelaySeconds": p.InitialDelaySeconds,
		"timeoutSeconds":      p.TimeoutSeconds,
		"periodSeconds":       p.PeriodSeconds,
		"failureThreshold":    p.FailureThreshold,
	}
	switch {
	case p.HTTPGet != nil:
		doc["httpGet"] = map[string]interface{}{
			"path": p.HTTPGet.Path,
			"port": p.HTTPGet.Port,
		}
	case p.TCPSocket != nil:
		doc["tcpSocket"] = map[string]interface{}{
			"port": p.TCPSocket.Port,
		}
	case p.GRPC != nil:
		doc["grpc"] = map[string]interface{}{
			"service": p.GRPC.Service,
			"port":    p.GRPC.Port,
		}
	}
	return doc
}

func buildServiceAccountDocument(s *v1alpha1.ServiceSpec, accountID string) map[string]interface{} {
	return map[string]interface{}{
		"accountId":   accountID,
		"project":     s.Project,
		"displayName": fmt.Sprintf("Runtime identity for run service %s", s.Name),
	}
}

func buildBindingDocument(s *v1alpha1.ServiceSpec, role, principal string) map[string]interface{} {
	return map[string]interface{}{
		"service":  s.Name,
		"project":  s.Project,
		"location": s.Location,
		"role":     role,
		"member":   principal,
	}
}

func buildSecretAccessDocument(ref secretRef, identityEmail string) map[string]interface{} {
	return map[string]interface{}{
		"project": ref.project,
		"secret":  ref.secret,
		"role":    SecretAccessorRole,
		"member":  "serviceAccount:" + identityEmail,
	}
}

func buildDomainDocument(s *v1alpha1.ServiceSpec, domain string) map[string]interface{} {
	return map[string]interface{}{
		"domain":   domain,
		"project":  s.Project,
		"location": s.Location,
		"service":  s.Name,
	}
}

func ingressValue(p v1alpha1.IngressPolicy) string {
	switch p {
	case v1alpha1.IngressInternal:
		return "INGRESS_TRAFFIC_INTERNAL_ONLY"
	case v1alpha1.IngressInternalAndCloudLB:
		return "INGRESS_TRAFFIC_INTERNAL_LOAD_BALANCER"
	default:
		return "INGRESS_TRAFFIC_ALL"
	}
}

func egressValue(p v1alpha1.EgressPolicy) string {
	if p == v1alpha1.EgressAllTraffic {
		return "ALL_TRAFFIC"
	}
	return "PRIVATE_RANGES_ONLY"
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
