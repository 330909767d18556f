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

// Package v1alpha1 contains the typed configuration model for a run
// service deployment: the container, its scaling and network posture,
// plain and secret-backed environment, health checks, identity, and
// IAM grants. A ServiceSpec is the sole input to one reconciliation
// pass; it is treated as immutable for the duration of the pass.
package v1alpha1

// IngressPolicy restricts where requests to the service may originate.
type IngressPolicy string

const (
	IngressAll                IngressPolicy = "all"
	IngressInternal           IngressPolicy = "internal"
	IngressInternalAndCloudLB IngressPolicy = "internal-and-cloud-load-balancing"
)

// EgressPolicy selects which outbound traffic is routed through the
// VPC connector.
type EgressPolicy string

const (
	EgressAllTraffic        EgressPolicy = "all-traffic"
	EgressPrivateRangesOnly EgressPolicy = "private-ranges-only"
)

// IdentityMode selects how the service's runtime identity is obtained.
type IdentityMode string

const (
	// IdentityModeCreate provisions a dedicated service account whose ID
	// is derived from the service name (or the AccountID override).
	IdentityModeCreate IdentityMode = "create"
	// IdentityModeExisting binds the service to a caller-supplied
	// service account; Email must be set.
	IdentityModeExisting IdentityMode = "existing"
)

// ServiceSpec is the user-supplied configuration tree for one
// deployable run service and its supporting resources.
type ServiceSpec struct {
	// Name is the service name. Required.
	Name string `json:"name"`
	// Project is the project that owns the service and, by default,
	// any referenced secrets. Required.
	Project string `json:"project"`
	// Location is the region the service is deployed into. Required.
	Location string `json:"location"`

	// Labels are attached to the service resource.
	Labels map[string]string `json:"labels,omitempty"`

	Container ContainerSpec `json:"container"`
	Resources ResourcesSpec `json:"resources,omitempty"`
	Scaling   ScalingSpec   `json:"scaling,omitempty"`

	// RequestTimeoutSeconds bounds how long a single request may run.
	RequestTimeoutSeconds int64 `json:"requestTimeoutSeconds,omitempty"`

	// Ingress is the inbound traffic policy.
	Ingress IngressPolicy `json:"ingress,omitempty"`
	// VPC optionally routes egress through a VPC connector.
	VPC *VPCSpec `json:"vpc,omitempty"`

	// Env is the list of plain key/value environment entries.
	Env []EnvVar `json:"env,omitempty"`
	// SecretEnv is the list of secret-backed environment entries.
	// Names must be unique across Env and SecretEnv.
	SecretEnv []SecretEnvVar `json:"secretEnv,omitempty"`
	// SecretVolumes mounts secret material as files. Mount paths must
	// be unique.
	SecretVolumes []SecretVolume `json:"secretVolumes,omitempty"`

	Probes *ProbesSpec `json:"probes,omitempty"`

	Identity IdentitySpec `json:"identity,omitempty"`

	// IAMGrants maps a role to the set of principals granted that role
	// on the service (e.g. "roles/run.invoker" -> ["user:a@example.com"]).
	IAMGrants map[string][]string `json:"iamGrants,omitempty"`

	// Domains lists custom domains mapped to the service.
	Domains []string `json:"domains,omitempty"`
}

// ContainerSpec describes the serving container.
type ContainerSpec struct {
	// Image is the container image reference. Required.
	Image string `json:"image"`
	// Command overrides the image entrypoint.
	Command []string `json:"command,omitempty"`
	// Args are passed to the entrypoint.
	Args []string `json:"args,omitempty"`
	// Port is the container port receiving requests.
	Port int64 `json:"port,omitempty"`
}

// ResourcesSpec sets per-instance compute limits.
type ResourcesSpec struct {
	// CPULimit is the CPU limit, e.g. "1000m" or "2".
	CPULimit string `json:"cpuLimit,omitempty"`
	// MemoryLimit is the memory limit, e.g. "512Mi".
	MemoryLimit string `json:"memoryLimit,omitempty"`
	// CPUIdle throttles CPU outside of request processing.
	CPUIdle *bool `json:"cpuIdle,omitempty"`
	// StartupCPUBoost grants extra CPU during container startup.
	StartupCPUBoost bool `json:"startupCpuBoost,omitempty"`
}

// ScalingSpec bounds the instance count and per-instance concurrency.
type ScalingSpec struct {
	MinInstanceCount int64 `json:"minInstanceCount,omitempty"`
	MaxInstanceCount int64 `json:"maxInstanceCount,omitempty"`
	// Concurrency is the maximum number of concurrent requests an
	// instance serves. Must be positive.
	Concurrency int64 `json:"concurrency,omitempty"`
}

// VPCSpec routes egress traffic through a VPC connector.
type VPCSpec struct {
	// Connector is the connector reference. Required when VPC is set.
	Connector string `json:"connector"`
	// Egress selects which traffic uses the connector.
	Egress EgressPolicy `json:"egress,omitempty"`
}

// EnvVar is a plain environment entry.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// SecretEnvVar sources an environment variable from a secret version.
// Secret is either a bare secret name (resolved in the spec's project)
// or a fully qualified "projects/<project>/secrets/<name>" reference.
type SecretEnvVar struct {
	Name    string `json:"name"`
	Secret  string `json:"secret"`
	Version string `json:"version,omitempty"`
}

// SecretVolume mounts versions of one secret as files under MountPath.
type SecretVolume struct {
	MountPath string             `json:"mountPath"`
	Secret    string             `json:"secret"`
	Items     []SecretVolumeItem `json:"items,omitempty"`
}

// SecretVolumeItem maps a filename inside the mount to a secret version.
type SecretVolumeItem struct {
	Filename string `json:"filename"`
	Version  string `json:"version,omitempty"`
}

// ProbesSpec holds the optional health-check probes.
type ProbesSpec struct {
	Startup  *Probe `json:"startup,omitempty"`
	Liveness *Probe `json:"liveness,omitempty"`
}

// Probe describes one health check. Exactly one of HTTPGet, TCPSocket,
// or GRPC must be set.
type Probe struct {
	InitialDelaySeconds int64 `json:"initialDelaySeconds,omitempty"`
	TimeoutSeconds      int64 `json:"timeoutSeconds,omitempty"`
	PeriodSeconds       int64 `json:"periodSeconds,omitempty"`
	FailureThreshold    int64 `json:"failureThreshold,omitempty"`

	HTTPGet   *HTTPGetAction   `json:"httpGet,omitempty"`
	TCPSocket *TCPSocketAction `json:"tcpSocket,omitempty"`
	GRPC      *GRPCAction      `json:"grpc,omitempty"`
}

// HTTPGetAction probes an HTTP endpoint.
type HTTPGetAction struct {
	Path string `json:"path,omitempty"`
	Port int64  `json:"port,omitempty"`
}

// TCPSocketAction probes a TCP port.
type TCPSocketAction struct {
	Port int64 `json:"port,omitempty"`
}

// GRPCAction probes a gRPC health-check service.
type GRPCAction struct {
	Service string `json:"service,omitempty"`
	Port    int64  `json:"port,omitempty"`
}

// IdentitySpec selects the service's runtime identity.
type IdentitySpec struct {
	// Mode is "create" (default) or "existing".
	Mode IdentityMode `json:"mode,omitempty"`
	// Email is the existing service account address. Required when
	// Mode is "existing"; must be empty when Mode is "create".
	Email string `json:"email,omitempty"`
	// AccountID overrides the derived account ID for created
	// identities.
	AccountID string `json:"accountId,omitempty"`
}

// DeepCopy returns a deep copy of the spec. Reconciliation passes copy
// the caller's spec before defaulting so the input stays untouched.
func (s *ServiceSpec) DeepCopy() *ServiceSpec {
	if s == nil {
		return nil
	}
	out := *s

	out.Labels = copyStringMap(s.Labels)
	out.Container.Command = copyStrings(s.Container.Command)
	out.Container.Args = copyStrings(s.Container.Args)

	if s.Resources.CPUIdle != nil {
		v := *s.Resources.CPUIdle
		out.Resources.CPUIdle = &v
	}
	if s.VPC != nil {
		v := *s.VPC
		out.VPC = &v
	}

	out.Env = append([]EnvVar(nil), s.Env...)
	out.SecretEnv = append([]SecretEnvVar(nil), s.SecretEnv...)
	if s.SecretVolumes != nil {
		out.SecretVolumes = make([]SecretVolume, len(s.SecretVolumes))
		for i, sv := range s.SecretVolumes {
			cp := sv
			cp.Items = append([]SecretVolumeItem(nil), sv.Items...)
			out.SecretVolumes[i] = cp
		}
	}

	if s.Probes != nil {
		out.Probes = &ProbesSpec{
			Startup:  s.Probes.Startup.deepCopy(),
			Liveness: s.Probes.Liveness.deepCopy(),
		}
	}

	if s.IAMGrants != nil {
		out.IAMGrants = make(map[string][]string, len(s.IAMGrants))
		for role, principals := range s.IAMGrants {
			out.IAMGrants[role] = copyStrings(principals)
		}
	}
	out.Domains = copyStrings(s.Domains)

	return &out
}

func (p *Probe) deepCopy() *Probe {
	if p == nil {
		return nil
	}
	out := *p
	if p.HTTPGet != nil {
		v := *p.HTTPGet
		out.HTTPGet = &v
	}
	if p.TCPSocket != nil {
		v := *p.TCPSocket
		out.TCPSocket = &v
	}
	if p.GRPC != nil {
		v := *p.GRPC
		out.GRPC = &v
	}
	return &out
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
