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

package v1alpha1

// Default values applied to omitted optional fields. Defaulting is
// idempotent: applying it to an already-defaulted spec is a no-op.
const (
	DefaultPort                  int64 = 8080
	DefaultCPULimit                    = "1000m"
	DefaultMemoryLimit                 = "512Mi"
	DefaultMaxInstanceCount      int64 = 100
	DefaultConcurrency           int64 = 80
	DefaultRequestTimeoutSeconds int64 = 300
	DefaultSecretVersion               = "latest"

	DefaultProbeTimeoutSeconds   int64 = 1
	DefaultProbePeriodSeconds    int64 = 10
	DefaultProbeFailureThreshold int64 = 3
)

// SetDefaults fills every omitted optional field with its declared
// default. It never overwrites a value the caller supplied.
func (s *ServiceSpec) SetDefaults() {
	if s.Container.Port == 0 {
		s.Container.Port = DefaultPort
	}
	if s.Resources.CPULimit == "" {
		s.Resources.CPULimit = DefaultCPULimit
	}
	if s.Resources.MemoryLimit == "" {
		s.Resources.MemoryLimit = DefaultMemoryLimit
	}
	if s.Resources.CPUIdle == nil {
		idle := true
		s.Resources.CPUIdle = &idle
	}
	if s.Scaling.MaxInstanceCount == 0 {
		s.Scaling.MaxInstanceCount = DefaultMaxInstanceCount
	}
	if s.Scaling.Concurrency == 0 {
		s.Scaling.Concurrency = DefaultConcurrency
	}
	if s.RequestTimeoutSeconds == 0 {
		s.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if s.Ingress == "" {
		s.Ingress = IngressAll
	}
	if s.VPC != nil && s.VPC.Egress == "" {
		s.VPC.Egress = EgressPrivateRangesOnly
	}
	if s.Identity.Mode == "" {
		s.Identity.Mode = IdentityModeCreate
	}

	for i := range s.SecretEnv {
		if s.SecretEnv[i].Version == "" {
			s.SecretEnv[i].Version = DefaultSecretVersion
		}
	}
	for i := range s.SecretVolumes {
		for j := range s.SecretVolumes[i].Items {
			if s.SecretVolumes[i].Items[j].Version == "" {
				s.SecretVolumes[i].Items[j].Version = DefaultSecretVersion
			}
		}
	}

	if s.Probes != nil {
		s.Probes.Startup.setDefaults()
		s.Probes.Liveness.setDefaults()
	}
}

func (p *Probe) setDefaults() {
	if p == nil {
		return
	}
	if p.TimeoutSeconds == 0 {
		p.TimeoutSeconds = DefaultProbeTimeoutSeconds
	}
	if p.PeriodSeconds == 0 {
		p.PeriodSeconds = DefaultProbePeriodSeconds
	}
	if p.FailureThreshold == 0 {
		p.FailureThreshold = DefaultProbeFailureThreshold
	}
}
