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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalSpec() *ServiceSpec {
	return &ServiceSpec{
		Name:     "billing-api",
		Project:  "acme-prod",
		Location: "europe-west1",
		Container: ContainerSpec{
			Image: "gcr.io/acme/billing:v3",
		},
	}
}

func TestSetDefaults(t *testing.T) {
	s := minimalSpec()
	s.SetDefaults()

	assert.Equal(t, DefaultPort, s.Container.Port)
	assert.Equal(t, DefaultCPULimit, s.Resources.CPULimit)
	assert.Equal(t, DefaultMemoryLimit, s.Resources.MemoryLimit)
	require.NotNil(t, s.Resources.CPUIdle)
	assert.True(t, *s.Resources.CPUIdle)
	assert.Equal(t, int64(0), s.Scaling.MinInstanceCount)
	assert.Equal(t, DefaultMaxInstanceCount, s.Scaling.MaxInstanceCount)
	assert.Equal(t, DefaultConcurrency, s.Scaling.Concurrency)
	assert.Equal(t, DefaultRequestTimeoutSeconds, s.RequestTimeoutSeconds)
	assert.Equal(t, IngressAll, s.Ingress)
	assert.Equal(t, IdentityModeCreate, s.Identity.Mode)
	assert.Nil(t, s.VPC)
}

func TestSetDefaultsPreservesExplicitValues(t *testing.T) {
	idle := false
	s := minimalSpec()
	s.Container.Port = 9000
	s.Resources = ResourcesSpec{CPULimit: "2", MemoryLimit: "1Gi", CPUIdle: &idle}
	s.Scaling = ScalingSpec{MinInstanceCount: 1, MaxInstanceCount: 5, Concurrency: 10}
	s.Ingress = IngressInternal
	s.Identity.Mode = IdentityModeExisting

	s.SetDefaults()

	assert.Equal(t, int64(9000), s.Container.Port)
	assert.Equal(t, "2", s.Resources.CPULimit)
	assert.Equal(t, "1Gi", s.Resources.MemoryLimit)
	assert.False(t, *s.Resources.CPUIdle)
	assert.Equal(t, int64(5), s.Scaling.MaxInstanceCount)
	assert.Equal(t, int64(10), s.Scaling.Concurrency)
	assert.Equal(t, IngressInternal, s.Ingress)
	assert.Equal(t, IdentityModeExisting, s.Identity.Mode)
}

func TestSetDefaultsNestedFields(t *testing.T) {
	s := minimalSpec()
	s.VPC = &VPCSpec{Connector: "projects/acme-prod/locations/europe-west1/connectors/main"}
	s.SecretEnv = []SecretEnvVar{
		{Name: "DB_PASSWORD", Secret: "db-password"},
		{Name: "API_KEY", Secret: "api-key", Version: "4"},
	}
	s.SecretVolumes = []SecretVolume{
		{MountPath: "/etc/certs", Secret: "tls", Items: []SecretVolumeItem{{Filename: "tls.crt"}}},
	}
	s.Probes = &ProbesSpec{
		Startup: &Probe{HTTPGet: &HTTPGetAction{Path: "/healthz"}},
	}

	s.SetDefaults()

	assert.Equal(t, EgressPrivateRangesOnly, s.VPC.Egress)
	assert.Equal(t, DefaultSecretVersion, s.SecretEnv[0].Version)
	assert.Equal(t, "4", s.SecretEnv[1].Version)
	assert.Equal(t, DefaultSecretVersion, s.SecretVolumes[0].Items[0].Version)
	assert.Equal(t, DefaultProbeTimeoutSeconds, s.Probes.Startup.TimeoutSeconds)
	assert.Equal(t, DefaultProbePeriodSeconds, s.Probes.Startup.PeriodSeconds)
	assert.Equal(t, DefaultProbeFailureThreshold, s.Probes.Startup.FailureThreshold)
	assert.Nil(t, s.Probes.Liveness)
}

func TestSetDefaultsIsIdempotent(t *testing.T) {
	s := minimalSpec()
	s.VPC = &VPCSpec{Connector: "conn"}
	s.SecretEnv = []SecretEnvVar{{Name: "TOKEN", Secret: "token"}}
	s.Probes = &ProbesSpec{Liveness: &Probe{TCPSocket: &TCPSocketAction{Port: 8080}}}

	s.SetDefaults()
	once := s.DeepCopy()
	s.SetDefaults()
	assert.Equal(t, once, s)
}

func TestDeepCopyIsIndependent(t *testing.T) {
	s := minimalSpec()
	s.Labels = map[string]string{"team": "billing"}
	s.Env = []EnvVar{{Name: "MODE", Value: "prod"}}
	s.IAMGrants = map[string][]string{"roles/run.invoker": {"allUsers"}}
	s.SetDefaults()

	cp := s.DeepCopy()
	cp.Labels["team"] = "other"
	cp.Env[0].Value = "dev"
	cp.IAMGrants["roles/run.invoker"][0] = "user:x@example.com"
	*cp.Resources.CPUIdle = false

	assert.Equal(t, "billing", s.Labels["team"])
	assert.Equal(t, "prod", s.Env[0].Value)
	assert.Equal(t, "allUsers", s.IAMGrants["roles/run.invoker"][0])
	assert.True(t, *s.Resources.CPUIdle)
}
