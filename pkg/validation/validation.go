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

// Package validation checks a fully defaulted ServiceSpec against the
// structural and cross-field invariants of the configuration model.
// Every check runs; a single Validate call reports every violation at
// once rather than stopping at the first one.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	utilvalidation "k8s.io/apimachinery/pkg/util/validation"

	"github.com/cloudrun-tools/runr/api/v1alpha1"
)

// Machine-readable violation codes. These are stable across releases;
// callers may branch on them.
const (
	CodeNameRequired       = "service.nameRequired"
	CodeNameInvalid        = "service.nameInvalid"
	CodeProjectRequired    = "service.projectRequired"
	CodeLocationRequired   = "service.locationRequired"
	CodeTimeoutOutOfRange  = "service.timeoutOutOfRange"
	CodeImageRequired      = "container.imageRequired"
	CodePortOutOfRange     = "container.portOutOfRange"
	CodeMinAboveMax        = "scaling.minAboveMax"
	CodeNegativeMin        = "scaling.negativeMinInstanceCount"
	CodeConcurrencyInvalid = "scaling.nonPositiveConcurrency"
	CodeDuplicateEnvName   = "env.duplicateName"
	CodeEnvNameRequired    = "env.nameRequired"
	CodeSecretRefRequired  = "secrets.referenceRequired"
	CodeDuplicateMount     = "volumes.duplicateMountPath"
	CodeRelativeMount      = "volumes.relativeMountPath"
	CodeProbeHandler       = "probes.exactlyOneHandler"
	CodeProbeNegativeField = "probes.negativeField"
	CodeIngressInvalid     = "ingress.invalidPolicy"
	CodeEgressInvalid      = "vpc.invalidEgressPolicy"
	CodeConnectorRequired  = "vpc.connectorRequired"
	CodeIdentityMode       = "identity.invalidMode"
	CodeIdentityEmail      = "identity.emailRequired"
	CodeIdentityConflict   = "identity.conflictingEmail"
	CodeIdentityAccountID  = "identity.invalidAccountID"
	CodeEmptyRole          = "iam.emptyRole"
	CodeEmptyPrincipal     = "iam.emptyPrincipal"
	CodeBadPrincipal       = "iam.malformedPrincipal"
	CodeDomainRequired     = "domains.emptyDomain"
	CodeDuplicateDomain    = "domains.duplicateDomain"
	CodeLabelKeyInvalid    = "labels.invalidKey"
	CodeLabelValueInvalid  = "labels.invalidValue"
)

// Violation is one failed invariant: a stable code, the path of the
// offending field, and a human-readable message.
type Violation struct {
	Code    string
	Path    string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Path, v.Message, v.Code)
}

// Error aggregates every violation found in one Validate call.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Codes returns the set of violation codes present in the error.
func (e *Error) Codes() sets.Set[string] {
	out := sets.New[string]()
	for _, v := range e.Violations {
		out.Insert(v.Code)
	}
	return out
}

// AsError returns the *Error in err's chain, or nil.
func AsError(err error) *Error {
	var ve *Error
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

var (
	// Service names follow RFC 1035 label rules (lower-case letter
	// first, then letters, digits, hyphens).
	labelKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

	validIngress = sets.New(
		v1alpha1.IngressAll,
		v1alpha1.IngressInternal,
		v1alpha1.IngressInternalAndCloudLB,
	)
	validEgress = sets.New(
		v1alpha1.EgressAllTraffic,
		v1alpha1.EgressPrivateRangesOnly,
	)
	validIdentityModes = sets.New(
		v1alpha1.IdentityModeCreate,
		v1alpha1.IdentityModeExisting,
	)

	// Principals without a "type:" prefix that the platform accepts.
	bareWellKnownPrincipals = sets.New("allUsers", "allAuthenticatedUsers")
)

// Validate checks the spec and returns a *Error listing every
// violation, or nil if the spec is valid. The spec is expected to be
// defaulted already; Validate does not mutate it.
func Validate(spec *v1alpha1.ServiceSpec) error {
	var c collector

	c.checkIdentity(spec)
	c.checkService(spec)
	c.checkContainer(spec)
	c.checkScaling(spec)
	c.checkNetwork(spec)
	c.checkEnv(spec)
	c.checkVolumes(spec)
	c.checkProbes(spec)
	c.checkIAMGrants(spec)
	c.checkDomains(spec)
	c.checkLabels(spec)

	if len(c.violations) == 0 {
		return nil
	}
	return &Error{Violations: c.violations}
}

type collector struct {
	violations []Violation
}

func (c *collector) add(code, path, format string, args ...any) {
	c.violations = append(c.violations, Violation{
		Code:    code,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
	})
}

func (c *collector) checkService(spec *v1alpha1.ServiceSpec) {
	if spec.Name == "" {
		c.add(CodeNameRequired, "name", "service name is required")
	} else if errs := utilvalidation.IsDNS1035Label(spec.Name); len(errs) > 0 {
		c.add(CodeNameInvalid, "name", "invalid service name %q: %s", spec.Name, errs[0])
	}
	if spec.Project == "" {
		c.add(CodeProjectRequired, "project", "project is required")
	}
	if spec.Location == "" {
		c.add(CodeLocationRequired, "location", "location is required")
	}
	if spec.RequestTimeoutSeconds < 1 || spec.RequestTimeoutSeconds > 3600 {
		c.add(CodeTimeoutOutOfRange, "requestTimeoutSeconds",
			"request timeout must be between 1 and 3600 seconds, got %d", spec.RequestTimeoutSeconds)
	}
}

func (c *collector) checkContainer(spec *v1alpha1.ServiceSpec) {
	if spec.Container.Image == "" {
		c.add(CodeImageRequired, "container.image", "container image is required")
	}
	if spec.Container.Port < 1 || spec.Container.Port > 65535 {
		c.add(CodePortOutOfRange, "container.port",
			"container port must be between 1 and 65535, got %d", spec.Container.Port)
	}
}

func (c *collector) checkScaling(spec *v1alpha1.ServiceSpec) {
	if spec.Scaling.MinInstanceCount < 0 {
		c.add(CodeNegativeMin, "scaling.minInstanceCount",
			"minimum instance count must not be negative, got %d", spec.Scaling.MinInstanceCount)
	}
	if spec.Scaling.MinInstanceCount > spec.Scaling.MaxInstanceCount {
		c.add(CodeMinAboveMax, "scaling.minInstanceCount",
			"minimum instance count %d exceeds maximum %d",
			spec.Scaling.MinInstanceCount, spec.Scaling.MaxInstanceCount)
	}
	if spec.Scaling.Concurrency <= 0 {
		c.add(CodeConcurrencyInvalid, "scaling.concurrency",
			"concurrency must be positive, got %d", spec.Scaling.Concurrency)
	}
}

func (c *collector) checkNetwork(spec *v1alpha1.ServiceSpec) {
	if !validIngress.Has(spec.Ingress) {
		c.add(CodeIngressInvalid, "ingress", "unknown ingress policy %q", spec.Ingress)
	}
	if spec.VPC != nil {
		if spec.VPC.Connector == "" {
			c.add(CodeConnectorRequired, "vpc.connector", "a VPC connector reference is required")
		}
		if !validEgress.Has(spec.VPC.Egress) {
			c.add(CodeEgressInvalid, "vpc.egress", "unknown egress policy %q", spec.VPC.Egress)
		}
	}
}

// checkEnv enforces that environment variable names are unique across
// plain and secret-backed entries.
func (c *collector) checkEnv(spec *v1alpha1.ServiceSpec) {
	seen := sets.New[string]()
	for i, e := range spec.Env {
		path := fmt.Sprintf("env[%d].name", i)
		if e.Name == "" {
			c.add(CodeEnvNameRequired, path, "environment variable name is required")
			continue
		}
		if seen.Has(e.Name) {
			c.add(CodeDuplicateEnvName, path, "duplicate environment variable %q", e.Name)
		}
		seen.Insert(e.Name)
	}
	for i, e := range spec.SecretEnv {
		path := fmt.Sprintf("secretEnv[%d]", i)
		if e.Name == "" {
			c.add(CodeEnvNameRequired, path+".name", "environment variable name is required")
		} else {
			if seen.Has(e.Name) {
				c.add(CodeDuplicateEnvName, path+".name", "duplicate environment variable %q", e.Name)
			}
			seen.Insert(e.Name)
		}
		if e.Secret == "" {
			c.add(CodeSecretRefRequired, path+".secret", "secret reference is required")
		}
	}
}

// checkVolumes enforces that no two secret volumes resolve to the same
// mount directory; the backend cannot mount two volumes at one path.
func (c *collector) checkVolumes(spec *v1alpha1.ServiceSpec) {
	seen := sets.New[string]()
	for i, v := range spec.SecretVolumes {
		path := fmt.Sprintf("secretVolumes[%d]", i)
		if !strings.HasPrefix(v.MountPath, "/") {
			c.add(CodeRelativeMount, path+".mountPath",
				"mount path %q must be absolute", v.MountPath)
		}
		if seen.Has(v.MountPath) {
			c.add(CodeDuplicateMount, path+".mountPath",
				"duplicate mount path %q", v.MountPath)
		}
		seen.Insert(v.MountPath)
		if v.Secret == "" {
			c.add(CodeSecretRefRequired, path+".secret", "secret reference is required")
		}
	}
}

func (c *collector) checkProbes(spec *v1alpha1.ServiceSpec) {
	if spec.Probes == nil {
		return
	}
	c.checkProbe(spec.Probes.Startup, "probes.startup")
	c.checkProbe(spec.Probes.Liveness, "probes.liveness")
}

// checkProbe enforces that a probe specifies exactly one check
// mechanism: http xor tcp xor grpc.
func (c *collector) checkProbe(p *v1alpha1.Probe, path string) {
	if p == nil {
		return
	}
	handlers := 0
	if p.HTTPGet != nil {
		handlers++
	}
	if p.TCPSocket != nil {
		handlers++
	}
	if p.GRPC != nil {
		handlers++
	}
	if handlers != 1 {
		c.add(CodeProbeHandler, path,
			"probe must specify exactly one of httpGet, tcpSocket, or grpc, got %d", handlers)
	}
	if p.InitialDelaySeconds < 0 || p.TimeoutSeconds < 0 || p.PeriodSeconds < 0 || p.FailureThreshold < 0 {
		c.add(CodeProbeNegativeField, path, "probe timing fields must not be negative")
	}
}

// checkIdentity resolves the identity precedence rule explicitly: an
// identity is either created or brought by the caller, never both.
// Mode "existing" requires an email; mode "create" rejects one.
func (c *collector) checkIdentity(spec *v1alpha1.ServiceSpec) {
	id := spec.Identity
	if !validIdentityModes.Has(id.Mode) {
		c.add(CodeIdentityMode, "identity.mode", "unknown identity mode %q", id.Mode)
		return
	}
	switch id.Mode {
	case v1alpha1.IdentityModeExisting:
		if id.Email == "" {
			c.add(CodeIdentityEmail, "identity.email",
				"an email is required when using an existing identity")
		}
	case v1alpha1.IdentityModeCreate:
		if id.Email != "" {
			c.add(CodeIdentityConflict, "identity.email",
				"email must not be set when creating an identity; use mode %q to bring your own",
				v1alpha1.IdentityModeExisting)
		}
		if id.AccountID != "" {
			if len(id.AccountID) < 6 || len(id.AccountID) > 30 {
				c.add(CodeIdentityAccountID, "identity.accountId",
					"account ID must be between 6 and 30 characters, got %d", len(id.AccountID))
			} else if errs := utilvalidation.IsDNS1035Label(id.AccountID); len(errs) > 0 {
				c.add(CodeIdentityAccountID, "identity.accountId",
					"invalid account ID %q: %s", id.AccountID, errs[0])
			}
		}
	}
}

func (c *collector) checkIAMGrants(spec *v1alpha1.ServiceSpec) {
	for role, principals := range spec.IAMGrants {
		if role == "" {
			c.add(CodeEmptyRole, "iamGrants", "role must not be empty")
		}
		for i, principal := range principals {
			path := fmt.Sprintf("iamGrants[%q][%d]", role, i)
			if principal == "" {
				c.add(CodeEmptyPrincipal, path, "principal must not be empty")
				continue
			}
			if !strings.Contains(principal, ":") && !bareWellKnownPrincipals.Has(principal) {
				c.add(CodeBadPrincipal, path,
					"principal %q must be prefixed with its type (e.g. \"user:\", \"serviceAccount:\")",
					principal)
			}
		}
	}
}

func (c *collector) checkDomains(spec *v1alpha1.ServiceSpec) {
	seen := sets.New[string]()
	for i, d := range spec.Domains {
		path := fmt.Sprintf("domains[%d]", i)
		if d == "" {
			c.add(CodeDomainRequired, path, "domain must not be empty")
			continue
		}
		if seen.Has(d) {
			c.add(CodeDuplicateDomain, path, "duplicate domain %q", d)
		}
		seen.Insert(d)
	}
}

func (c *collector) checkLabels(spec *v1alpha1.ServiceSpec) {
	for k, v := range spec.Labels {
		if !labelKeyPattern.MatchString(k) {
			c.add(CodeLabelKeyInvalid, fmt.Sprintf("labels[%q]", k), "invalid label key %q", k)
		}
		if errs := utilvalidation.IsValidLabelValue(v); len(errs) > 0 {
			c.add(CodeLabelValueInvalid, fmt.Sprintf("labels[%q]", k),
				"invalid label value %q: %s", v, errs[0])
		}
	}
}
