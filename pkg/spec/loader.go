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

// Package spec loads service specifications from YAML or JSON
// documents.
package spec

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/cloudrun-tools/runr/api/v1alpha1"
	"github.com/cloudrun-tools/runr/pkg/validation"
)

// Load decodes a service specification, applies defaults, and
// validates it. Unknown fields are rejected.
func Load(data []byte) (*v1alpha1.ServiceSpec, error) {
	spec := &v1alpha1.ServiceSpec{}
	if err := yaml.UnmarshalStrict(data, spec); err != nil {
		return nil, fmt.Errorf("failed to decode service spec: %w", err)
	}
	spec.SetDefaults()
	if err := validation.Validate(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// LoadFile reads and decodes the specification at path.
func LoadFile(path string) (*v1alpha1.ServiceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file %q: %w", path, err)
	}
	return Load(data)
}
