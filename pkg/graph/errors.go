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
	"errors"
	"fmt"
)

// ConsistencyFault indicates the builder violated one of its own
// invariants (e.g. produced a dependency cycle). It is never caused by
// user input and must halt the pass rather than attempt partial
// application.
type ConsistencyFault struct {
	Stage string
	Err   error
}

func (e *ConsistencyFault) Error() string {
	return fmt.Sprintf("internal graph inconsistency at %s: %v", e.Stage, e.Err)
}

func (e *ConsistencyFault) Unwrap() error { return e.Err }

// IsConsistencyFault reports whether err (or any error in its chain)
// is a ConsistencyFault.
func IsConsistencyFault(err error) bool {
	var cf *ConsistencyFault
	return errors.As(err, &cf)
}

// PreconditionError indicates a node-scoped precondition failed during
// graph construction, before any mutation. Like a validation error it
// is recoverable by correcting the configuration.
type PreconditionError struct {
	Key  string
	Code string
	Err  error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for %s: %v (%s)", e.Key, e.Err, e.Code)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// IsPreconditionError reports whether err (or any error in its chain)
// is a PreconditionError.
func IsPreconditionError(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

func fault(stage string, err error) error { return &ConsistencyFault{Stage: stage, Err: err} }

func precondition(key, code, format string, a ...any) error {
	return &PreconditionError{Key: key, Code: code, Err: fmt.Errorf(format, a...)}
}
