// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package logics

import (
	"fmt"

	"github.com/juju/errors"
)

const ErrCollaboratorUnavailable = errors.ConstError("collaborator unavailable")

// CollaboratorError reports a failure of the rating store, the recommender
// engine or the cache store. It matches ErrCollaboratorUnavailable and
// unwraps to the cause.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s unavailable: %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaboratorUnavailable, e.Err}
}

const (
	ratingStore = "rating store"
	engine      = "recommender engine"
	cacheStore  = "cache store"
)

// collaboratorError wraps failures of a collaborator. Domain errors such as a
// missing user or a taken name pass through unchanged.
func collaboratorError(collaborator, op string, err error) error {
	if err == nil {
		return nil
	}
	var collaboratorErr *CollaboratorError
	if errors.As(err, &collaboratorErr) ||
		errors.Is(err, errors.NotFound) ||
		errors.Is(err, errors.AlreadyExists) ||
		errors.Is(err, errors.NotValid) {
		return errors.Trace(err)
	}
	return errors.Trace(&CollaboratorError{Collaborator: collaborator, Op: op, Err: err})
}
