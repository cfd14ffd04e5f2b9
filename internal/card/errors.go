/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package card

import (
	"errors"
	"fmt"
)

// Failure classes. Every error returned by this package matches exactly one
// of them under errors.Is.
var (
	ErrFetch  = errors.New("fetch failed")
	ErrDecode = errors.New("decode failed")
	ErrRender = errors.New("render failed")
)

// Error records which step failed and why.
type Error struct {
	Kind error  // ErrFetch, ErrDecode or ErrRender
	Op   string // e.g. "fetch bubble", "solve"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the failure class of err, or nil if err did not come from
// this package.
func KindOf(err error) error {
	for _, k := range []error{ErrFetch, ErrDecode, ErrRender} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func fetchErr(op string, err error) error  { return &Error{Kind: ErrFetch, Op: op, Err: err} }
func decodeErr(op string, err error) error { return &Error{Kind: ErrDecode, Op: op, Err: err} }
func renderErr(op string, err error) error { return &Error{Kind: ErrRender, Op: op, Err: err} }
