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
	"testing"
)

func TestError_UnwrapsToKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("render card: %w", fetchErr("fetch bubble", cause))

	if !errors.Is(err, ErrFetch) || !errors.Is(err, cause) {
		t.Fatalf("error %v should match ErrFetch and its cause", err)
	}
	if errors.Is(err, ErrRender) || errors.Is(err, ErrDecode) {
		t.Fatalf("error %v matches the wrong kind", err)
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Op != "fetch bubble" {
		t.Fatalf("errors.As failed or wrong op: %+v", ce)
	}
	if want := "render card: fetch bubble: fetch failed: connection refused"; err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(decodeErr("decode avatar", nil)) != ErrDecode {
		t.Fatalf("KindOf(decodeErr) != ErrDecode")
	}
	if KindOf(renderErr("solve", errors.New("x"))) != ErrRender {
		t.Fatalf("KindOf(renderErr) != ErrRender")
	}
	if KindOf(errors.New("plain")) != nil {
		t.Fatalf("KindOf(plain) should be nil")
	}
}
