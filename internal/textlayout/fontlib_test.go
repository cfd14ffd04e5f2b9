/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
)

func TestResolve_FirstLoadableCandidateWins(t *testing.T) {
	lib := NewFontLibrary()
	spec := FontSpec{
		Candidates: []string{filepath.Join(t.TempDir(), "missing.ttf"), "builtin:go-mono-bold", "builtin:go-regular"},
		Size:       24,
	}
	f, err := lib.Resolve(spec)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if f.Source != "builtin:go-mono-bold" {
		t.Fatalf("Source = %q, want builtin:go-mono-bold", f.Source)
	}
	face, err := f.Face()
	if err != nil {
		t.Fatalf("Face error: %v", err)
	}
	defer face.Close()
	m := FaceMeasurer{Face: face}
	if m.Width("Hello") <= 0 || m.LineHeight() <= 0 {
		t.Fatalf("expected positive metrics, got w=%d h=%d", m.Width("Hello"), m.LineHeight())
	}
}

func TestResolve_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regular.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatalf("write font: %v", err)
	}
	f, err := NewFontLibrary().Resolve(FontSpec{Candidates: []string{path}, Size: 12})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if f.Source != path || f.Size != 12 {
		t.Fatalf("unexpected font: %+v", f)
	}
}

func TestResolve_NothingLoads(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.ttf")
	if err := os.WriteFile(garbage, []byte("not a font"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewFontLibrary().Resolve(FontSpec{Candidates: []string{filepath.Join(dir, "nope.ttf"), garbage, "builtin:comic-sans"}, Size: 10})
	if !errors.Is(err, ErrNoFont) {
		t.Fatalf("expected ErrNoFont, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected joined cause to include os.ErrNotExist, got %v", err)
	}
	for _, name := range BuiltinNames() {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error does not list builtin %s: %v", name, err)
		}
	}
}

func TestResolve_RejectsBadSpec(t *testing.T) {
	lib := NewFontLibrary()
	if _, err := lib.Resolve(FontSpec{Candidates: []string{"builtin:go-bold"}}); err == nil {
		t.Fatalf("expected error for zero size")
	}
	if _, err := lib.Resolve(FontSpec{Size: 10}); !errors.Is(err, ErrNoFont) {
		t.Fatalf("expected ErrNoFont for empty candidate list, got %v", err)
	}
}

func TestResolve_CachesParsedFonts(t *testing.T) {
	lib := NewFontLibrary()
	reads := 0
	lib.readFile = func(string) ([]byte, error) {
		reads++
		return goregular.TTF, nil
	}
	spec := FontSpec{Candidates: []string{"/fonts/a.ttf"}, Size: 10}
	for i := 0; i < 3; i++ {
		if _, err := lib.Resolve(spec); err != nil {
			t.Fatalf("Resolve error: %v", err)
		}
	}
	if reads != 1 {
		t.Fatalf("expected one read, got %d", reads)
	}
}
