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
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// BuiltinPrefix marks a candidate that names one of the embedded Go fonts
// instead of a file path, e.g. "builtin:go-mono-bold".
const BuiltinPrefix = "builtin:"

var builtins = map[string][]byte{
	"go-regular":   goregular.TTF,
	"go-bold":      gobold.TTF,
	"go-mono":      gomono.TTF,
	"go-mono-bold": gomonobold.TTF,
}

// ErrNoFont is returned when none of a spec's candidates could be loaded.
var ErrNoFont = errors.New("no font candidate could be resolved")

// FontSpec is an ordered resolution list plus the size to render at.
// Candidates are tried in order; the first one that loads wins.
type FontSpec struct {
	Candidates []string `yaml:"candidates"`
	Size       float64  `yaml:"size"`
}

// Font is a resolved candidate. It is immutable and may be shared between
// goroutines; faces created from it may not.
type Font struct {
	Source string
	Size   float64
	DPI    float64
	parsed *opentype.Font
}

// Face returns a fresh face at the font's size. Callers own the face and
// should Close it when done.
func (f *Font) Face() (font.Face, error) {
	dpi := f.DPI
	if dpi <= 0 {
		dpi = 72
	}
	face, err := opentype.NewFace(f.parsed, &opentype.FaceOptions{Size: f.Size, DPI: dpi, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("create face for %s: %w", f.Source, err)
	}
	return face, nil
}

// FontLibrary loads and caches parsed fonts by candidate name. Resolution is
// meant to happen once at startup; a missing font is a configuration error,
// never something to paper over per render.
type FontLibrary struct {
	mu       sync.Mutex
	fonts    map[string]*opentype.Font
	readFile func(string) ([]byte, error)
}

func NewFontLibrary() *FontLibrary {
	return &FontLibrary{fonts: make(map[string]*opentype.Font), readFile: os.ReadFile}
}

// Resolve walks spec.Candidates in order and returns the first that loads.
// The returned error wraps ErrNoFont together with every candidate's failure.
func (fl *FontLibrary) Resolve(spec FontSpec) (*Font, error) {
	if spec.Size <= 0 {
		return nil, fmt.Errorf("font size must be positive, got %v", spec.Size)
	}
	if len(spec.Candidates) == 0 {
		return nil, fmt.Errorf("%w: candidate list is empty", ErrNoFont)
	}
	var errs []error
	for _, c := range spec.Candidates {
		f, err := fl.load(c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return &Font{Source: c, Size: spec.Size, parsed: f}, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoFont, errors.Join(errs...))
}

func (fl *FontLibrary) load(candidate string) (*opentype.Font, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.fonts == nil {
		fl.fonts = make(map[string]*opentype.Font)
	}
	if f, ok := fl.fonts[candidate]; ok {
		return f, nil
	}

	var data []byte
	if name, ok := strings.CutPrefix(candidate, BuiltinPrefix); ok {
		data, ok = builtins[name]
		if !ok {
			return nil, fmt.Errorf("unknown builtin font %q (known: %s)", name, strings.Join(BuiltinNames(), ", "))
		}
	} else {
		read := fl.readFile
		if read == nil {
			read = os.ReadFile
		}
		b, err := read(candidate)
		if err != nil {
			return nil, fmt.Errorf("read font %s: %w", candidate, err)
		}
		data = b
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", candidate, err)
	}
	fl.fonts[candidate] = f
	return f, nil
}

// BuiltinNames lists the names accepted after BuiltinPrefix.
func BuiltinNames() []string {
	return []string{"go-bold", "go-mono", "go-mono-bold", "go-regular"}
}
