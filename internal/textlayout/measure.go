/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Text measurement sits behind a small interface so wrapping, bubble sizing
// and layout can run against real OpenType faces in production and against
// the fixed-advance basicfont face in tests.

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Measurer reports the rendered width of a string in pixels and the line
// height of the face it measures with. Implementations must be deterministic:
// the same string always measures the same.
type Measurer interface {
	Width(s string) int
	LineHeight() int
}

// FaceMeasurer measures with a font.Face. Faces keep glyph caches and are not
// safe for concurrent use, so a FaceMeasurer belongs to a single render.
type FaceMeasurer struct{ Face font.Face }

func (m FaceMeasurer) Width(s string) int {
	if s == "" {
		return 0
	}
	return font.MeasureString(m.Face, s).Ceil()
}

func (m FaceMeasurer) LineHeight() int { return m.Face.Metrics().Height.Ceil() }

// BasicMeasurer uses basicfont.Face7x13: every glyph advances 7px and a line
// is 13px tall. Used for deterministic tests.
func BasicMeasurer() FaceMeasurer { return FaceMeasurer{Face: basicfont.Face7x13} }

// MeasureLines returns the widest line and the height of the block when each
// line takes lineHeight pixels.
func MeasureLines(m Measurer, lines []string, lineHeight int) (w, h int) {
	for _, ln := range lines {
		if lw := m.Width(ln); lw > w {
			w = lw
		}
	}
	return w, len(lines) * lineHeight
}
