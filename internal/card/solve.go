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
	"math"
	"strings"

	"quotecard/internal/textlayout"
)

// Geometry is the size of the scaled speech bubble.
type Geometry struct {
	Width  int
	Height int
}

func (g Geometry) String() string { return fmt.Sprintf("%dx%d", g.Width, g.Height) }

// Padding is the bubble's inner margin. Horizontal padding scales with the
// bubble width; vertical padding is a fixed number of pixels split between
// top and bottom.
type Padding struct {
	LeftFrac   float64 `yaml:"left_frac"`
	RightFrac  float64 `yaml:"right_frac"`
	VerticalPx int     `yaml:"vertical_px"`
}

// Horizontal returns the left and right insets for a bubble w pixels wide.
func (p Padding) Horizontal(w int) (left, right int) {
	return int(math.Round(float64(w) * p.LeftFrac)), int(math.Round(float64(w) * p.RightFrac))
}

// Top is the vertical inset above the text block; the rest goes below.
func (p Padding) Top() int { return p.VerticalPx / 2 }

// WidthScan is the inclusive range of candidate bubble widths.
type WidthScan struct {
	Min  int `yaml:"min"`
	Max  int `yaml:"max"`
	Step int `yaml:"step"`
}

type SolveParams struct {
	TargetRatio float64
	LineHeight  int
	Padding     Padding
	MinWidth    int
	MinHeight   int
	Scan        WidthScan
}

func (p SolveParams) validate() error {
	var errs []error
	if p.TargetRatio <= 0 || math.IsNaN(p.TargetRatio) || math.IsInf(p.TargetRatio, 0) {
		errs = append(errs, fmt.Errorf("target_aspect_ratio must be a positive number, got %v", p.TargetRatio))
	}
	if p.LineHeight <= 0 {
		errs = append(errs, fmt.Errorf("line_height must be positive, got %d", p.LineHeight))
	}
	if p.Padding.LeftFrac < 0 || p.Padding.RightFrac < 0 || p.Padding.LeftFrac+p.Padding.RightFrac >= 1 {
		errs = append(errs, fmt.Errorf("padding fractions must be non-negative and sum below 1, got %v+%v", p.Padding.LeftFrac, p.Padding.RightFrac))
	}
	if p.Padding.VerticalPx < 0 {
		errs = append(errs, fmt.Errorf("padding.vertical_px must not be negative, got %d", p.Padding.VerticalPx))
	}
	if p.MinWidth <= 0 {
		errs = append(errs, fmt.Errorf("min_bubble_width must be positive, got %d", p.MinWidth))
	}
	if p.MinHeight <= 0 || p.MinHeight < p.Padding.VerticalPx {
		errs = append(errs, fmt.Errorf("min_bubble_height must be positive and at least padding.vertical_px, got %d", p.MinHeight))
	}
	if p.Scan.Step <= 0 {
		errs = append(errs, fmt.Errorf("width_scan.step must be positive, got %d", p.Scan.Step))
	}
	if p.Scan.Min <= 0 || p.Scan.Max < p.Scan.Min {
		errs = append(errs, fmt.Errorf("width_scan range [%d, %d] is empty", p.Scan.Min, p.Scan.Max))
	}
	return errors.Join(errs...)
}

func (p SolveParams) height(lines int) int {
	return max(lines*p.LineHeight+p.Padding.VerticalPx, p.MinHeight)
}

func (p SolveParams) interior(w int) int {
	l, r := p.Padding.Horizontal(w)
	return w - l - r
}

// Solve picks the bubble width whose aspect ratio, once the text is wrapped to
// fit inside the padding, lands closest to TargetRatio. Every candidate in the
// scan is tried; the smallest width wins a tie. The result never goes below
// MinWidth x MinHeight, and the returned lines are the wrap at the final width.
func Solve(text string, p SolveParams, m textlayout.Measurer) (Geometry, []string, error) {
	if err := p.validate(); err != nil {
		return Geometry{}, nil, renderErr("solve", err)
	}
	if m == nil {
		return Geometry{}, nil, renderErr("solve", errors.New("nil measurer"))
	}
	if strings.TrimSpace(text) == "" {
		return Geometry{Width: p.MinWidth, Height: p.MinHeight}, nil, nil
	}

	best, bestDev := -1, math.Inf(1)
	for w := p.Scan.Min; w <= p.Scan.Max; w += p.Scan.Step {
		inner := p.interior(w)
		if inner <= 0 {
			continue
		}
		lines := textlayout.Wrap(text, inner, m)
		h := p.height(len(lines))
		if dev := math.Abs(float64(w)/float64(h) - p.TargetRatio); dev < bestDev {
			best, bestDev = w, dev
		}
	}
	if best < 0 {
		return Geometry{}, nil, renderErr("solve", fmt.Errorf("no usable width in [%d, %d]", p.Scan.Min, p.Scan.Max))
	}

	w := max(best, p.MinWidth)
	lines := textlayout.Wrap(text, p.interior(w), m)
	return Geometry{Width: w, Height: p.height(len(lines))}, lines, nil
}
