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
	"image/color"
	"slices"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"quotecard/internal/textlayout"
)

// Anchor values select how the avatar and bubble share the vertical band.
const (
	AnchorBottomLeft = "bottom-left" // avatar bottom-aligned, bubble top-aligned
	AnchorCenterLeft = "center-left" // both centred
)

// Config holds every number and style the compositor uses. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	AvatarSize        int                 `yaml:"avatar_size"`
	AvatarPadding     int                 `yaml:"avatar_padding"`
	TargetAspectRatio float64             `yaml:"target_aspect_ratio"`
	LineHeight        int                 `yaml:"line_height"`
	Padding           Padding             `yaml:"padding"`
	MaxCharacters     int                 `yaml:"max_characters"`
	Ellipsis          string              `yaml:"ellipsis"`
	MinBubbleWidth    int                 `yaml:"min_bubble_width"`
	MinBubbleHeight   int                 `yaml:"min_bubble_height"`
	WidthScan         WidthScan           `yaml:"width_scan"`
	CanvasMargin      int                 `yaml:"canvas_margin"`
	CaptionGap        int                 `yaml:"caption_gap"`
	Anchor            string              `yaml:"anchor"`
	TextColor         string              `yaml:"text_color"`
	CaptionColor      string              `yaml:"caption_color"`
	BodyFont          textlayout.FontSpec `yaml:"body_font"`
	CaptionFont       textlayout.FontSpec `yaml:"caption_font"`
}

// DefaultConfig mirrors the stock card: 150px round avatar, monospace bold
// quote text at 24pt, bold caption at 20pt, white text.
func DefaultConfig() Config {
	return Config{
		AvatarSize:        150,
		AvatarPadding:     25,
		TargetAspectRatio: 2.0,
		LineHeight:        35,
		Padding:           Padding{LeftFrac: 0.1, RightFrac: 0.1, VerticalPx: 100},
		MaxCharacters:     200,
		Ellipsis:          "...",
		MinBubbleWidth:    300,
		MinBubbleHeight:   150,
		WidthScan:         WidthScan{Min: 200, Max: 1200, Step: 10},
		CanvasMargin:      10,
		CaptionGap:        10,
		Anchor:            AnchorBottomLeft,
		TextColor:         "#ffffff",
		CaptionColor:      "#ffffff",
		BodyFont: textlayout.FontSpec{
			Candidates: []string{
				"/usr/share/fonts/truetype/dejavu/DejaVuSansMono-Bold.ttf",
				textlayout.BuiltinPrefix + "go-mono-bold",
			},
			Size: 24,
		},
		CaptionFont: textlayout.FontSpec{
			Candidates: []string{
				"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
				textlayout.BuiltinPrefix + "go-bold",
			},
			Size: 20,
		},
	}
}

// SolveParams extracts the solver's inputs.
func (c Config) SolveParams() SolveParams {
	return SolveParams{
		TargetRatio: c.TargetAspectRatio,
		LineHeight:  c.LineHeight,
		Padding:     c.Padding,
		MinWidth:    c.MinBubbleWidth,
		MinHeight:   c.MinBubbleHeight,
		Scan:        c.WidthScan,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.AvatarSize > 0, "avatar_size must be positive, got %d", c.AvatarSize)
	check(c.AvatarPadding >= 0, "avatar_padding must not be negative, got %d", c.AvatarPadding)
	check(c.CanvasMargin >= 0, "canvas_margin must not be negative, got %d", c.CanvasMargin)
	check(c.CaptionGap >= 0, "caption_gap must not be negative, got %d", c.CaptionGap)
	check(c.MaxCharacters >= 0, "max_characters must not be negative, got %d", c.MaxCharacters)
	if err := c.SolveParams().validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Anchor {
	case "", AnchorBottomLeft, AnchorCenterLeft:
	default:
		errs = append(errs, fmt.Errorf("anchor must be %q or %q, got %q", AnchorBottomLeft, AnchorCenterLeft, c.Anchor))
	}
	if _, err := parseColor(c.TextColor); err != nil {
		errs = append(errs, fmt.Errorf("text_color: %w", err))
	}
	if _, err := parseColor(c.CaptionColor); err != nil {
		errs = append(errs, fmt.Errorf("caption_color: %w", err))
	}
	for name, fs := range map[string]textlayout.FontSpec{"body_font": c.BodyFont, "caption_font": c.CaptionFont} {
		check(len(fs.Candidates) > 0, "%s.candidates must not be empty", name)
		check(fs.Size > 0, "%s.size must be positive, got %v", name, fs.Size)
		for _, cand := range fs.Candidates {
			if b, ok := strings.CutPrefix(cand, textlayout.BuiltinPrefix); ok {
				check(slices.Contains(textlayout.BuiltinNames(), b), "%s: unknown builtin font %q (known: %s)",
					name, b, strings.Join(textlayout.BuiltinNames(), ", "))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid card config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) anchor() string {
	if c.Anchor == "" {
		return AnchorBottomLeft
	}
	return c.Anchor
}

// parseColor accepts "#rgb" and "#rrggbb"; the result is opaque.
func parseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, err
	}
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}
