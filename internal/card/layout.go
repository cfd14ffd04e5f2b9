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
	"image"

	"quotecard/internal/textlayout"
)

// LineBox is one wrapped line and the box it is drawn in.
type LineBox struct {
	Text string
	Rect image.Rectangle
}

// Layout positions every element on the canvas. All rectangles are in canvas
// coordinates; Canvas.Min is always (0,0).
type Layout struct {
	Canvas  image.Rectangle
	Avatar  image.Rectangle
	Bubble  image.Rectangle
	Caption image.Rectangle // empty when there is no display name
	Lines   []LineBox
}

// PlanLayout places the avatar left of the bubble, the caption under the
// avatar and the wrapped lines inside the bubble's padding. The canvas is
// the tight box around all of them plus CanvasMargin, so a word wider than
// the bubble interior still ends up on the canvas.
func PlanLayout(cfg Config, geom Geometry, lines []string, body, caption textlayout.Measurer, name string) (Layout, error) {
	if geom.Width <= 0 || geom.Height <= 0 {
		return Layout{}, renderErr("layout", fmt.Errorf("bubble geometry %v has no area", geom))
	}
	if cfg.AvatarSize <= 0 {
		return Layout{}, renderErr("layout", fmt.Errorf("avatar size must be positive, got %d", cfg.AvatarSize))
	}
	if body == nil || (caption == nil && name != "") {
		return Layout{}, renderErr("layout", errors.New("nil measurer"))
	}

	a, p := cfg.AvatarSize, cfg.AvatarPadding
	band := max(geom.Height, a)

	var lay Layout
	switch cfg.anchor() {
	case AnchorCenterLeft:
		ay := p + (band-a)/2
		by := p + (band-geom.Height)/2
		lay.Avatar = image.Rect(p, ay, p+a, ay+a)
		lay.Bubble = image.Rect(p+a, by, p+a+geom.Width, by+geom.Height)
	default:
		lay.Avatar = image.Rect(p, p+band-a, p+a, p+band)
		lay.Bubble = image.Rect(p+a, p, p+a+geom.Width, p+geom.Height)
	}

	if name != "" {
		cw, ch := caption.Width(name), caption.LineHeight()
		cx := lay.Avatar.Min.X + (a-cw)/2
		cy := lay.Avatar.Max.Y + cfg.CaptionGap
		lay.Caption = image.Rect(cx, cy, cx+cw, cy+ch)
	}

	left, right := cfg.Padding.Horizontal(geom.Width)
	innerX := lay.Bubble.Min.X + left
	innerW := geom.Width - left - right
	innerH := geom.Height - cfg.Padding.VerticalPx
	_, blockH := textlayout.MeasureLines(body, lines, cfg.LineHeight)
	y := lay.Bubble.Min.Y + cfg.Padding.Top() + (innerH-blockH)/2
	for _, ln := range lines {
		lw := body.Width(ln)
		x := innerX + (innerW-lw)/2
		lay.Lines = append(lay.Lines, LineBox{Text: ln, Rect: image.Rect(x, y, x+lw, y+cfg.LineHeight)})
		y += cfg.LineHeight
	}

	u := lay.Avatar.Union(lay.Bubble).Union(lay.Caption)
	for _, lb := range lay.Lines {
		u = u.Union(lb.Rect)
	}
	u = u.Inset(-cfg.CanvasMargin)

	off := u.Min
	lay.Canvas = u.Sub(off)
	lay.Avatar = lay.Avatar.Sub(off)
	lay.Bubble = lay.Bubble.Sub(off)
	if !lay.Caption.Empty() {
		lay.Caption = lay.Caption.Sub(off)
	}
	for i := range lay.Lines {
		lay.Lines[i].Rect = lay.Lines[i].Rect.Sub(off)
	}
	return lay, nil
}
