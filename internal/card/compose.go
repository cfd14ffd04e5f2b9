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
	"image/draw"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
	"golang.org/x/image/font"

	"quotecard/internal/textlayout"
)

// Faces are the font faces for one render. Faces are not safe for concurrent
// use; create a fresh set per call.
type Faces struct {
	Body    font.Face
	Caption font.Face
}

// Compose paints the card onto a fresh transparent canvas in a fixed order:
// bubble, avatar, text lines, caption. avatar must already be masked and
// AvatarSize pixels square; bubble is scaled to geom.
func Compose(avatar, bubble image.Image, lines []string, geom Geometry, name string, faces Faces, cfg Config) (*image.RGBA, error) {
	const op = "compose"
	switch {
	case avatar == nil || bubble == nil:
		return nil, renderErr(op, errors.New("nil input image"))
	case faces.Body == nil || faces.Caption == nil:
		return nil, renderErr(op, errors.New("nil font face"))
	case geom.Width <= 0 || geom.Height <= 0:
		return nil, renderErr(op, fmt.Errorf("bubble geometry %v has no area", geom))
	case bubble.Bounds().Empty():
		return nil, renderErr(op, errors.New("bubble template has no pixels"))
	}
	if s := avatar.Bounds().Size(); s.X != cfg.AvatarSize || s.Y != cfg.AvatarSize {
		return nil, renderErr(op, fmt.Errorf("avatar is %dx%d, want %dx%d", s.X, s.Y, cfg.AvatarSize, cfg.AvatarSize))
	}
	textColor, err := parseColor(cfg.TextColor)
	if err != nil {
		return nil, renderErr(op, fmt.Errorf("text color: %w", err))
	}
	captionColor, err := parseColor(cfg.CaptionColor)
	if err != nil {
		return nil, renderErr(op, fmt.Errorf("caption color: %w", err))
	}

	captionM := textlayout.FaceMeasurer{Face: faces.Caption}
	lay, err := PlanLayout(cfg, geom, lines, textlayout.FaceMeasurer{Face: faces.Body}, captionM, name)
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(lay.Canvas)
	scaled := resize.Resize(uint(geom.Width), uint(geom.Height), bubble, resize.Lanczos3)
	draw.Draw(canvas, lay.Bubble, scaled, scaled.Bounds().Min, draw.Over)
	draw.Draw(canvas, lay.Avatar, avatar, avatar.Bounds().Min, draw.Over)

	dc := gg.NewContextForRGBA(canvas)
	dc.SetFontFace(faces.Body)
	dc.SetColor(textColor)
	half := float64(cfg.LineHeight) / 2
	for _, lb := range lay.Lines {
		dc.DrawStringAnchored(lb.Text, float64(lb.Rect.Min.X), float64(lb.Rect.Min.Y)+half, 0, 0.5)
	}
	if name != "" {
		dc.SetFontFace(faces.Caption)
		dc.SetColor(captionColor)
		dc.DrawStringAnchored(name, float64(lay.Caption.Min.X), float64(lay.Caption.Min.Y)+float64(lay.Caption.Dy())/2, 0, 0.5)
	}
	return canvas, nil
}
