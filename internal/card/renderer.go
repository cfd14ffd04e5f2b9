/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package card

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/image/font"
	"golang.org/x/sync/errgroup"

	"quotecard/internal/export"
	"quotecard/internal/fetch"
	applog "quotecard/internal/log"
	"quotecard/internal/textlayout"
)

// Request names the inputs of one card.
type Request struct {
	AvatarURL   string
	BubbleURL   string
	Text        string
	DisplayName string
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.log = l
		}
	}
}

// Renderer turns requests into PNG bytes. It holds only immutable
// configuration and parsed fonts and is safe for concurrent use.
type Renderer struct {
	cfg     Config
	body    *textlayout.Font
	caption *textlayout.Font
	fetcher fetch.Fetcher
	log     *slog.Logger
}

// NewRenderer validates cfg and resolves both font lists. Any failure here is
// a configuration error; the caller should not start serving.
func NewRenderer(cfg Config, lib *textlayout.FontLibrary, f fetch.Fetcher, opts ...Option) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lib == nil {
		lib = textlayout.NewFontLibrary()
	}
	r := &Renderer{cfg: cfg, fetcher: f, log: applog.WithComponent("card")}
	for _, o := range opts {
		o(r)
	}

	var err error
	if r.body, err = lib.Resolve(cfg.BodyFont); err != nil {
		return nil, fmt.Errorf("resolve body font: %w", err)
	}
	if r.caption, err = lib.Resolve(cfg.CaptionFont); err != nil {
		return nil, fmt.Errorf("resolve caption font: %w", err)
	}
	r.log.Info("fonts resolved",
		slog.String("body", r.body.Source), slog.Float64("body_size", r.body.Size),
		slog.String("caption", r.caption.Source), slog.Float64("caption_size", r.caption.Size))
	return r, nil
}

// Config returns the configuration the renderer was built with.
func (r *Renderer) Config() Config { return r.cfg }

// FetchInputs downloads the avatar and the bubble template concurrently. The
// first failure cancels the other fetch.
func (r *Renderer) FetchInputs(ctx context.Context, avatarURL, bubbleURL string) (avatar, bubble []byte, err error) {
	if r.fetcher == nil {
		return nil, nil, fetchErr("fetch", errors.New("no fetcher configured"))
	}
	l := applog.WithOperation(r.log, "fetch")
	g, gctx := errgroup.WithContext(ctx)
	get := func(what, loc string, dst *[]byte) func() error {
		return func() error {
			if loc == "" {
				return fetchErr("fetch "+what, errors.New("empty location"))
			}
			b, err := r.fetcher.Fetch(gctx, loc)
			if err != nil {
				return fetchErr("fetch "+what, err)
			}
			l.DebugContext(ctx, "input fetched", slog.String("input", what), slog.Int("bytes", len(b)))
			*dst = b
			return nil
		}
	}
	g.Go(get("avatar", avatarURL, &avatar))
	g.Go(get("bubble", bubbleURL, &bubble))
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return avatar, bubble, nil
}

// RenderBytes composes a card from already fetched image bytes. It does no
// I/O and returns either a complete PNG or an error.
func (r *Renderer) RenderBytes(avatar, bubble []byte, text, name string) ([]byte, error) {
	img, _, err := r.compose(avatar, bubble, text, name)
	if err != nil {
		return nil, err
	}
	out, err := export.EncodePNG(img)
	if err != nil {
		return nil, renderErr("encode", err)
	}
	return out, nil
}

// RenderResult is what RenderDetailed reports besides the PNG.
type RenderResult struct {
	PNG      []byte
	Geometry Geometry
	Lines    []string
}

// RenderDetailed is RenderBytes plus the solved geometry and wrapped lines.
func (r *Renderer) RenderDetailed(avatar, bubble []byte, text, name string) (RenderResult, error) {
	img, st, err := r.compose(avatar, bubble, text, name)
	if err != nil {
		return RenderResult{}, err
	}
	out, err := export.EncodePNG(img)
	if err != nil {
		return RenderResult{}, renderErr("encode", err)
	}
	st.PNG = out
	return st, nil
}

// Render fetches the inputs named by req and renders them.
func (r *Renderer) Render(ctx context.Context, req Request) ([]byte, error) {
	avatar, bubble, err := r.FetchInputs(ctx, req.AvatarURL, req.BubbleURL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, renderErr("render", err)
	}
	return r.RenderBytes(avatar, bubble, req.Text, req.DisplayName)
}

func (r *Renderer) compose(avatarBytes, bubbleBytes []byte, text, name string) (image.Image, RenderResult, error) {
	avatarImg, err := DecodeImage(avatarBytes, "avatar")
	if err != nil {
		return nil, RenderResult{}, err
	}
	bubbleImg, err := DecodeImage(bubbleBytes, "bubble")
	if err != nil {
		return nil, RenderResult{}, err
	}
	l := applog.WithOperation(r.log, "render")
	l.Debug("inputs decoded", slog.String("avatar", avatarImg.Bounds().Size().String()), slog.String("bubble", bubbleImg.Bounds().Size().String()))

	masked, err := MaskAvatar(avatarImg, r.cfg.AvatarSize)
	if err != nil {
		return nil, RenderResult{}, err
	}

	faces, closeFaces, err := r.faces()
	if err != nil {
		return nil, RenderResult{}, err
	}
	defer closeFaces()

	text = Truncate(text, r.cfg.MaxCharacters, r.cfg.Ellipsis)
	geom, lines, err := Solve(text, r.cfg.SolveParams(), textlayout.FaceMeasurer{Face: faces.Body})
	if err != nil {
		return nil, RenderResult{}, err
	}
	l.Debug("bubble solved", slog.String("geometry", geom.String()), slog.Int("lines", len(lines)))

	canvas, err := Compose(masked, bubbleImg, lines, geom, name, faces, r.cfg)
	if err != nil {
		return nil, RenderResult{}, err
	}
	return canvas, RenderResult{Geometry: geom, Lines: lines}, nil
}

func (r *Renderer) faces() (Faces, func(), error) {
	body, err := r.body.Face()
	if err != nil {
		return Faces{}, nil, renderErr("font face", err)
	}
	caption, err := r.caption.Face()
	if err != nil {
		_ = body.Close()
		return Faces{}, nil, renderErr("font face", err)
	}
	return Faces{Body: body, Caption: caption}, func() { closeFace(body); closeFace(caption) }, nil
}

func closeFace(f font.Face) { _ = f.Close() }
