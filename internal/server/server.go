/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes the card renderer over HTTP.
//
//	POST /api/cards  {"avatar_url", "bubble_url", "text", "display_name"} -> image/png
//	GET  /healthz
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"quotecard/internal/cache"
	"quotecard/internal/card"
	"quotecard/internal/config"
	"quotecard/internal/crash"
	applog "quotecard/internal/log"
	"quotecard/internal/telemetry"
	"quotecard/internal/version"
)

// Options wires the optional collaborators. Cache and Telemetry may be nil.
type Options struct {
	Config           config.ServerConfig
	DefaultBubbleURL string
	Cache            *cache.Cache
	CacheMaxEntries  int
	Telemetry        *telemetry.Client
}

type Server struct {
	r    *card.Renderer
	opts Options
	salt []byte
	log  *slog.Logger
}

func New(r *card.Renderer, opts Options) *Server {
	if opts.Config.MaxBodyBytes <= 0 {
		opts.Config.MaxBodyBytes = config.Defaults().Server.MaxBodyBytes
	}
	return &Server{
		r:    r,
		opts: opts,
		salt: CacheSalt(r.Config()),
		log:  applog.WithComponent("server"),
	}
}

// CacheSalt prefixes every cache key so entries rendered under another
// configuration or build never match.
func CacheSalt(cfg card.Config) []byte {
	return fmt.Appendf(nil, "%v|%s", cfg, version.String())
}

// Handler returns the routed handler with request ids and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/cards", s.handleCard)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return withRequestID(crash.Handler(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       ms(s.opts.Config.ReadTimeoutMs),
		WriteTimeout:      ms(s.opts.Config.WriteTimeoutMs),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()
	s.log.Info("listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type cardRequest struct {
	AvatarURL   string `json:"avatar_url"`
	BubbleURL   string `json:"bubble_url"`
	Text        string `json:"text"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	l := applog.WithOperation(s.log, "card")

	var req cardRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.Config.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.AvatarURL) == "" {
		writeError(w, http.StatusBadRequest, errors.New("avatar_url is required"))
		return
	}
	if req.BubbleURL == "" {
		req.BubbleURL = s.opts.DefaultBubbleURL
	}
	if req.BubbleURL == "" {
		writeError(w, http.StatusBadRequest, errors.New("bubble_url is required when no default bubble is configured"))
		return
	}

	avatar, bubble, err := s.r.FetchInputs(ctx, req.AvatarURL, req.BubbleURL)
	if err != nil {
		s.fail(ctx, w, l, err)
		return
	}

	key := cache.Key(s.salt, avatar, bubble, []byte(req.Text), []byte(req.DisplayName))
	if png, ok := s.cacheGet(ctx, l, key); ok {
		s.opts.Telemetry.CardCached(time.Since(start))
		writePNG(w, png, "hit")
		return
	}

	res, err := s.r.RenderDetailed(avatar, bubble, req.Text, req.DisplayName)
	if err != nil {
		s.fail(ctx, w, l, err)
		return
	}
	s.cachePut(ctx, l, key, res.PNG)
	l.DebugContext(ctx, "card rendered", slog.String("geometry", res.Geometry.String()), slog.Int("lines", len(res.Lines)),
		slog.Duration("took", time.Since(start)))
	s.opts.Telemetry.CardRendered(time.Since(start), len(res.Lines))
	writePNG(w, res.PNG, "miss")
}

func (s *Server) cacheGet(ctx context.Context, l *slog.Logger, key string) ([]byte, bool) {
	if s.opts.Cache == nil {
		return nil, false
	}
	png, ok, err := s.opts.Cache.Get(ctx, key)
	if err != nil {
		l.WarnContext(ctx, "cache lookup failed", slog.Any("err", err))
		return nil, false
	}
	return png, ok
}

func (s *Server) cachePut(ctx context.Context, l *slog.Logger, key string, png []byte) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.Put(ctx, key, png); err != nil {
		l.WarnContext(ctx, "cache store failed", slog.Any("err", err))
		return
	}
	if _, err := s.opts.Cache.Prune(ctx, s.opts.CacheMaxEntries); err != nil {
		l.WarnContext(ctx, "cache prune failed", slog.Any("err", err))
	}
}

func (s *Server) fail(ctx context.Context, w http.ResponseWriter, l *slog.Logger, err error) {
	status, kind := classify(err)
	l.WarnContext(ctx, "card failed", slog.String("kind", kind), slog.Any("err", err))
	s.opts.Telemetry.CardFailed(kind)
	writeError(w, status, err)
}

// classify maps a render error to an HTTP status and a telemetry kind.
func classify(err error) (int, string) {
	switch card.KindOf(err) {
	case card.ErrFetch:
		return http.StatusBadGateway, "fetch"
	case card.ErrDecode:
		return http.StatusUnprocessableEntity, "decode"
	default:
		return http.StatusInternalServerError, "render"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "version": version.String()}
	if s.opts.Cache != nil {
		n, err := s.opts.Cache.Len(r.Context())
		if err != nil {
			s.log.WarnContext(r.Context(), "cache health check failed", slog.Any("err", err))
			body["cache"] = "unavailable"
		} else {
			body["cache_entries"] = n
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func writePNG(w http.ResponseWriter, png []byte, cacheState string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Cache", cacheState)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			var b [8]byte
			_, _ = rand.Read(b[:])
			id = hex.EncodeToString(b[:])
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(applog.ContextWithRequestID(r.Context(), id)))
	})
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
