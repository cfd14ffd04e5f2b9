/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package fetch retrieves the raw bytes of avatar and bubble template images.
// Fetches are single attempts: failures are reported, never retried.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	applog "quotecard/internal/log"
	"quotecard/internal/version"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes int64 = 10 << 20

// Fetcher returns the bytes behind a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %s", e.URL, e.Status)
}

// ErrTooLarge is returned when a response exceeds the size cap.
var ErrTooLarge = errors.New("response exceeds size limit")

// HTTPFetcher downloads over http(s).
//
// Token, when set, is sent as a bearer token but only to hosts listed in
// TokenHosts, so a private asset host can be authenticated without leaking the
// token to avatar CDNs.
type HTTPFetcher struct {
	Client     *http.Client
	Token      string
	TokenHosts []string
	MaxBytes   int64
	log        *slog.Logger
}

// NewHTTPFetcher builds a fetcher with its own client and timeout.
func NewHTTPFetcher(timeout time.Duration, token string, tokenHosts []string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		Client:     &http.Client{Timeout: timeout},
		Token:      token,
		TokenHosts: tokenHosts,
		MaxBytes:   DefaultMaxBytes,
		log:        applog.WithComponent("fetch"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "quotecard/"+version.String())
	if f.Token != "" && slices.Contains(f.TokenHosts, u.Hostname()) {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	cli := f.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	l := f.log
	if l == nil {
		l = applog.WithComponent("fetch")
	}
	l.Debug("fetched", slog.String("host", u.Hostname()), slog.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: location, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return readCapped(resp.Body, f.maxBytes())
}

func (f *HTTPFetcher) maxBytes() int64 {
	if f.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return f.MaxBytes
}

func readCapped(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return b, nil
}

// FileFetcher reads local files, given as plain paths or file:// URLs.
type FileFetcher struct {
	MaxBytes int64
}

func (f FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		path = u.Path
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	return readCapped(fh, limit)
}

// Mux sends http(s) locations to HTTP and everything else to File.
type Mux struct {
	HTTP Fetcher
	File Fetcher
}

func (m Mux) Fetch(ctx context.Context, location string) ([]byte, error) {
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if m.HTTP == nil {
			return nil, errors.New("http fetching is not configured")
		}
		return m.HTTP.Fetch(ctx, location)
	}
	if m.File == nil {
		return nil, fmt.Errorf("cannot fetch %q: local files are not allowed", location)
	}
	return m.File.Fetch(ctx, location)
}
