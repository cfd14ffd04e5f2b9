/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in, anonymous render events and crash reports.
// Nothing leaves the process unless OptIn is set and an endpoint is configured.
// Events never carry quote text, display names or image locations.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "quotecard/internal/log"
	"quotecard/internal/version"
)

// Event names.
const (
	EventCardRendered = "card_rendered"
	EventCardFailed   = "card_failed"
)

// Config is read from the config file or, by FromEnv, from:
//   - QC_TELEMETRY_OPT_IN: "1", "true", "yes" or "on"
//   - QC_TELEMETRY_URL: endpoint for JSON events
//   - QC_CRASH_UPLOAD_URL: endpoint for crash reports
//   - QC_TELEMETRY_TIMEOUT_MS: request timeout, default 1500
//   - QC_TELEMETRY_DEBUG: any value logs send attempts
type Config struct {
	OptIn        bool          `yaml:"opt_in"`
	EventsURL    string        `yaml:"events_url"`
	CrashURL     string        `yaml:"crash_url"`
	Timeout      time.Duration `yaml:"-"`
	TimeoutMs    int           `yaml:"timeout_ms"`
	DebugLogging bool          `yaml:"debug"`
}

// RequestTimeout resolves Timeout and TimeoutMs, defaulting to 1.5s.
func (c Config) RequestTimeout() time.Duration {
	switch {
	case c.Timeout > 0:
		return c.Timeout
	case c.TimeoutMs > 0:
		return time.Duration(c.TimeoutMs) * time.Millisecond
	default:
		return 1500 * time.Millisecond
	}
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        ParseBool(os.Getenv("QC_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("QC_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("QC_CRASH_UPLOAD_URL")),
		DebugLogging: os.Getenv("QC_TELEMETRY_DEBUG") != "",
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv("QC_TELEMETRY_TIMEOUT_MS"))); err == nil && ms > 0 {
		cfg.TimeoutMs = ms
	}
	return cfg
}

// ParseBool accepts the usual spellings of "on".
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Client queues events and posts them from a single goroutine. A full queue
// drops events rather than blocking a render.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	q       chan map[string]any
	pending atomic.Int64 // queued events not yet sent
	uploads atomic.Int64 // crash uploads in flight
	once    sync.Once
	closed  chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the process-wide client, creating it from the environment
// if SetDefault was never called.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// SetDefault installs a client built from cfg and closes the previous one.
func SetDefault(cfg Config) *Client {
	c := New(cfg)
	defaultMu.Lock()
	old := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if old != nil {
		old.Close()
	}
	return c
}

func New(cfg Config) *Client {
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.RequestTimeout()},
		q:      make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events will be sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues a named event. props must not contain personal data.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	c.pending.Add(1)
	select {
	case c.q <- payload:
	default:
		c.pending.Add(-1)
	}
}

// CardRendered records a fresh render.
func (c *Client) CardRendered(d time.Duration, lines int) {
	c.Event(EventCardRendered, map[string]any{
		"duration_ms": d.Milliseconds(),
		"lines":       lines,
		"cached":      false,
	})
}

// CardCached records a card served from the cache. The line count is not
// stored with cached cards, so it is left out.
func (c *Client) CardCached(d time.Duration) {
	c.Event(EventCardRendered, map[string]any{
		"duration_ms": d.Milliseconds(),
		"cached":      true,
	})
}

// CardFailed records a failed render by failure class only.
func (c *Client) CardFailed(kind string) {
	c.Event(EventCardFailed, map[string]any{"kind": kind})
}

// Flush waits until queued events and crash uploads are sent, ctx is done,
// or two seconds pass.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.NewTimer(2 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if c.uploads.Load() == 0 && c.pending.Load() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

// Close stops the sender goroutine; queued events are dropped.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.closed) })
}

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.send(item)
			c.pending.Add(-1)
		}
	}
}

func (c *Client) send(item map[string]any) {
	buf, err := json.Marshal(item)
	if err != nil {
		return
	}
	c.post(c.cfg.EventsURL, "application/json", buf, "telemetry event")
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug(what+" failed", slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug(what+" sent", slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a crash report in the background if opted in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	b := append([]byte(nil), report...)
	c.uploads.Add(1)
	go func() {
		defer c.uploads.Add(-1)
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b, "crash upload")
	}()
}
