/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	events  []map[string]any
	crashes [][]byte
}

func (r *recorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(req.Body).Decode(&m)
		r.mu.Lock()
		r.events = append(r.events, m)
		r.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.crashes = append(r.crashes, b)
		r.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_CardEventsAndCrashUpload(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t)

	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}

	c.CardRendered(1500*time.Millisecond, 3)
	c.CardCached(20 * time.Millisecond)
	c.CardFailed("fetch")
	c.UploadCrash([]byte("STACKTRACE"))
	c.Flush(context.Background())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 3 {
		t.Fatalf("got %d events, want 3", len(rec.events))
	}
	ok := rec.events[0]
	if ok["name"] != EventCardRendered || ok["duration_ms"] != float64(1500) || ok["lines"] != float64(3) || ok["cached"] != false {
		t.Fatalf("unexpected rendered event: %v", ok)
	}
	hit := rec.events[1]
	if _, has := hit["lines"]; has || hit["name"] != EventCardRendered || hit["cached"] != true {
		t.Fatalf("cached event should carry no line count: %v", hit)
	}
	if _, has := ok["ts"].(string); !has {
		t.Fatalf("missing ts field")
	}
	if rec.events[2]["name"] != EventCardFailed || rec.events[2]["kind"] != "fetch" {
		t.Fatalf("unexpected failed event: %v", rec.events[2])
	}
	if len(rec.crashes) != 1 || string(rec.crashes[0]) != "STACKTRACE" {
		t.Fatalf("crash upload = %q", rec.crashes)
	}
}

func TestClient_DisabledSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL, CrashURL: srv.URL})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.CardRendered(time.Second, 1)
	c.UploadCrash([]byte("ignored"))

	c2 := New(Config{OptIn: true, EventsURL: srv.URL})
	defer c2.Close()
	c2.Event("", nil)

	c.Flush(context.Background())
	c2.Flush(context.Background())
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestClient_SendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	defer c.Close()
	c.CardFailed("render")
	c.UploadCrash([]byte("oops"))
	c.Flush(context.Background())
}

func TestFromEnvAndDefault(t *testing.T) {
	t.Setenv("QC_TELEMETRY_OPT_IN", "yes")
	t.Setenv("QC_TELEMETRY_URL", "http://127.0.0.1:0")
	t.Setenv("QC_CRASH_UPLOAD_URL", "")
	t.Setenv("QC_TELEMETRY_TIMEOUT_MS", "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL == "" || cfg.RequestTimeout() != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
	c := SetDefault(cfg)
	t.Cleanup(func() { SetDefault(Config{}) })
	if Default() != c || !Default().Enabled() {
		t.Fatalf("default client not installed")
	}
	if (Config{}).RequestTimeout() != 1500*time.Millisecond {
		t.Fatalf("unexpected default timeout")
	}
}

func TestFlush_StopsWithContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{OptIn: true, CrashURL: srv.URL, Timeout: 5 * time.Second})
	defer c.Close()
	c.UploadCrash([]byte("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	c.Flush(ctx)
	if took := time.Since(start); took > time.Second {
		t.Fatalf("Flush ignored the context, took %v", took)
	}
	if c.uploads.Load() != 1 {
		t.Fatalf("upload should still be in flight, got %d", c.uploads.Load())
	}
}
