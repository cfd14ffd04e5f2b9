/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHTTPFetcher_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(2*time.Second, "", nil)
	b, err := f.Fetch(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if string(b) != "png-bytes" {
		t.Fatalf("body = %q", b)
	}
}

func TestHTTPFetcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(2*time.Second, "", nil).Fetch(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", se.StatusCode)
	}
}

func TestHTTPFetcher_TokenOnlyForListedHosts(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
	}))
	defer srv.Close()
	host, _ := url.Parse(srv.URL)

	withHost := NewHTTPFetcher(time.Second, "s3cret", []string{host.Hostname()})
	if _, err := withHost.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	withoutHost := NewHTTPFetcher(time.Second, "s3cret", []string{"assets.example.test"})
	if _, err := withoutHost.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(got) != 2 || got[0] != "Bearer s3cret" || got[1] != "" {
		t.Fatalf("authorization headers = %q", got)
	}
}

func TestHTTPFetcher_SizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, "", nil)
	f.MaxBytes = 32
	if _, err := f.Fetch(context.Background(), srv.URL); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestHTTPFetcher_RejectsOtherSchemes(t *testing.T) {
	if _, err := NewHTTPFetcher(time.Second, "", nil).Fetch(context.Background(), "ftp://example.test/a.png"); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
}

func TestMux_RoutesByScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bubble.png")
	if err := os.WriteFile(path, []byte("local"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := Mux{File: FileFetcher{}}
	for _, loc := range []string{path, "file://" + path} {
		b, err := m.Fetch(context.Background(), loc)
		if err != nil {
			t.Fatalf("Fetch(%q) error: %v", loc, err)
		}
		if string(b) != "local" {
			t.Fatalf("Fetch(%q) = %q", loc, b)
		}
	}
	if _, err := m.Fetch(context.Background(), "https://example.test/a.png"); err == nil {
		t.Fatalf("expected error when HTTP is not configured")
	}
	if _, err := (Mux{}).Fetch(context.Background(), path); err == nil {
		t.Fatalf("expected error when file fetching is not configured")
	}
}
