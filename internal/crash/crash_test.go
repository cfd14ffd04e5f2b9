/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"quotecard/internal/telemetry"
)

func useTempReportDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := reportDir
	reportDir = func() string { return dir }
	t.Cleanup(func() { reportDir = old })
	return dir
}

func readOnlyReport(t *testing.T, dir string) string {
	t.Helper()
	matches, _ := filepath.Glob(filepath.Join(dir, "quotecard-crash-*.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one crash report in %s, found %d", dir, len(matches))
	}
	b, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	return string(b)
}

func TestWriteReport(t *testing.T) {
	dir := useTempReportDir(t)
	path, err := writeReport("render", "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("report written to %s, want %s", path, dir)
	}
	s := readOnlyReport(t, dir)
	for _, want := range []string{"Quote Card Crash Report", "Where: render", "Panic: boom", "stacktrace"} {
		if !strings.Contains(s, want) {
			t.Fatalf("report missing %q:\n%s", want, s)
		}
	}
}

func TestRecover_WritesReportAndExits(t *testing.T) {
	dir := useTempReportDir(t)

	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	func() {
		defer Recover("serve")
		panic("kaboom")
	}()

	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if s := readOnlyReport(t, dir); !strings.Contains(s, "Panic: kaboom") {
		t.Fatalf("report missing panic:\n%s", s)
	}
}

func TestRecover_UploadsBeforeExit(t *testing.T) {
	useTempReportDir(t)
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "Panic: lost upload") {
			uploads.Add(1)
		}
	}))
	defer srv.Close()

	telemetry.SetDefault(telemetry.Config{OptIn: true, CrashURL: srv.URL, Timeout: 2 * time.Second})
	defer telemetry.SetDefault(telemetry.Config{})

	oldStderr := os.Stderr
	devnull, _ := os.Open(os.DevNull)
	os.Stderr = devnull
	defer func() {
		os.Stderr = oldStderr
		_ = devnull.Close()
	}()

	atExit := int32(-1)
	oldExit := exitFn
	exitFn = func(int) { atExit = uploads.Load() }
	defer func() { exitFn = oldExit }()

	func() {
		defer Recover("render")
		panic("lost upload")
	}()

	if atExit != 1 {
		t.Fatalf("uploads received before exit = %d, want 1", atExit)
	}
}

func TestRecover_NoPanicIsNoop(t *testing.T) {
	called := false
	oldExit := exitFn
	exitFn = func(int) { called = true }
	defer func() { exitFn = oldExit }()

	func() { defer Recover("version") }()
	if called {
		t.Fatalf("exit called without a panic")
	}
}

func TestHandler_Answers500(t *testing.T) {
	dir := useTempReportDir(t)
	h := Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("handler blew up") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cards", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if s := readOnlyReport(t, dir); !strings.Contains(s, "Where: POST /api/cards") {
		t.Fatalf("report missing request:\n%s", s)
	}
}
