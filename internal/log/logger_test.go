/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFromEnvAndGetenv(t *testing.T) {
	t.Setenv("QC_LOG_LEVEL", "warn")
	t.Setenv("QC_LOG_FORMAT", "json")
	t.Setenv("QC_LOG_SOURCE", "true")
	t.Setenv("QC_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("QC_SURELY_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestInitJSON_StaticAndContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "json", Writer: &buf})
	t.Cleanup(func() { Init(Options{Writer: os.Stderr}) })

	ctx := ContextWithRequestID(context.Background(), "req-7")
	WithOperation(WithComponent("testcomp"), "op1").InfoContext(ctx, "hello world")

	var last string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log %q: %v", last, err)
	}
	want := map[string]string{
		"app":        "quotecard",
		"component":  "testcomp",
		"op":         "op1",
		"msg":        "hello world",
		"request_id": "req-7",
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s = %v, want %q", k, m[k], v)
		}
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
}

func TestInit_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qc.log")
	var console bytes.Buffer
	Init(Options{Level: "info", File: path, Writer: &console})
	t.Cleanup(func() { Init(Options{Writer: os.Stderr}) })

	L().Info("to both sinks", slog.Int("n", 3))

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(b, []byte(`"msg":"to both sinks"`)) {
		t.Fatalf("file sink missing record: %s", b)
	}
	if out := console.String(); !strings.Contains(out, "INF to both sinks") || !strings.Contains(out, " n=3") {
		t.Fatalf("console sink missing record: %q", console.String())
	}
}

func TestPrettyTextHandler_Behavior(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelWarn}, w: &buf}

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("grp")
	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	r.AddAttrs(slog.Int("n", 42), slog.Float64("pi", 3.14), slog.Bool("ok", true), slog.String("s", "two words"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ERR boom", " k=v", "grp.n=42", "grp.pi=3.14", "grp.ok=true", `grp.s="two words"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "grp.k=") {
		t.Fatalf("attrs added before the group must not be prefixed: %q", out)
	}
}

func TestPrettyTextHandler_SourceWhenAvailable(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(&prettyTextHandler{opts: prettyOpts{Level: slog.LevelInfo, AddSource: true}, w: &buf})
	l.Info("located")

	_, hasSource := any(slog.Record{}).(interface{ Source() *slog.Source })
	out := buf.String()
	if !strings.Contains(out, "INF located") {
		t.Fatalf("unexpected output %q", out)
	}
	if hasSource != strings.Contains(out, "src=") {
		t.Fatalf("src present = %v, Record.Source available = %v: %q", strings.Contains(out, "src="), hasSource, out)
	}
	if hasSource && !strings.Contains(out, "logger_test.go:") {
		t.Fatalf("source does not point at the caller: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARNING": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in).Level(); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
