/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"quotecard/internal/cache"
	"quotecard/internal/card"
	"quotecard/internal/config"
	"quotecard/internal/crash"
	"quotecard/internal/export"
	"quotecard/internal/fetch"
	applog "quotecard/internal/log"
	"quotecard/internal/server"
	"quotecard/internal/telemetry"
	"quotecard/internal/textlayout"
	"quotecard/internal/version"
)

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "quotecard: render quote cards from an avatar, a speech bubble and a line of text")
	_, _ = fmt.Fprintf(w, "Version: %s\n\n", version.String())
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  quotecard version|-v|--version")
	_, _ = fmt.Fprintln(w, "  quotecard render --avatar <url|file> [--bubble <url|file>] --text <quote> [--name <display name>] [--out card.png] [--config path] [--no-cache]")
	_, _ = fmt.Fprintln(w, "  quotecard serve [--addr :8080] [--config path]")
	_, _ = fmt.Fprintln(w, "  quotecard config [--config path]   Print the effective configuration")
	_, _ = fmt.Fprintln(w, "  quotecard config init [--config path] [--force] [--token value]   Write the default configuration")
	_, _ = fmt.Fprintln(w, "  quotecard schema                   Print the configuration JSON schema")
	_, _ = fmt.Fprintln(w, "  quotecard token set <value>|clear  Manage the fetch token in the OS keyring")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code: 0 on success,
// 1 on failure, 2 on usage errors.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	defer crash.Recover(args[0])

	var err error
	switch args[0] {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(stdout, version.String())
		return 0
	case "schema":
		_, err = stdout.Write(config.Schema())
	case "render":
		err = cmdRender(args[1:], stdout)
	case "serve":
		err = cmdServe(args[1:])
	case "config":
		err = cmdConfig(args[1:], stdout, stderr)
	case "token":
		err = cmdToken(args[1:])
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &ue):
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		usage(stderr)
		return 2
	default:
		applog.WithComponent("cli").Error("command failed", slog.String("cmd", args[0]), slog.Any("err", err))
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

// setup loads the configuration and initializes logging and telemetry.
func setup(configPath string) (config.AppConfig, string, error) {
	cfg, token, err := config.Load(configPath)
	if err != nil {
		return cfg, "", err
	}
	applog.Init(cfg.Logging.Options())
	telemetry.SetDefault(cfg.Telemetry)
	return cfg, token, nil
}

func newFetcher(cfg config.FetchConfig, token string, allowFiles bool) fetch.Fetcher {
	h := fetch.NewHTTPFetcher(cfg.Timeout(), token, cfg.TokenHosts)
	if cfg.MaxBytes > 0 {
		h.MaxBytes = cfg.MaxBytes
	}
	m := fetch.Mux{HTTP: h}
	if allowFiles {
		m.File = fetch.FileFetcher{MaxBytes: h.MaxBytes}
	}
	return m
}

func openCache(cfg config.CacheConfig) (*cache.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	path := cfg.Path
	if path == "" {
		p, err := config.DefaultCachePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	c, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	applog.WithComponent("cli").Debug("cache opened", slog.String("path", c.Path()))
	return c, nil
}

func cmdRender(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	var (
		avatar   = fs.String("avatar", "", "avatar image URL or file")
		bubble   = fs.String("bubble", "", "speech bubble template URL or file (default: fetch.default_bubble_url)")
		text     = fs.String("text", "", "quote text")
		name     = fs.String("name", "", "display name shown under the avatar")
		out      = fs.String("out", "card.png", "output PNG path, - for stdout")
		cfgPath  = fs.String("config", "", "config file path")
		noCache  = fs.Bool("no-cache", false, "always render, bypassing the cache")
		deadline = fs.Duration("timeout", 30*time.Second, "overall time limit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *avatar == "" {
		return usageError{"render requires --avatar"}
	}

	cfg, token, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer telemetry.Default().Flush(context.Background())
	if *bubble == "" {
		*bubble = cfg.Fetch.DefaultBubbleURL
	}
	if *bubble == "" {
		return usageError{"render requires --bubble or fetch.default_bubble_url"}
	}

	r, err := card.NewRenderer(cfg.Card, textlayout.NewFontLibrary(), newFetcher(cfg.Fetch, token, true))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *deadline)
	defer cancel()

	start := time.Now()
	png, cached, lines, err := renderCached(ctx, r, cfg, !*noCache, card.Request{
		AvatarURL: *avatar, BubbleURL: *bubble, Text: *text, DisplayName: *name,
	})
	if err != nil {
		telemetry.Default().CardFailed(kindName(err))
		return err
	}
	if cached {
		telemetry.Default().CardCached(time.Since(start))
	} else {
		telemetry.Default().CardRendered(time.Since(start), lines)
	}

	if *out == "-" {
		_, err = stdout.Write(png)
		return err
	}
	if err := export.WritePNG(*out, png); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	applog.WithComponent("cli").Info("card written", slog.String("path", *out), slog.Int("bytes", len(png)), slog.Bool("cached", cached))
	return nil
}

// renderCached fetches the inputs and serves the card from the cache when an
// identical render was stored before.
func renderCached(ctx context.Context, r *card.Renderer, cfg config.AppConfig, useCache bool, req card.Request) ([]byte, bool, int, error) {
	avatar, bubble, err := r.FetchInputs(ctx, req.AvatarURL, req.BubbleURL)
	if err != nil {
		return nil, false, 0, err
	}
	l := applog.WithComponent("cli")

	var c *cache.Cache
	if useCache {
		if c, err = openCache(cfg.Cache); err != nil {
			l.Warn("cache unavailable", slog.Any("err", err))
			c = nil
		}
	}
	if c != nil {
		defer func() { _ = c.Close() }()
	}
	key := cache.Key(server.CacheSalt(r.Config()), avatar, bubble, []byte(req.Text), []byte(req.DisplayName))
	if c != nil {
		if png, ok, err := c.Get(ctx, key); err == nil && ok {
			return png, true, 0, nil
		}
	}

	res, err := r.RenderDetailed(avatar, bubble, req.Text, req.DisplayName)
	if err != nil {
		return nil, false, 0, err
	}
	if c != nil {
		if err := c.Put(ctx, key, res.PNG); err != nil {
			l.Warn("cache store failed", slog.Any("err", err))
		} else if _, err := c.Prune(ctx, cfg.Cache.MaxEntries); err != nil {
			l.Warn("cache prune failed", slog.Any("err", err))
		}
	}
	return res.PNG, false, len(res.Lines), nil
}

func kindName(err error) string {
	switch card.KindOf(err) {
	case card.ErrFetch:
		return "fetch"
	case card.ErrDecode:
		return "decode"
	default:
		return "render"
	}
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (default: server.addr)")
	cfgPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, token, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		if env, ok := config.EnvOverrideFor("server.addr"); ok {
			applog.WithComponent("cli").Info("--addr takes precedence over environment", slog.String("env", env), slog.String("addr", *addr))
		}
		cfg.Server.Addr = *addr
	}

	r, err := card.NewRenderer(cfg.Card, textlayout.NewFontLibrary(), newFetcher(cfg.Fetch, token, cfg.Fetch.AllowFiles))
	if err != nil {
		return err
	}
	c, err := openCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if c != nil {
		defer func() { _ = c.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	tel := telemetry.Default()
	defer tel.Flush(context.Background())

	return server.New(r, server.Options{
		Config:           cfg.Server,
		DefaultBubbleURL: cfg.Fetch.DefaultBubbleURL,
		Cache:            c,
		CacheMaxEntries:  cfg.Cache.MaxEntries,
		Telemetry:        tel,
	}).ListenAndServe(ctx)
}

func cmdConfig(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "init" {
		return cmdConfigInit(args[1:], stdout)
	}
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	for _, o := range config.ActiveOverrides() {
		_, _ = fmt.Fprintf(stderr, "# env override: %s\n", o)
	}
	_, err = stdout.Write(out)
	return err
}

// cmdConfigInit writes the default configuration so it can be edited.
func cmdConfigInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (default: per-user config dir)")
	force := fs.Bool("force", false, "overwrite an existing file")
	token := fs.String("token", "", "also store this fetch token in the keyring")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := *cfgPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Save(path, config.Defaults(), *token); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "wrote", path)
	return nil
}

func cmdToken(args []string) error {
	switch {
	case len(args) == 2 && args[0] == "set":
		return config.SetToken(args[1])
	case len(args) == 1 && args[0] == "clear":
		return config.ClearToken()
	default:
		return usageError{"token expects 'set <value>' or 'clear'"}
	}
}
