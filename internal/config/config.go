/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the YAML configuration shared by the CLI and the HTTP
// server. Values come from, in order: built-in defaults, the config file
// (validated against the embedded JSON schema) and QC_* environment
// variables. The upstream fetch token never touches the file; it lives in the
// OS keyring.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"quotecard/internal/card"
	applog "quotecard/internal/log"
	"quotecard/internal/telemetry"
)

//go:embed config.schema.json
var schemaJSON []byte

// Schema returns the JSON schema config files are validated against.
func Schema() []byte { return append([]byte(nil), schemaJSON...) }

// CurrentVersion is written by Save. Bump it when a field changes meaning.
const CurrentVersion = 1

type FetchConfig struct {
	TimeoutMs        int      `yaml:"timeout_ms"`
	MaxBytes         int64    `yaml:"max_bytes"`
	TokenHosts       []string `yaml:"token_hosts"`
	DefaultBubbleURL string   `yaml:"default_bubble_url"`
	AllowFiles       bool     `yaml:"allow_files"`
}

// Timeout is the per-request fetch timeout.
func (f FetchConfig) Timeout() time.Duration {
	if f.TimeoutMs <= 0 {
		return time.Duration(Defaults().Fetch.TimeoutMs) * time.Millisecond
	}
	return time.Duration(f.TimeoutMs) * time.Millisecond
}

type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"` // file or postgres:// URL; empty: DefaultCachePath()
	MaxEntries int    `yaml:"max_entries"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Options converts the section for log.Init.
func (l LoggingConfig) Options() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}

type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	Card          card.Config      `yaml:"card"`
	Fetch         FetchConfig      `yaml:"fetch"`
	Cache         CacheConfig      `yaml:"cache"`
	Server        ServerConfig     `yaml:"server"`
	Telemetry     telemetry.Config `yaml:"telemetry"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: CurrentVersion,
		Card:          card.DefaultConfig(),
		Fetch:         FetchConfig{TimeoutMs: 15000, MaxBytes: 10 << 20},
		Cache:         CacheConfig{Enabled: true, MaxEntries: 1000},
		Server:        ServerConfig{Addr: ":8080", ReadTimeoutMs: 10000, WriteTimeoutMs: 30000, MaxBodyBytes: 64 << 10},
		Telemetry:     telemetry.Config{TimeoutMs: 1500},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Validate checks cross-field rules the schema cannot express.
func (c AppConfig) Validate() error {
	var errs []error
	if err := c.Card.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ConfigVersion > CurrentVersion {
		errs = append(errs, fmt.Errorf("config_version %d is newer than supported version %d", c.ConfigVersion, CurrentVersion))
	}
	if c.Fetch.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("fetch.max_bytes must not be negative"))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must not be negative"))
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	return errors.Join(errs...)
}

// Env var names used as overrides.
const (
	EnvConfigPath       = "QC_CONFIG"
	EnvFetchToken       = "QC_FETCH_TOKEN"
	EnvFetchTimeoutMs   = "QC_FETCH_TIMEOUT_MS"
	EnvDefaultBubbleURL = "QC_DEFAULT_BUBBLE_URL"
	EnvAllowFiles       = "QC_ALLOW_FILES"
	EnvCardAnchor       = "QC_CARD_ANCHOR"
	EnvCacheEnabled     = "QC_CACHE_ENABLED"
	EnvCachePath        = "QC_CACHE_PATH"
	EnvServerAddr       = "QC_SERVER_ADDR"
	EnvTelemetryOptIn   = "QC_TELEMETRY_OPT_IN"
	EnvTelemetryURL     = "QC_TELEMETRY_URL"
	EnvCrashUploadURL   = "QC_CRASH_UPLOAD_URL"
	EnvLogLevel         = "QC_LOG_LEVEL"
	EnvLogFormat        = "QC_LOG_FORMAT"
	EnvLogSource        = "QC_LOG_SOURCE"
	EnvLogFile          = "QC_LOG_FILE"
)

// envOverrides maps dotted config keys to the variable that overrides them
// and how to apply it.
var envOverrides = []struct {
	key   string
	env   string
	apply func(*AppConfig, string)
}{
	{"fetch.timeout_ms", EnvFetchTimeoutMs, func(c *AppConfig, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fetch.TimeoutMs = n
		}
	}},
	{"fetch.default_bubble_url", EnvDefaultBubbleURL, func(c *AppConfig, v string) { c.Fetch.DefaultBubbleURL = v }},
	{"fetch.allow_files", EnvAllowFiles, func(c *AppConfig, v string) { c.Fetch.AllowFiles = telemetry.ParseBool(v) }},
	{"card.anchor", EnvCardAnchor, func(c *AppConfig, v string) { c.Card.Anchor = strings.ToLower(v) }},
	{"cache.enabled", EnvCacheEnabled, func(c *AppConfig, v string) { c.Cache.Enabled = telemetry.ParseBool(v) }},
	{"cache.path", EnvCachePath, func(c *AppConfig, v string) { c.Cache.Path = v }},
	{"server.addr", EnvServerAddr, func(c *AppConfig, v string) { c.Server.Addr = v }},
	{"telemetry.opt_in", EnvTelemetryOptIn, func(c *AppConfig, v string) { c.Telemetry.OptIn = telemetry.ParseBool(v) }},
	{"telemetry.events_url", EnvTelemetryURL, func(c *AppConfig, v string) { c.Telemetry.EventsURL = v }},
	{"telemetry.crash_url", EnvCrashUploadURL, func(c *AppConfig, v string) { c.Telemetry.CrashURL = v }},
	{"logging.level", EnvLogLevel, func(c *AppConfig, v string) { c.Logging.Level = strings.ToLower(v) }},
	{"logging.format", EnvLogFormat, func(c *AppConfig, v string) { c.Logging.Format = strings.ToLower(v) }},
	{"logging.source", EnvLogSource, func(c *AppConfig, v string) { c.Logging.Source = telemetry.ParseBool(v) }},
	{"logging.file", EnvLogFile, func(c *AppConfig, v string) { c.Logging.File = v }},
}

func applyEnvOverrides(cfg *AppConfig) {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			o.apply(cfg, v)
		}
	}
}

// EnvOverrideFor returns the env var name if the key is overridden by the
// environment.
func EnvOverrideFor(key string) (string, bool) {
	for _, o := range envOverrides {
		if o.key == key && os.Getenv(o.env) != "" {
			return o.env, true
		}
	}
	return "", false
}

// ActiveOverrides lists "key=ENV" for every config key currently overridden
// by the environment, in a stable order.
func ActiveOverrides() []string {
	var out []string
	for _, o := range envOverrides {
		if os.Getenv(o.env) != "" {
			out = append(out, o.key+"="+o.env)
		}
	}
	return out
}

// Keyring location of the fetch token.
const (
	keyringService = "quotecard"
	keyringToken   = "fetch_token"
)

// tokenStore abstracts the keyring so tests can stub it.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring stores secrets in the platform keychain via go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error  { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error       { return keyring.Delete(service, key) }

// ConfigPath returns the config file location: $QC_CONFIG, else
// <user config dir>/quotecard/config.yaml.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve config directory: %w", err)
	}
	return filepath.Join(base, "quotecard", "config.yaml"), nil
}

// DefaultCachePath is used when cache.path is empty.
func DefaultCachePath() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve cache directory: %w", err)
	}
	return filepath.Join(base, "quotecard", "cards.db"), nil
}

// Load reads the config at path (ConfigPath() when empty), applies env
// overrides and validates the result. A missing file is not an error. The
// fetch token is returned separately: QC_FETCH_TOKEN if set, else the keyring
// entry, else "".
func Load(path string) (AppConfig, string, error) {
	cfg := Defaults()
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return cfg, "", err
		}
		path = p
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, "", fmt.Errorf("read config: %w", err)
	default:
		if err := validateDocument(data); err != nil {
			return cfg, "", fmt.Errorf("config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, "", fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	return cfg, loadToken(), nil
}

func loadToken() string {
	if v := strings.TrimSpace(os.Getenv(EnvFetchToken)); v != "" {
		return v
	}
	tok, err := tokenStore.Get(keyringService, keyringToken)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			applog.WithComponent("config").Debug("keyring unavailable", slog.Any("err", err))
		}
		return ""
	}
	return tok
}

// validateDocument checks YAML data against the embedded schema.
func validateDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if res.Valid() {
		return nil
	}
	errs := make([]error, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		errs = append(errs, errors.New(e.String()))
	}
	return fmt.Errorf("does not match schema: %w", errors.Join(errs...))
}

// Save writes cfg as YAML to path (ConfigPath() when empty) and stores a
// non-empty token in the keyring.
func Save(path string, cfg AppConfig, token string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cfg.ConfigVersion = CurrentVersion
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// SetToken stores the fetch token in the keyring without touching the file.
func SetToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("token must not be empty")
	}
	return tokenStore.Set(keyringService, keyringToken, token)
}

// ClearToken removes the stored fetch token.
func ClearToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
