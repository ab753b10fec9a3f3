// Package config loads the notebooklm-mcp configuration.
//
// The file format is JSON with snake_case keys so that config files written
// for earlier NotebookLM MCP servers keep working. Selector chains and
// sanitizer rules are plain data here; empty lists mean "use the built-in
// defaults" and are filled in by the caller.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/paths"
)

// Config represents the merged notebooklm-mcp configuration
type Config struct {
	BaseURL                 string `json:"base_url"`
	DefaultNotebookID       string `json:"default_notebook_id"`
	Headless                bool   `json:"headless"`
	Timeout                 int    `json:"timeout"`                   // Page load timeout, seconds
	ResponseStabilityChecks int    `json:"response_stability_checks"` // Identical polls before a response counts as complete
	ResponseMaxWait         int    `json:"response_max_wait"`         // Seconds to wait for a streaming response
	PollIntervalMS          int    `json:"poll_interval_ms"`          // Stream monitor tick

	Auth      AuthConfig      `json:"auth"`
	Browser   BrowserConfig   `json:"browser"`
	Selectors SelectorConfig  `json:"selectors"`
	Sanitizer SanitizerConfig `json:"sanitizer"`
	Server    ServerConfig    `json:"server"`
	Log       LogConfig       `json:"log"`
}

type AuthConfig struct {
	UsePersistentSession bool     `json:"use_persistent_session"`
	ProfileDir           string   `json:"profile_dir"`        // Empty = <browser dir>/profiles/default
	LoginURLPatterns     []string `json:"login_url_patterns"` // URL substrings meaning "login required"
	CheckTimeout         int      `json:"check_timeout"`      // Seconds to wait for the page during the auth check
}

type BrowserConfig struct {
	Dir          string `json:"dir"`           // Chromium download + profiles (empty = ~/.notebooklm-mcp/browser)
	AutoDownload bool   `json:"auto_download"` // Download Chromium if missing
	Bin          string `json:"bin"`           // Explicit browser binary, skips download
	Stealth      bool   `json:"stealth"`       // Try the stealth backend first
	NoSandbox    bool   `json:"no_sandbox"`    // Needed for Docker/root
	Device       string `json:"device"`        // Device emulation name, "clear" = none
	ChromeCDP    string `json:"chrome_cdp"`    // Attach to an existing Chrome instead of launching
}

type SelectorConfig struct {
	ChatInput    []string `json:"chat_input,omitempty"`
	Response     []string `json:"response,omitempty"`
	Generating   []string `json:"generating,omitempty"`
	FallbackText string   `json:"fallback_text,omitempty"`
	FallbackSkip []string `json:"fallback_skip,omitempty"`
	InputTimeout int      `json:"input_timeout_ms,omitempty"` // Per-selector wait for the chat input
}

type SanitizerConfig struct {
	Artifacts             []string `json:"artifacts,omitempty"`
	AnswerMarkers         []string `json:"answer_markers,omitempty"`
	ArtifactLineMaxLength int      `json:"artifact_line_max_length,omitempty"`
	MinAnswerLength       int      `json:"min_answer_length,omitempty"`
	MinParagraphLength    int      `json:"min_paragraph_length,omitempty"`
	EchoLineMaxLength     int      `json:"echo_line_max_length,omitempty"`
}

type ServerConfig struct {
	Transport string `json:"transport"` // "stdio", "http" or "sse"
	Host      string `json:"host"`
	Port      int    `json:"port"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		BaseURL:                 "https://notebooklm.google.com",
		Headless:                true,
		Timeout:                 60,
		ResponseStabilityChecks: 3,
		ResponseMaxWait:         60,
		PollIntervalMS:          1000,
		Auth: AuthConfig{
			UsePersistentSession: true,
			LoginURLPatterns:     []string{"signin", "accounts.google.com"},
			CheckTimeout:         10,
		},
		Browser: BrowserConfig{
			AutoDownload: true,
			Stealth:      true,
			Device:       "clear",
		},
		Server: ServerConfig{
			Transport: "stdio",
			Host:      "127.0.0.1",
			Port:      8000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path (or the discovered default path when
// empty), then applies NOTEBOOKLM_* environment overrides. A missing file is
// not an error. The returned string is the file that was used, if any.
func Load(path string) (*Config, string, error) {
	cfg, path, err := readFile(path)
	if err != nil {
		return nil, path, err
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, path, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFile is Load without the environment overrides: the defaults plus
// what the file says. Use it before Save so env values are not written out.
func LoadFile(path string) (*Config, string, error) {
	cfg, path, err := readFile(path)
	if err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func readFile(path string) (*Config, string, error) {
	cfg := Default()

	if path == "" {
		found, err := paths.ConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = found
	}
	if path == "" {
		return cfg, "", nil
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, path, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		logging.L_debug("config: loaded", "path", path)
	case errors.Is(err, os.ErrNotExist):
		logging.L_debug("config: file not found, using defaults", "path", path)
	default:
		return nil, path, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return cfg, path, nil
}

// Validate checks values that would otherwise fail much later at runtime.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}
	if c.ResponseStabilityChecks < 1 {
		return fmt.Errorf("response_stability_checks must be at least 1, got %d", c.ResponseStabilityChecks)
	}
	if c.ResponseMaxWait < 0 {
		return fmt.Errorf("response_max_wait must not be negative, got %d", c.ResponseMaxWait)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", c.PollIntervalMS)
	}
	switch c.Server.Transport {
	case "stdio", "http", "sse":
	default:
		return fmt.Errorf("server.transport must be stdio, http or sse, got %q", c.Server.Transport)
	}
	return nil
}

// BaseURLTrimmed returns the base URL without a trailing slash.
func (c *Config) BaseURLTrimmed() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// PageTimeout returns Timeout as a Duration
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// MaxWait returns ResponseMaxWait as a Duration
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.ResponseMaxWait) * time.Second
}

// PollInterval returns PollIntervalMS as a Duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// AuthCheckTimeout returns Auth.CheckTimeout as a Duration, defaulting to 10s
func (c *Config) AuthCheckTimeout() time.Duration {
	if c.Auth.CheckTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Auth.CheckTimeout) * time.Second
}
