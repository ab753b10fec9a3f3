package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "NOTEBOOKLM_"

// LoadDotEnv loads KEY=value pairs from the given .env files into the
// process environment. Missing files are skipped; existing variables win.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			logging.L_warn("config: failed to load env file", "file", f, "error", err)
			continue
		}
		logging.L_debug("config: loaded env file", "file", f)
	}
}

// ApplyEnv overlays NOTEBOOKLM_* variables onto cfg. String and integer
// values are collected into a sparse Config and merged with mergo, so only
// variables that are actually set override the file. Booleans are applied
// directly because false is also a meaningful override.
func ApplyEnv(cfg *Config) error {
	var override Config
	override.BaseURL = env("BASE_URL")
	override.DefaultNotebookID = env("NOTEBOOK_ID")
	override.Auth.ProfileDir = env("PROFILE_DIR")
	override.Browser.Dir = env("BROWSER_DIR")
	override.Browser.Bin = env("BROWSER_BIN")
	override.Browser.ChromeCDP = env("CHROME_CDP")
	override.Server.Transport = env("TRANSPORT")
	override.Server.Host = env("HOST")
	override.Log.Level = env("LOG_LEVEL")
	override.Log.File = env("LOG_FILE")

	ints := []struct {
		name string
		dst  *int
	}{
		{"TIMEOUT", &override.Timeout},
		{"STABILITY_CHECKS", &override.ResponseStabilityChecks},
		{"MAX_WAIT", &override.ResponseMaxWait},
		{"POLL_INTERVAL_MS", &override.PollIntervalMS},
		{"PORT", &override.Server.Port},
	}
	for _, i := range ints {
		raw := env(i.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s%s: %q is not an integer", EnvPrefix, i.name, raw)
		}
		*i.dst = v
	}

	if err := mergo.Merge(cfg, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge environment overrides: %w", err)
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"HEADLESS", &cfg.Headless},
		{"PERSISTENT_SESSION", &cfg.Auth.UsePersistentSession},
		{"STEALTH", &cfg.Browser.Stealth},
		{"NO_SANDBOX", &cfg.Browser.NoSandbox},
		{"AUTO_DOWNLOAD", &cfg.Browser.AutoDownload},
	}
	for _, b := range bools {
		raw := env(b.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s%s: %q is not a boolean", EnvPrefix, b.name, raw)
		}
		*b.dst = v
	}
	return nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}
