package browser

import (
	"path/filepath"
	"strings"

	"github.com/go-rod/rod/lib/devices"
)

// BrowserConfig holds browser launch configuration
type BrowserConfig struct {
	Dir          string // Browser data directory (empty = ~/.notebooklm-mcp/browser)
	Bin          string // Explicit browser binary; skips lookup and download
	AutoDownload bool   // Download Chromium if missing
	Headless     bool   // Run in headless mode
	NoSandbox    bool   // Disable sandbox (needed for Docker/root)
	Stealth      bool   // Probe the stealth backend before the plain one
	Device       string // Device emulation: "clear", "laptop", ...
	ChromeCDP    string // Attach to an existing Chrome at this CDP endpoint

	PersistentProfile bool   // Keep cookies/login between runs
	ProfileDir        string // Explicit profile directory (empty = <Dir>/profiles/default)
}

// DefaultBrowserConfig returns the default browser configuration
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		AutoDownload:      true,
		Headless:          true,
		Stealth:           true,
		Device:            "clear",
		PersistentProfile: true,
	}
}

// ResolveDir returns the browser directory, defaulting to ~/.notebooklm-mcp/browser
func (c *BrowserConfig) ResolveDir(homeDir string) string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(homeDir, ".notebooklm-mcp", "browser")
}

// ResolveBinDir returns the chromium binary directory
func (c *BrowserConfig) ResolveBinDir(homeDir string) string {
	return filepath.Join(c.ResolveDir(homeDir), "bin")
}

// ResolveProfilesDir returns the directory holding managed profiles
func (c *BrowserConfig) ResolveProfilesDir(homeDir string) string {
	return filepath.Join(c.ResolveDir(homeDir), "profiles")
}

// ResolveProfileDir returns the profile directory used for the session
func (c *BrowserConfig) ResolveProfileDir(homeDir string) string {
	if c.ProfileDir != "" {
		return c.ProfileDir
	}
	return filepath.Join(c.ResolveProfilesDir(homeDir), DefaultProfile)
}

// ResolveDevice maps the friendly device name to a go-rod device.
// Unknown names fall back to "clear", which lets the page fill the window.
func (c *BrowserConfig) ResolveDevice() devices.Device {
	switch strings.ToLower(c.Device) {
	case "laptop", "laptop-mdpi":
		return devices.LaptopWithMDPIScreen
	case "laptop-hidpi":
		return devices.LaptopWithHiDPIScreen
	case "laptop-touch":
		return devices.LaptopWithTouch
	case "ipad":
		return devices.IPad
	case "ipad-pro":
		return devices.IPadPro
	default:
		return devices.Clear
	}
}
