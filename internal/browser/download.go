package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod/lib/launcher"

	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// Downloader resolves a Chromium binary under binDir, fetching it on demand.
type Downloader struct {
	binDir  string
	mu      sync.Mutex
	binPath string // cached once resolved
}

// NewDownloader creates a downloader rooted at binDir
func NewDownloader(binDir string) *Downloader {
	return &Downloader{binDir: binDir}
}

// EnsureBrowser returns a usable binary, downloading one when none exists.
// Safe for concurrent use.
func (d *Downloader) EnsureBrowser() (string, error) {
	if path, err := d.FindExistingBrowser(); err == nil {
		return path, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.binDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create browser bin directory: %w", err)
	}

	L_info("browser: downloading chromium", "binDir", d.binDir)

	b := launcher.NewBrowser()
	b.RootDir = d.binDir

	// no-op when the default revision is already present
	binPath, err := b.Get()
	if err != nil {
		return "", fmt.Errorf("failed to download browser: %w", err)
	}

	d.binPath = binPath
	L_info("browser: ready", "path", binPath)
	return binPath, nil
}

// FindExistingBrowser looks for a previously downloaded binary without
// touching the network.
func (d *Downloader) FindExistingBrowser() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.binPath != "" {
		if _, err := os.Stat(d.binPath); err == nil {
			return d.binPath, nil
		}
		d.binPath = ""
	}

	entries, err := os.ReadDir(d.binDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("browser not downloaded: %s does not exist", d.binDir)
		}
		return "", fmt.Errorf("failed to read bin directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidates := []string{
			filepath.Join(d.binDir, entry.Name(), "chrome"),
			filepath.Join(d.binDir, entry.Name(), "chrome.exe"),
			filepath.Join(d.binDir, entry.Name(), "Chromium.app", "Contents", "MacOS", "Chromium"),
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				d.binPath = candidate
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("browser not downloaded: no chromium binary in %s", d.binDir)
}

// ResolveBinary picks the binary to launch: an explicit path, a system
// Chrome found by the launcher, a cached download, or a fresh download.
func ResolveBinary(cfg BrowserConfig, d *Downloader) (string, error) {
	if cfg.Bin != "" {
		if _, err := os.Stat(cfg.Bin); err != nil {
			return "", fmt.Errorf("browser binary %s: %w", cfg.Bin, err)
		}
		return cfg.Bin, nil
	}
	if path, err := d.FindExistingBrowser(); err == nil {
		return path, nil
	}
	if path, ok := launcher.LookPath(); ok {
		L_debug("browser: using system browser", "path", path)
		return path, nil
	}
	if !cfg.AutoDownload {
		return "", fmt.Errorf("no browser found and auto download is disabled")
	}
	return d.EnsureBrowser()
}
