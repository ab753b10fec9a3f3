package browser

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// Manager launches Chromium for the notebook session. It implements Opener.
type Manager struct {
	config     BrowserConfig
	homeDir    string
	downloader *Downloader
	profiles   *ProfileManager

	// newPage is swapped in tests to exercise the fallback order.
	newPage func(b *rod.Browser, backend Backend) (*rod.Page, error)
}

// NewManager creates a manager for the given config.
func NewManager(cfg BrowserConfig) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	m := &Manager{
		config:     cfg,
		homeDir:    homeDir,
		downloader: NewDownloader(cfg.ResolveBinDir(homeDir)),
		profiles:   NewProfileManager(cfg.ResolveProfilesDir(homeDir)),
		newPage:    openPage,
	}

	L_debug("browser: manager initialized",
		"dir", cfg.ResolveDir(homeDir),
		"persistent", cfg.PersistentProfile,
		"stealth", cfg.Stealth,
		"headless", cfg.Headless,
	)
	return m, nil
}

// Profiles returns the profile manager
func (m *Manager) Profiles() *ProfileManager { return m.profiles }

// ProfileDir returns the profile used by persistent sessions.
func (m *Manager) ProfileDir() string {
	return m.config.ResolveProfileDir(m.homeDir)
}

// Open starts a browser and returns one page as a Driver. Stealth is tried
// first when enabled; a failure there falls back to a plain page on the
// same browser. Only when both fail is an error returned.
func (m *Manager) Open(ctx context.Context) (Driver, Backend, error) {
	return m.open(ctx, m.config.Headless)
}

// LaunchHeaded opens a visible browser on the persistent profile and
// navigates to startURL, for interactive login.
func (m *Manager) LaunchHeaded(ctx context.Context, startURL string) (Driver, error) {
	drv, _, err := m.open(ctx, false)
	if err != nil {
		return nil, err
	}
	if startURL != "" {
		if err := drv.Navigate(ctx, startURL); err != nil {
			L_warn("browser: failed to navigate to start URL", "url", startURL, "error", err)
		}
	}
	return drv, nil
}

func (m *Manager) open(ctx context.Context, headless bool) (Driver, Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	if m.config.ChromeCDP != "" {
		b, err := m.connectToChrome()
		if err != nil {
			return nil, 0, err
		}
		page, backend, err := m.pickPage(b)
		if err != nil {
			return nil, 0, err
		}
		return &rodDriver{browser: b, page: page, external: true}, backend, nil
	}

	b, l, lock, err := m.launch(ctx, headless)
	if err != nil {
		return nil, 0, err
	}
	drv := &rodDriver{browser: b, launcher: l, lock: lock, persistent: lock != nil}

	page, backend, err := m.pickPage(b)
	if err != nil {
		_ = drv.Close()
		return nil, 0, err
	}
	drv.page = page
	return drv, backend, nil
}

// pickPage applies the stealth-then-plain order.
func (m *Manager) pickPage(b *rod.Browser) (*rod.Page, Backend, error) {
	var errs []error
	order := []Backend{BackendPlain}
	if m.config.Stealth {
		order = []Backend{BackendStealth, BackendPlain}
	}

	for _, backend := range order {
		page, err := m.newPage(b, backend)
		if err == nil {
			L_info("browser: page ready", "backend", backend.String())
			return page, backend, nil
		}
		L_warn("browser: backend failed", "backend", backend.String(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", backend, err))
	}
	return nil, 0, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}

func openPage(b *rod.Browser, backend Backend) (*rod.Page, error) {
	if backend == BackendStealth {
		return stealth.Page(b)
	}
	return b.Page(proto.TargetCreateTarget{})
}

// launch starts Chromium. With a persistent profile the profile is locked
// for the lifetime of the browser; otherwise the launcher's temp dir is used.
func (m *Manager) launch(ctx context.Context, headless bool) (*rod.Browser, *launcher.Launcher, *ProfileLock, error) {
	binPath, err := ResolveBinary(m.config, m.downloader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to ensure browser: %w", err)
	}

	l := launcher.New().
		Bin(binPath).
		Headless(headless).
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("window-size", "1920,1080")

	if m.config.Stealth {
		l = l.Set("disable-blink-features", "AutomationControlled")
	}
	if m.config.NoSandbox {
		l = l.Set("no-sandbox")
	}

	var lock *ProfileLock
	if m.config.PersistentProfile {
		profileDir := m.ProfileDir()
		lock, err = LockProfile(ctx, profileDir, 0)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanupStaleLocks(profileDir)
		l = l.UserDataDir(profileDir)
		L_debug("browser: using persistent profile", "path", profileDir)
	}

	L_debug("browser: launching", "bin", binPath, "headless", headless)

	controlURL, err := l.Launch()
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		_ = lock.Unlock()
		return nil, nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	// rod defaults to LaptopWithMDPIScreen which constrains the viewport
	b.DefaultDevice(m.config.ResolveDevice())

	L_info("browser: launched", "controlURL", controlURL, "headless", headless)
	return b, l, lock, nil
}

// connectToChrome attaches to a browser the user started with remote debugging.
func (m *Manager) connectToChrome() (*rod.Browser, error) {
	endpoint := m.config.ChromeCDP
	L_info("browser: connecting to Chrome", "endpoint", endpoint)

	u, err := launcher.ResolveURL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve CDP endpoint %s: %w", endpoint, err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome at %s (started with --remote-debugging-port?): %w", endpoint, err)
	}
	return b, nil
}
