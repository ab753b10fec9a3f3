package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// DefaultProfile is the profile used when none is named.
const DefaultProfile = "default"

// lockFileName sits inside the profile; Chromium ignores unknown files there.
const lockFileName = ".notebooklm-mcp.lock"

// ProfileInfo contains information about a browser profile
type ProfileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	LastUsed time.Time `json:"last_used"`
	InUse    bool      `json:"in_use"`
}

// ProfileManager handles persistent browser profiles under one directory.
type ProfileManager struct {
	profilesDir string
}

// NewProfileManager creates a new profile manager
func NewProfileManager(profilesDir string) *ProfileManager {
	return &ProfileManager{profilesDir: profilesDir}
}

// Dir returns the path of a named profile (does not create it)
func (m *ProfileManager) Dir(name string) string {
	if name == "" {
		name = DefaultProfile
	}
	return filepath.Join(m.profilesDir, name)
}

// EnsureProfileDir creates a profile directory at an arbitrary path.
func EnsureProfileDir(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	return nil
}

// ListProfiles returns information about all profiles
func (m *ProfileManager) ListProfiles() ([]ProfileInfo, error) {
	entries, err := os.ReadDir(m.profilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ProfileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	profiles := []ProfileInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		profiles = append(profiles, profileInfo(entry.Name(), filepath.Join(m.profilesDir, entry.Name())))
	}
	return profiles, nil
}

func profileInfo(name, path string) ProfileInfo {
	info := ProfileInfo{Name: name, Path: path}

	_ = filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !fi.IsDir() {
			info.Size += fi.Size()
		}
		if fi.ModTime().After(info.LastUsed) {
			info.LastUsed = fi.ModTime()
		}
		return nil
	})

	lock := flock.New(filepath.Join(path, lockFileName))
	if ok, err := lock.TryLock(); err == nil {
		if ok {
			_ = lock.Unlock()
		} else {
			info.InUse = true
		}
	}
	return info
}

// ClearProfile removes cookies, cache and login state but keeps the
// directory. A profile held by a running session cannot be cleared.
func (m *ProfileManager) ClearProfile(name string) error {
	dir := m.Dir(name)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return fmt.Errorf("profile does not exist: %s", dir)
	}

	lock, err := LockProfile(context.Background(), dir, 0)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read profile directory: %w", err)
	}
	for _, entry := range entries {
		if entry.Name() == lockFileName {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			L_warn("browser: failed to remove profile entry", "path", p, "error", err)
		}
	}

	L_info("browser: cleared profile", "path", dir)
	return nil
}

// ProfileLock is an exclusive hold on a profile directory.
type ProfileLock struct {
	lock *flock.Flock
}

// ErrProfileInUse is returned when another process holds the profile.
var ErrProfileInUse = errors.New("browser profile is in use by another process")

// LockProfile takes the profile lock. With wait > 0 it retries until the
// wait elapses or ctx ends; otherwise it fails immediately when held.
func LockProfile(ctx context.Context, dir string, wait time.Duration) (*ProfileLock, error) {
	if err := EnsureProfileDir(dir); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, lockFileName))

	var ok bool
	var err error
	if wait > 0 {
		lctx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		ok, err = lock.TryLockContext(lctx, 250*time.Millisecond)
	} else {
		ok, err = lock.TryLock()
	}
	if err != nil && !ok {
		if ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", ErrProfileInUse, dir)
		}
		return nil, fmt.Errorf("lock profile %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileInUse, dir)
	}
	return &ProfileLock{lock: lock}, nil
}

// Unlock releases the profile. Safe on nil.
func (l *ProfileLock) Unlock() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// cleanupStaleLocks removes Chromium singleton files left by a crashed run.
// Only call while holding the ProfileLock.
func cleanupStaleLocks(profileDir string) {
	for _, name := range []string{"SingletonLock", "SingletonCookie", "SingletonSocket"} {
		p := filepath.Join(profileDir, name)
		if _, err := os.Lstat(p); err == nil {
			if err := os.Remove(p); err == nil {
				L_debug("browser: removed stale lock", "file", name)
			}
		}
	}
}

// FormatSize returns a human-readable size string
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
