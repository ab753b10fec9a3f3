// Package browser is the DOM automation layer: it opens a Chromium session
// and exposes it through the narrow Driver/Element capability used by the
// notebook session controller. Selectors are opaque strings here.
package browser

import (
	"context"
	"errors"
)

// Backend identifies which startup variant produced a Driver.
type Backend int

const (
	// BackendStealth is a go-rod page with stealth evasions applied.
	BackendStealth Backend = iota + 1
	// BackendPlain is an ordinary go-rod page, used when stealth fails or is disabled.
	BackendPlain
)

func (b Backend) String() string {
	switch b {
	case BackendStealth:
		return "stealth"
	case BackendPlain:
		return "plain"
	default:
		return "none"
	}
}

// ErrNoBackend is returned by Opener.Open when neither variant could start.
var ErrNoBackend = errors.New("no browser backend could be started")

// Opener acquires a driver handle. Implementations resolve their backend
// strategy once, inside Open.
type Opener interface {
	Open(ctx context.Context) (Driver, Backend, error)
}

// Driver is one controllable browser page. It is not safe for concurrent
// use; callers serialize access.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until the document has a body, or ctx ends.
	WaitReady(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	// FindElements returns current matches in document order without waiting.
	FindElements(ctx context.Context, selector string) ([]Element, error)
	Close() error
}

// Element is a reference to one DOM node returned by FindElements.
type Element interface {
	Visible(ctx context.Context) (bool, error)
	// Interactable reports visible, hit-testable and not disabled.
	Interactable(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Submit(ctx context.Context) error
}
