package notebook

import (
	"context"
	"time"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser"
	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// Need is the condition a resolved element must satisfy.
type Need int

const (
	// NeedPresent accepts any match (read targets).
	NeedPresent Need = iota
	// NeedInteractable requires a visible, enabled match (input targets).
	NeedInteractable
)

const resolvePollInterval = 100 * time.Millisecond

// Resolver maps a selector chain to one live element.
type Resolver struct {
	Clock    Clock
	Interval time.Duration
}

// Resolve tries each selector in order, waiting up to perSelector for a
// match that satisfies need. The first selector that produces one wins and
// later selectors are never queried. A zero perSelector checks each
// selector once. Driver errors count as "no match yet".
func (r Resolver) Resolve(ctx context.Context, drv browser.Driver, target string, chain []string, need Need, perSelector time.Duration) (browser.Element, string, error) {
	clock := r.Clock
	if clock == nil {
		clock = RealClock
	}
	interval := r.Interval
	if interval <= 0 {
		interval = resolvePollInterval
	}

	for _, selector := range chain {
		deadline := clock.Now().Add(perSelector)
		for {
			el, err := firstMatch(ctx, drv, selector, need)
			if err != nil {
				return nil, "", err
			}
			if el != nil {
				L_debug("resolver: matched", "target", target, "selector", selector)
				return el, selector, nil
			}

			remaining := deadline.Sub(clock.Now())
			if remaining <= 0 {
				break
			}
			if err := clock.Sleep(ctx, min(interval, remaining)); err != nil {
				return nil, "", err
			}
		}
		L_trace("resolver: selector timed out", "target", target, "selector", selector)
	}

	return nil, "", &ElementNotFoundError{Target: target, Selectors: chain, Timeout: perSelector}
}

// firstMatch returns the first element in document order that satisfies
// need, or nil. Only context errors are returned.
func firstMatch(ctx context.Context, drv browser.Driver, selector string, need Need) (browser.Element, error) {
	els, err := drv.FindElements(ctx, selector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		L_trace("resolver: query failed", "selector", selector, "error", err)
		return nil, nil
	}

	for _, el := range els {
		if need == NeedPresent {
			return el, nil
		}
		ok, err := el.Interactable(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ok {
			return el, nil
		}
	}
	return nil, nil
}
