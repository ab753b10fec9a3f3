package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"

	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// rodDriver adapts one go-rod page to Driver.
type rodDriver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	lock     *ProfileLock

	external   bool // attached over CDP; never closed here
	persistent bool // user data dir is a kept profile

	closeOnce sync.Once
	closeErr  error
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (d *rodDriver) WaitReady(ctx context.Context) error {
	p := d.page.Context(ctx)
	if err := p.WaitLoad(); err != nil {
		return err
	}
	// Element waits until a match exists
	_, err := p.Element("body")
	return err
}

func (d *rodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *rodDriver) FindElements(ctx context.Context, selector string) ([]Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, page: d.page})
	}
	return out, nil
}

func (d *rodDriver) Close() error {
	d.closeOnce.Do(func() {
		if d.external {
			if d.page != nil {
				d.closeErr = d.page.Close()
			}
			L_debug("browser: detached from external Chrome")
			return
		}
		if d.browser != nil {
			d.closeErr = d.browser.Close()
		}
		if d.launcher != nil {
			if d.persistent {
				d.launcher.Kill()
			} else {
				// removes the temporary user data dir
				d.launcher.Cleanup()
			}
		}
		if err := d.lock.Unlock(); err != nil && d.closeErr == nil {
			d.closeErr = err
		}
		L_debug("browser: closed")
	})
	return d.closeErr
}

// rodElement adapts a go-rod element to Element.
type rodElement struct {
	el   *rod.Element
	page *rod.Page
}

func (e *rodElement) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *rodElement) Interactable(ctx context.Context) (bool, error) {
	el := e.el.Context(ctx)

	visible, err := el.Visible()
	if err != nil || !visible {
		return false, err
	}
	if disabled, err := el.Attribute("disabled"); err != nil {
		return false, err
	} else if disabled != nil {
		return false, nil
	}
	if aria, err := el.Attribute("aria-disabled"); err == nil && aria != nil && *aria == "true" {
		return false, nil
	}
	if _, err := el.Interactable(); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// covered or zero-size
		return false, nil
	}
	return true, nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) HTML(ctx context.Context) (string, error) {
	return e.el.Context(ctx).HTML()
}

func (e *rodElement) Clear(ctx context.Context) error {
	el := e.el.Context(ctx)

	tag, err := el.Eval(`() => this.tagName`)
	if err != nil {
		return err
	}
	switch strings.ToLower(tag.Value.Str()) {
	case "input", "textarea":
		if err := el.SelectAllText(); err != nil {
			return err
		}
		return el.Input("")
	}

	// contenteditable
	_, err = el.Eval(`() => {
		this.textContent = '';
		this.dispatchEvent(new Event('input', { bubbles: true }));
	}`)
	return err
}

func (e *rodElement) SendKeys(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func (e *rodElement) Submit(ctx context.Context) error {
	if err := e.el.Context(ctx).Focus(); err != nil {
		return err
	}
	return e.page.Context(ctx).Keyboard.Press(input.Enter)
}
