package notebook

import (
	"context"
	"sync"
	"time"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser/browsertest"
)

const (
	testBase     = "https://notebooklm.test"
	testNotebook = "nb-123"
	testURL      = testBase + "/notebook/" + testNotebook
)

const chatPage = `<html><body>
<div class="chat-panel">
  <textarea placeholder="Ask about your sources"></textarea>
</div>
</body></html>`

// fakeClock advances only when slept on. onSleep runs after each advance.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  int
	onSleep func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (c *fakeClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

// docOpener hands out one browsertest.Document.
type docOpener struct {
	mu      sync.Mutex
	doc     *browsertest.Document
	backend browser.Backend
	err     error
	opens   int
}

func (o *docOpener) Open(ctx context.Context) (browser.Driver, browser.Backend, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.err != nil {
		return nil, 0, o.err
	}
	b := o.backend
	if b == 0 {
		b = browser.BackendStealth
	}
	return o.doc, b, nil
}

func (o *docOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// newChatDoc returns a document serving the chat page for the test notebook.
// Each frame becomes the page after a message is submitted; the clock
// advances to the next frame on every sleep.
func newChatDoc(clock *fakeClock, frames ...string) *browsertest.Document {
	doc := browsertest.New().AddPage(testURL, chatPage)
	if len(frames) > 0 {
		doc.OnSubmit = func(d *browsertest.Document, _ string) {
			d.SetFrames(frames...)
		}
	}
	clock.onSleep = doc.Advance
	return doc
}

func testOptions(clock *fakeClock) Options {
	opts := DefaultOptions()
	opts.BaseURL = testBase
	opts.NotebookID = testNotebook
	opts.Clock = clock
	opts.PageTimeout = time.Second
	opts.AuthTimeout = time.Second
	return opts
}

// chatInput keeps the input on response pages, as a live chat does.
const chatInput = `<textarea placeholder="Ask about your sources"></textarea>`

func response(text string) string {
	return `<html><body><div data-testid="chat-response">` + text + `</div>` + chatInput + `</body></html>`
}

func responseGenerating(text string) string {
	return `<html><body><div data-testid="chat-response">` + text + `</div><div class="loading-dots">...</div>` + chatInput + `</body></html>`
}
