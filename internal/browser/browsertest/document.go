// Package browsertest provides an in-memory browser.Driver over static HTML
// documents. Selectors are evaluated with goquery, so CSS chains written for
// the real page work unchanged against test fixtures.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("browsertest: document closed")

const blankPage = "<html><head></head><body></body></html>"

// Document is a fake browser page. The current DOM is either the page
// registered for the current URL or the active frame set by SetFrames.
// All methods are safe for concurrent use.
type Document struct {
	mu sync.Mutex

	pages     map[string]string
	redirects map[string]string
	hang      map[string]bool
	findErrs  map[string]error

	url    string
	doc    *goquery.Document
	frames []string
	frame  int

	values    map[*html.Node]string
	submitted []string
	navs      []string
	finds     map[string]int
	closed    bool

	// NavigateErr, when set, fails every Navigate.
	NavigateErr error
	// OnSubmit runs after an element is submitted, with the submitted text.
	// It is called without the lock held and may call back into the Document.
	OnSubmit func(d *Document, text string)
}

// New returns a Document on a blank page.
func New() *Document {
	d := &Document{
		pages:     make(map[string]string),
		redirects: make(map[string]string),
		hang:      make(map[string]bool),
		findErrs:  make(map[string]error),
		values:    make(map[*html.Node]string),
		finds:     make(map[string]int),
		url:       "about:blank",
	}
	d.doc = mustParse(blankPage)
	return d
}

func mustParse(src string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("browsertest: parse html: %v", err))
	}
	return doc
}

// AddPage registers the HTML served for url.
func (d *Document) AddPage(url, src string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[url] = src
	return d
}

// Redirect makes navigation to from end up at to.
func (d *Document) Redirect(from, to string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.redirects[from] = to
	return d
}

// Hang makes WaitReady block until its context ends while url is loaded.
func (d *Document) Hang(url string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hang[url] = true
	return d
}

// FailFind makes FindElements return err for selector.
func (d *Document) FailFind(selector string, err error) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.findErrs[selector] = err
	return d
}

// SetHTML replaces the current DOM without navigating.
func (d *Document) SetHTML(src string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = nil
	d.load(src)
}

// SetFrames scripts a sequence of DOM states for the current URL. The first
// frame is shown immediately; Advance moves to the next and stays on the last.
func (d *Document) SetFrames(frames ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = frames
	d.frame = 0
	if len(frames) > 0 {
		d.load(frames[0])
	}
}

// Advance shows the next scripted frame, if any.
func (d *Document) Advance() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame+1 < len(d.frames) {
		d.frame++
		d.load(d.frames[d.frame])
	}
}

// Frame returns the index of the active frame.
func (d *Document) Frame() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame
}

func (d *Document) load(src string) {
	d.doc = mustParse(src)
	d.values = make(map[*html.Node]string)
}

// Submitted returns every text submitted so far, in order.
func (d *Document) Submitted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.submitted...)
}

// Navigations returns every URL requested through Navigate.
func (d *Document) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navs...)
}

// Finds returns how often selector was queried.
func (d *Document) Finds(selector string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finds[selector]
}

// Closed reports whether Close was called.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Document) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.navs = append(d.navs, url)
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	if to, ok := d.redirects[url]; ok {
		url = to
	}
	d.url = url
	d.frames = nil
	src, ok := d.pages[url]
	if !ok {
		src = blankPage
	}
	d.load(src)
	return nil
}

func (d *Document) WaitReady(ctx context.Context) error {
	d.mu.Lock()
	closed, hang := d.closed, d.hang[d.url]
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}

func (d *Document) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrClosed
	}
	return d.url, nil
}

func (d *Document) FindElements(ctx context.Context, selector string) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.finds[selector]++
	if err := d.findErrs[selector]; err != nil {
		return nil, err
	}

	var out []browser.Element
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{doc: d, sel: s})
	})
	return out, nil
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Element is one node of a Document.
type Element struct {
	doc *Document
	sel *goquery.Selection
}

func (e *Element) node() *html.Node { return e.sel.Get(0) }

func hidden(s *goquery.Selection) bool {
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, ok := n.Attr("hidden"); ok {
			return true
		}
		style := strings.ReplaceAll(strings.ToLower(n.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.closed {
		return false, ErrClosed
	}
	return !hidden(e.sel), nil
}

func (e *Element) Interactable(ctx context.Context) (bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.closed {
		return false, ErrClosed
	}
	if hidden(e.sel) {
		return false, nil
	}
	if _, ok := e.sel.Attr("disabled"); ok {
		return false, nil
	}
	return e.sel.AttrOr("aria-disabled", "") != "true", nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.closed {
		return "", ErrClosed
	}
	if v, ok := e.doc.values[e.node()]; ok {
		return v, nil
	}
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *Element) HTML(ctx context.Context) (string, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.closed {
		return "", ErrClosed
	}
	return goquery.OuterHtml(e.sel)
}

func (e *Element) Clear(ctx context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.closed {
		return ErrClosed
	}
	e.doc.values[e.node()] = ""
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.doc.closed {
		return ErrClosed
	}
	cur, ok := e.doc.values[e.node()]
	if !ok {
		cur = e.sel.AttrOr("value", "")
	}
	e.doc.values[e.node()] = cur + text
	return nil
}

// Submit records the element's current value and fires OnSubmit.
func (e *Element) Submit(ctx context.Context) error {
	e.doc.mu.Lock()
	if e.doc.closed {
		e.doc.mu.Unlock()
		return ErrClosed
	}
	text := e.doc.values[e.node()]
	e.doc.submitted = append(e.doc.submitted, text)
	hook := e.doc.OnSubmit
	e.doc.mu.Unlock()

	if hook != nil {
		hook(e.doc, text)
	}
	return nil
}
