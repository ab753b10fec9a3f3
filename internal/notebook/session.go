// Package notebook drives one NotebookLM chat session: it resolves the
// page's volatile elements, submits messages, waits for streamed answers to
// settle and cleans the extracted text.
package notebook

import (
	"context"
	"strings"
	"sync"
	"time"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser"
	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	NotStarted SessionState = iota
	Started
	Authenticated
	Closed
)

func (s SessionState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Started:
		return "started"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Response formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Options configures a Session.
type Options struct {
	BaseURL    string
	NotebookID string
	// PageTimeout bounds navigation and page readiness.
	PageTimeout time.Duration
	// AuthTimeout bounds the readiness wait during the login check.
	AuthTimeout      time.Duration
	LoginURLPatterns []string
	Selectors        Selectors
	Rules            Rules
	Stream           StreamOptions
	Clock            Clock
}

// DefaultOptions returns options for notebooklm.google.com.
func DefaultOptions() Options {
	return Options{
		BaseURL:          "https://notebooklm.google.com",
		PageTimeout:      60 * time.Second,
		AuthTimeout:      10 * time.Second,
		LoginURLPatterns: []string{"signin", "accounts.google.com"},
		Selectors:        DefaultSelectors(),
		Rules:            DefaultRules(),
		Stream:           DefaultStreamOptions(),
		Clock:            RealClock,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BaseURL == "" {
		o.BaseURL = d.BaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.PageTimeout <= 0 {
		o.PageTimeout = d.PageTimeout
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = d.AuthTimeout
	}
	if o.LoginURLPatterns == nil {
		o.LoginURLPatterns = d.LoginURLPatterns
	}
	if o.Stream.RequiredStable <= 0 {
		o.Stream.RequiredStable = d.Stream.RequiredStable
	}
	if o.Stream.MaxWait <= 0 {
		o.Stream.MaxWait = d.Stream.MaxWait
	}
	if o.Stream.Interval <= 0 {
		o.Stream.Interval = d.Stream.Interval
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	o.Selectors = o.Selectors.withDefaults()
	o.Rules = o.Rules.withDefaults()
	return o
}

// NotebookURL returns the chat URL for a notebook id.
func (o Options) NotebookURL(id string) string {
	return strings.TrimRight(o.BaseURL, "/") + "/notebook/" + id
}

// Response is a sanitized answer plus how it was obtained.
type Response struct {
	Text     string        `json:"response"`
	Raw      string        `json:"-"`
	Complete bool          `json:"complete"`
	Polls    int           `json:"polls"`
	Elapsed  time.Duration `json:"-"`
	Format   string        `json:"format"`
}

// ResponseRequest selects how GetResponse reads the page.
type ResponseRequest struct {
	Wait bool
	// MaxWait overrides the configured deadline when positive.
	MaxWait time.Duration
	Format  string
}

// Status is a point-in-time view of a Session.
type Status struct {
	State         SessionState `json:"-"`
	StateName     string       `json:"state"`
	Authenticated bool         `json:"authenticated"`
	NotebookID    string       `json:"notebook_id"`
	Backend       string       `json:"backend"`
}

// Session owns one browser driver and the conversation state around it.
// Operations must be serialized by the caller; Status may be called at any time.
type Session struct {
	opener browser.Opener

	mu            sync.Mutex
	opts          Options
	drv           browser.Driver
	backend       browser.Backend
	state         SessionState
	notebookID    string
	authenticated bool
}

// NewSession creates a session that will acquire its driver from opener.
func NewSession(opener browser.Opener, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		opener:     opener,
		opts:       opts,
		notebookID: opts.NotebookID,
	}
}

// Reconfigure replaces selectors, rules, stream and timing options for
// subsequent operations. The current notebook is kept.
func (s *Session) Reconfigure(opts Options) {
	opts = opts.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
}

func (s *Session) options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:         s.state,
		StateName:     s.state.String(),
		Authenticated: s.authenticated,
		NotebookID:    s.notebookID,
	}
	if s.backend != 0 {
		st.Backend = s.backend.String()
	}
	return st
}

// Start acquires the driver. Starting a started session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case Started, Authenticated:
		return nil
	case Closed:
		return newError(KindSessionClosed, "start", "session is closed", nil)
	}

	clock := s.options().Clock
	start := clock.Now()
	drv, backend, err := s.opener.Open(ctx)
	if err != nil {
		return newError(KindSessionStart, "start", "could not start a browser backend", err)
	}

	s.mu.Lock()
	s.drv = drv
	s.backend = backend
	s.state = Started
	s.mu.Unlock()

	L_info("session: browser started", "backend", backend.String(),
		"elapsed", clock.Now().Sub(start).Round(time.Millisecond).String())
	return nil
}

// driver returns the live driver or a tagged error for op.
func (s *Session) driver(op string, kind Kind) (browser.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Closed:
		return nil, newError(KindSessionClosed, op, "session is closed", nil)
	case NotStarted:
		return nil, newError(kind, op, "browser not started", nil)
	}
	return s.drv, nil
}

// Authenticate opens the current notebook (or the base URL) and checks
// whether the browser landed on a login page. Landing on one is reported
// through AuthStatus, not as an error.
func (s *Session) Authenticate(ctx context.Context) (AuthStatus, error) {
	drv, err := s.driver("authenticate", KindNavigation)
	if err != nil {
		return AuthStatus{}, err
	}
	opts := s.options()

	target := opts.BaseURL
	if id := s.Status().NotebookID; id != "" {
		target = opts.NotebookURL(id)
	}
	L_info("session: checking authentication", "url", target)

	nctx, cancel := context.WithTimeout(ctx, opts.PageTimeout)
	defer cancel()
	if err := drv.Navigate(nctx, target); err != nil {
		return AuthStatus{}, newError(KindNavigation, "authenticate", "failed to load "+target, err)
	}

	wctx, wcancel := context.WithTimeout(ctx, opts.AuthTimeout)
	defer wcancel()
	if err := drv.WaitReady(wctx); err != nil {
		return AuthStatus{}, newError(KindNavigation, "authenticate", "page load timed out during authentication", err)
	}

	current, err := drv.CurrentURL(ctx)
	if err != nil {
		return AuthStatus{}, newError(KindNavigation, "authenticate", "could not read current URL", err)
	}

	ok := !LoginRequired(current, opts.LoginURLPatterns)

	s.mu.Lock()
	s.authenticated = ok
	if ok {
		s.state = Authenticated
	} else if s.state == Authenticated {
		s.state = Started
	}
	s.mu.Unlock()

	if ok {
		L_info("session: authenticated", "url", current)
	} else {
		L_warn("session: login required, run the login command to sign in", "url", current)
	}
	return AuthStatus{Authenticated: ok, URL: current}, nil
}

// LoginRequired reports whether url matches one of the login URL patterns.
func LoginRequired(url string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(url, p) {
			return true
		}
	}
	return false
}

// SendMessage normalizes text and submits it to the chat input of the
// current notebook, authenticating first if needed. It returns the text as
// submitted.
func (s *Session) SendMessage(ctx context.Context, text string) (string, error) {
	const op = "send_message"

	drv, err := s.driver(op, KindChat)
	if err != nil {
		return "", err
	}
	msg := NormalizeMessage(text)
	if msg == "" {
		return "", newError(KindChat, op, "message is empty", nil)
	}

	if !s.Status().Authenticated {
		L_info("session: first use, authenticating")
		st, err := s.Authenticate(ctx)
		if err != nil {
			return "", newError(KindChat, op, "authentication failed", err)
		}
		if !st.Authenticated {
			return "", newError(KindChat, op, "authentication failed - manual login required", nil)
		}
	}

	if id := s.Status().NotebookID; id != "" {
		current, err := drv.CurrentURL(ctx)
		if err != nil || !strings.Contains(current, "notebook/"+id) {
			if _, err := s.NavigateTo(ctx, id); err != nil {
				return "", newError(KindChat, op, "could not open notebook "+id, err)
			}
		}
	}

	opts := s.options()
	resolver := Resolver{Clock: opts.Clock}
	input, selector, err := resolver.Resolve(ctx, drv, "chat input", opts.Selectors.ChatInput, NeedInteractable, opts.Selectors.InputTimeout)
	if err != nil {
		return "", newError(KindChat, op, "could not find chat input element", err)
	}
	L_debug("session: chat input found", "selector", selector)

	if err := input.Clear(ctx); err != nil {
		return "", newError(KindChat, op, "failed to clear chat input", err)
	}
	if err := input.SendKeys(ctx, msg); err != nil {
		return "", newError(KindChat, op, "failed to type message", err)
	}
	if err := input.Submit(ctx); err != nil {
		return "", newError(KindChat, op, "failed to submit message", err)
	}

	L_info("session: message sent", "chars", runeLen(msg))
	return msg, nil
}

// GetResponse reads the latest answer. With Wait it polls until the stream
// settles or the deadline passes; otherwise it takes one sample.
func (s *Session) GetResponse(ctx context.Context, req ResponseRequest) (Response, error) {
	const op = "get_response"

	drv, err := s.driver(op, KindChat)
	if err != nil {
		return Response{}, err
	}
	opts := s.options()

	format := req.Format
	if format == "" {
		format = FormatText
	}

	var last extraction
	sample := func(ctx context.Context) (Sample, error) {
		ex, err := extractResponse(ctx, drv, opts.Selectors)
		if err != nil {
			return Sample{}, err
		}
		if ex.text != "" {
			last = ex
		}
		return Sample{Text: ex.text, Generating: generating(ctx, drv, opts.Selectors)}, nil
	}

	resp := Response{Format: format}
	if req.Wait {
		stream := opts.Stream
		if req.MaxWait > 0 {
			stream.MaxWait = req.MaxWait
		}
		L_debug("session: waiting for response", "maxWait", stream.MaxWait, "stable", stream.RequiredStable)

		res, err := Watch(ctx, opts.Clock, sample, stream)
		if err != nil {
			return Response{}, newError(KindChat, op, "response wait interrupted", err)
		}
		resp.Raw, resp.Complete, resp.Polls, resp.Elapsed = res.Text, res.Complete, res.Polls, res.Elapsed
		if last.text == "" {
			resp.Text = res.Text
			return resp, nil
		}
	} else {
		smp, err := sample(ctx)
		if err != nil {
			return Response{}, newError(KindChat, op, "could not read response", err)
		}
		resp.Polls = 1
		resp.Complete = !smp.Generating
		if smp.Text == "" {
			resp.Text = NoResponseContent
			return resp, nil
		}
		resp.Raw = smp.Text
	}

	resp.Text = opts.Rules.Sanitize(resp.Raw)
	if format == FormatMarkdown && last.el != nil {
		if md, ok := markdownOf(ctx, last.el); ok {
			resp.Text = opts.Rules.Sanitize(md)
		}
	}
	return resp, nil
}

func markdownOf(ctx context.Context, el browser.Element) (string, bool) {
	html, err := el.HTML(ctx)
	if err != nil {
		L_debug("session: cannot read response html", "error", err)
		return "", false
	}
	md, err := htmltomd.ConvertString(html)
	if err != nil {
		L_warn("session: markdown conversion failed, using text", "error", err)
		return "", false
	}
	md = strings.TrimSpace(md)
	return md, md != ""
}

// NavigateTo opens a notebook and waits for the page to be ready. The
// current notebook only changes on success.
func (s *Session) NavigateTo(ctx context.Context, id string) (string, error) {
	const op = "navigate_to_notebook"

	drv, err := s.driver(op, KindNavigation)
	if err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", newError(KindNavigation, op, "notebook id is required", nil)
	}
	opts := s.options()
	url := opts.NotebookURL(id)

	nctx, cancel := context.WithTimeout(ctx, opts.PageTimeout)
	defer cancel()
	if err := drv.Navigate(nctx, url); err != nil {
		return "", newError(KindNavigation, op, "failed to navigate to notebook "+id, err)
	}
	if err := drv.WaitReady(nctx); err != nil {
		return "", newError(KindNavigation, op, "failed to navigate to notebook "+id, err)
	}

	current, err := drv.CurrentURL(ctx)
	if err != nil {
		current = url
	}

	s.mu.Lock()
	s.notebookID = id
	s.mu.Unlock()

	L_info("session: notebook opened", "id", id)
	return current, nil
}

// Close releases the driver. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return nil
	}
	drv := s.drv
	s.drv = nil
	s.state = Closed
	s.authenticated = false
	s.mu.Unlock()

	if drv == nil {
		return nil
	}
	if err := drv.Close(); err != nil {
		L_warn("session: error closing browser", "error", err)
		return err
	}
	L_info("session: closed")
	return nil
}
