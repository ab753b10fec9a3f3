package notebook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser"
	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Options  Options
	Headless bool
	// Persist stores a new default notebook id, e.g. in the config file.
	Persist func(notebookID string) error
}

// Service is the long-lived front of a Session. The browser is started on
// first use and every session operation runs on one Worker, so concurrent
// callers are queued rather than interleaved.
type Service struct {
	opener  browser.Opener
	worker  *Worker
	persist func(string) error
	mode    string

	mu      sync.Mutex
	opts    Options
	dirty   bool
	session *Session
	// fileNotebook is the default notebook from the last applied config,
	// so reloads only override a runtime choice when the config changed it.
	fileNotebook string
}

// NewService creates a service; no browser is started until the first call.
func NewService(opener browser.Opener, cfg ServiceConfig) *Service {
	mode := "gui"
	if cfg.Headless {
		mode = "headless"
	}
	return &Service{
		opener:  opener,
		worker:  NewWorker(),
		persist: cfg.Persist,
		mode:    mode,
		opts:    cfg.Options,

		fileNotebook: cfg.Options.NotebookID,
	}
}

// ensure returns the live session, starting a new one if there is none or
// the previous one was closed. Runs on the worker.
func (s *Service) ensure(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	sess, opts, dirty := s.session, s.opts, s.dirty
	s.dirty = false
	s.mu.Unlock()

	if sess != nil && sess.Status().State == Closed {
		sess = nil
	}
	if sess == nil {
		L_info("service: first tool call, starting browser")
		sess = NewSession(s.opener, opts)
		if err := sess.Start(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.session = sess
		s.mu.Unlock()
		return sess, nil
	}
	if dirty {
		L_debug("service: applying updated options")
		sess.Reconfigure(opts)
	}
	return sess, nil
}

// do runs fn against the session on the worker and tags scheduling errors.
func do[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context, sess *Session) (T, error)) (T, error) {
	out, err := call(ctx, s.worker, func(ctx context.Context) (T, error) {
		sess, err := s.ensure(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx, sess)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrWorkerStopped):
		err = newError(KindSessionClosed, op, "service is shut down", err)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		err = newError(KindCanceled, op, "request abandoned; the browser operation may still be running", err)
	}
	return out, err
}

// Health is the healthcheck outcome. Failures are reported here rather than
// as an error.
type Health struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Kind          Kind   `json:"kind,omitempty"`
	Authenticated bool   `json:"authenticated"`
	NotebookID    string `json:"notebook_id"`
	Mode          string `json:"mode"`
	Backend       string `json:"backend,omitempty"`
	State         string `json:"state"`
}

// Health starts the browser if needed and reports its state. With
// checkAuth, an unauthenticated session runs the login check first.
func (s *Service) Health(ctx context.Context, checkAuth bool) Health {
	h := Health{NotebookID: s.DefaultNotebook(), Mode: s.mode}

	st, err := do(ctx, s, "healthcheck", func(ctx context.Context, sess *Session) (Status, error) {
		if checkAuth && !sess.Status().Authenticated {
			if _, err := sess.Authenticate(ctx); err != nil {
				return sess.Status(), err
			}
		}
		return sess.Status(), nil
	})

	h.Authenticated = st.Authenticated
	h.Backend = st.Backend
	h.State = st.StateName
	switch {
	case err != nil:
		h.Status = "error"
		h.Message = "health check failed: " + err.Error()
		h.Kind = KindOf(err)
		if h.State == "" {
			h.State = s.Status().StateName
		}
	case st.Authenticated:
		h.Status = "healthy"
		h.Message = "server is running and signed in"
	default:
		h.Status = "needs_auth"
		h.Message = "server is running; sign-in not confirmed yet"
	}
	return h
}

// SendResult is the outcome of Send.
type SendResult struct {
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Response *Response `json:"response,omitempty"`
}

// Send submits message and, with wait, reads the answer in the same job.
func (s *Service) Send(ctx context.Context, message string, wait bool, maxWait time.Duration, format string) (SendResult, error) {
	return do(ctx, s, "send_chat_message", func(ctx context.Context, sess *Session) (SendResult, error) {
		sent, err := sess.SendMessage(ctx, message)
		if err != nil {
			return SendResult{}, err
		}
		res := SendResult{Status: "sent", Message: sent}
		if !wait {
			return res, nil
		}
		resp, err := sess.GetResponse(ctx, ResponseRequest{Wait: true, MaxWait: maxWait, Format: format})
		if err != nil {
			return res, afterSend("send_chat_message", err)
		}
		res.Status = "completed"
		res.Response = &resp
		return res, nil
	})
}

// afterSend tags a response failure that happened once the message was
// already submitted, so callers do not resend it.
func afterSend(op string, err error) error {
	return newError(KindOf(err), op, "message was sent but waiting for the response failed: "+MessageOf(err), err)
}

// Response reads the latest answer.
func (s *Service) Response(ctx context.Context, req ResponseRequest) (Response, error) {
	return do(ctx, s, "get_chat_response", func(ctx context.Context, sess *Session) (Response, error) {
		return sess.GetResponse(ctx, req)
	})
}

// ChatResult is the outcome of Chat.
type ChatResult struct {
	Message    string   `json:"message"`
	Response   Response `json:"response"`
	NotebookID string   `json:"notebook_id"`
}

// Chat optionally switches notebook, then sends message and waits for the answer.
func (s *Service) Chat(ctx context.Context, message, notebookID string, maxWait time.Duration, format string) (ChatResult, error) {
	return do(ctx, s, "chat_with_notebook", func(ctx context.Context, sess *Session) (ChatResult, error) {
		if notebookID != "" {
			if _, err := sess.NavigateTo(ctx, notebookID); err != nil {
				return ChatResult{}, err
			}
		}
		sent, err := sess.SendMessage(ctx, message)
		if err != nil {
			return ChatResult{}, err
		}
		resp, err := sess.GetResponse(ctx, ResponseRequest{Wait: true, MaxWait: maxWait, Format: format})
		if err != nil {
			return ChatResult{}, afterSend("chat_with_notebook", err)
		}
		return ChatResult{Message: sent, Response: resp, NotebookID: sess.Status().NotebookID}, nil
	})
}

// Navigate opens a notebook and returns the resulting URL.
func (s *Service) Navigate(ctx context.Context, notebookID string) (string, error) {
	return do(ctx, s, "navigate_to_notebook", func(ctx context.Context, sess *Session) (string, error) {
		return sess.NavigateTo(ctx, notebookID)
	})
}

// DefaultNotebook returns the notebook new sessions open.
func (s *Service) DefaultNotebook() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.NotebookID
}

// SetDefaultNotebook changes the default notebook for future sessions and
// optionally persists it. The live session keeps its current notebook.
func (s *Service) SetDefaultNotebook(notebookID string, persist bool) (string, error) {
	notebookID = strings.TrimSpace(notebookID)
	if notebookID == "" {
		return "", newError(KindNavigation, "set_default_notebook", "notebook id is required", nil)
	}

	s.mu.Lock()
	old := s.opts.NotebookID
	s.opts.NotebookID = notebookID
	s.mu.Unlock()

	L_info("service: default notebook changed", "old", old, "new", notebookID)

	if persist {
		if s.persist == nil {
			return old, newError(KindInternal, "set_default_notebook", "no config file to persist to", nil)
		}
		if err := s.persist(notebookID); err != nil {
			return old, newError(KindInternal, "set_default_notebook", "failed to save config", err)
		}
	}
	return old, nil
}

// Reconfigure replaces the options used by new sessions and pushes them to
// the live session before its next operation. A default notebook set at
// runtime survives unless opts carries a different one than the last config.
func (s *Service) Reconfigure(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.NotebookID == s.fileNotebook {
		opts.NotebookID = s.opts.NotebookID
	} else {
		s.fileNotebook = opts.NotebookID
	}
	s.opts = opts
	s.dirty = true
}

// Status returns the live session status without queueing behind the worker.
func (s *Service) Status() Status {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return Status{State: NotStarted, StateName: NotStarted.String(), NotebookID: s.DefaultNotebook()}
	}
	return sess.Status()
}

// Close stops the worker, interrupting any in-flight wait, and closes the browser.
func (s *Service) Close() error {
	s.worker.Stop()

	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}
