package notebook

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser/browsertest"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

func startedSession(t *testing.T, doc *browsertest.Document, clock *fakeClock) *Session {
	t.Helper()
	s := NewSession(&docOpener{doc: doc}, testOptions(clock))
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestSessionStart(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	opener := &docOpener{doc: newChatDoc(clock), backend: browser.BackendPlain}
	s := NewSession(opener, testOptions(clock))

	assert.Equal(t, NotStarted, s.Status().State)
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))

	st := s.Status()
	assert.Equal(t, Started, st.State)
	assert.Equal(t, "plain", st.Backend)
	assert.Equal(t, testNotebook, st.NotebookID)
	assert.False(t, st.Authenticated)
	assert.Equal(t, 1, opener.Opens())
	assert.Empty(t, opener.doc.Navigations(), "authentication is lazy")
}

// slowOpener takes d of session clock time to open.
type slowOpener struct {
	*docOpener
	clock *fakeClock
	d     time.Duration
}

func (o slowOpener) Open(ctx context.Context) (browser.Driver, browser.Backend, error) {
	if err := o.clock.Sleep(ctx, o.d); err != nil {
		return nil, 0, err
	}
	return o.docOpener.Open(ctx)
}

func TestSessionStartLogsClockElapsed(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(&logging.Config{Level: logging.LevelInfo, Output: &buf})
	t.Cleanup(func() { logging.Init(logging.DefaultConfig()) })

	clock := newFakeClock()
	opener := slowOpener{docOpener: &docOpener{doc: newChatDoc(clock)}, clock: clock, d: 1500 * time.Millisecond}
	s := NewSession(opener, testOptions(clock))
	require.NoError(t, s.Start(context.Background()))

	assert.Contains(t, buf.String(), "session: browser started")
	assert.Contains(t, buf.String(), "elapsed=1.5s")
}

func TestSessionStartFailure(t *testing.T) {
	clock := newFakeClock()
	s := NewSession(&docOpener{err: browser.ErrNoBackend}, testOptions(clock))

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindSessionStart, KindOf(err))
	assert.ErrorIs(t, err, browser.ErrNoBackend)
	assert.Equal(t, NotStarted, s.Status().State)
}

func TestSessionAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("signed in", func(t *testing.T) {
		clock := newFakeClock()
		s := startedSession(t, newChatDoc(clock), clock)

		st, err := s.Authenticate(ctx)
		require.NoError(t, err)
		assert.True(t, st.Authenticated)
		assert.Equal(t, testURL, st.URL)
		assert.Equal(t, Authenticated, s.Status().State)
	})

	t.Run("login wall is a status", func(t *testing.T) {
		clock := newFakeClock()
		doc := newChatDoc(clock).Redirect(testURL, "https://accounts.google.com/v3/signin/identifier")
		s := startedSession(t, doc, clock)

		st, err := s.Authenticate(ctx)
		require.NoError(t, err)
		assert.False(t, st.Authenticated)
		assert.Contains(t, st.URL, "accounts.google.com")
		assert.Equal(t, Started, s.Status().State)
	})

	t.Run("page never loads", func(t *testing.T) {
		clock := newFakeClock()
		doc := newChatDoc(clock).Hang(testURL)
		opts := testOptions(clock)
		opts.AuthTimeout = 20 * time.Millisecond
		s := NewSession(&docOpener{doc: doc}, opts)
		require.NoError(t, s.Start(ctx))

		_, err := s.Authenticate(ctx)
		require.Error(t, err)
		assert.Equal(t, KindNavigation, KindOf(err))
		assert.False(t, s.Status().Authenticated)
	})

	t.Run("base url without notebook", func(t *testing.T) {
		clock := newFakeClock()
		doc := newChatDoc(clock)
		opts := testOptions(clock)
		opts.NotebookID = ""
		s := NewSession(&docOpener{doc: doc}, opts)
		require.NoError(t, s.Start(ctx))

		_, err := s.Authenticate(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{testBase}, doc.Navigations())
	})
}

func TestSessionSendMessage(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	doc := newChatDoc(clock)
	s := startedSession(t, doc, clock)

	sent, err := s.SendMessage(ctx, "line1\nline2\r\nline3")
	require.NoError(t, err)
	assert.Equal(t, "line1 line2 line3", sent)
	assert.Equal(t, []string{"line1 line2 line3"}, doc.Submitted())
	assert.True(t, s.Status().Authenticated, "first send authenticates")
	assert.Equal(t, []string{testURL}, doc.Navigations())

	// already on the notebook: no further navigation
	_, err = s.SendMessage(ctx, "again")
	require.NoError(t, err)
	assert.Len(t, doc.Navigations(), 1)
}

func TestSessionSendMessageRenavigates(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	doc := newChatDoc(clock)
	s := startedSession(t, doc, clock)

	_, err := s.Authenticate(ctx)
	require.NoError(t, err)
	require.NoError(t, doc.Navigate(ctx, testBase+"/"))

	_, err = s.SendMessage(ctx, "hello")
	require.NoError(t, err)
	nav := doc.Navigations()
	assert.Equal(t, testURL, nav[len(nav)-1])
	assert.Equal(t, []string{"hello"}, doc.Submitted())
}

func TestSessionSendMessageFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("login required", func(t *testing.T) {
		clock := newFakeClock()
		doc := newChatDoc(clock).Redirect(testURL, "https://accounts.google.com/signin")
		s := startedSession(t, doc, clock)

		_, err := s.SendMessage(ctx, "hi")
		require.Error(t, err)
		assert.Equal(t, KindChat, KindOf(err))
		assert.Contains(t, MessageOf(err), "manual login required")
		assert.Empty(t, doc.Submitted())
	})

	t.Run("no chat input", func(t *testing.T) {
		clock := newFakeClock()
		doc := browsertest.New().AddPage(testURL, `<html><body><p>Sources only</p></body></html>`)
		s := startedSession(t, doc, clock)

		_, err := s.SendMessage(ctx, "hi")
		require.Error(t, err)
		assert.Equal(t, KindChat, KindOf(err))
		var nf *ElementNotFoundError
		assert.True(t, errors.As(err, &nf))
		assert.Equal(t, 6*2*time.Second, clock.Now().Sub(newFakeClock().Now()))
	})

	t.Run("empty message", func(t *testing.T) {
		clock := newFakeClock()
		s := startedSession(t, newChatDoc(clock), clock)

		_, err := s.SendMessage(ctx, " \n ")
		assert.Equal(t, KindChat, KindOf(err))
	})

	t.Run("not started", func(t *testing.T) {
		clock := newFakeClock()
		s := NewSession(&docOpener{doc: newChatDoc(clock)}, testOptions(clock))

		_, err := s.SendMessage(ctx, "hi")
		assert.Equal(t, KindChat, KindOf(err))
	})
}

func TestSessionChatEndToEnd(t *testing.T) {
	ctx := context.Background()
	answer := "Based on the document, X is ..."

	tests := []struct {
		name   string
		frames []string
		want   string
		polls  int
	}{
		{
			name: "streams then settles",
			frames: []string{
				responseGenerating("Based on"),
				response(answer),
				response(answer),
				response(answer),
			},
			want:  answer,
			polls: 4,
		},
		{
			name: "echo and toolbar stripped",
			frames: []string{
				response("What is X?\nBased on the document, X is ...\ncopy_all\nthumb_up"),
			},
			want:  answer,
			polls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			doc := newChatDoc(clock, tt.frames...)
			s := startedSession(t, doc, clock)

			_, err := s.SendMessage(ctx, "What is X?")
			require.NoError(t, err)

			resp, err := s.GetResponse(ctx, ResponseRequest{Wait: true})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Text)
			assert.True(t, resp.Complete)
			assert.Equal(t, tt.polls, resp.Polls)
			assert.Equal(t, FormatText, resp.Format)
		})
	}
}

func TestSessionGetResponseTimeout(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	doc := newChatDoc(clock, responseGenerating("Partial answer that keeps"))
	s := startedSession(t, doc, clock)

	_, err := s.SendMessage(ctx, "Q")
	require.NoError(t, err)

	resp, err := s.GetResponse(ctx, ResponseRequest{Wait: true, MaxWait: 5 * time.Second})
	require.NoError(t, err, "a timeout is not an error")
	assert.False(t, resp.Complete)
	assert.Equal(t, "Partial answer that keeps", resp.Text)
}

func TestSessionGetResponseNothingCaptured(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := startedSession(t, newChatDoc(clock), clock)

	resp, err := s.GetResponse(ctx, ResponseRequest{Wait: true, MaxWait: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, NoContentTimeout, resp.Text)

	resp, err = s.GetResponse(ctx, ResponseRequest{})
	require.NoError(t, err)
	assert.Equal(t, NoResponseContent, resp.Text)
}

func TestSessionQuickResponse(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	doc := newChatDoc(clock)
	doc.SetHTML(responseGenerating("What is X?\nBased on the document, X is ...\ncopy_all"))
	s := startedSession(t, doc, clock)

	resp, err := s.GetResponse(ctx, ResponseRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Based on the document, X is ...", resp.Text)
	assert.False(t, resp.Complete)
	assert.Equal(t, 1, resp.Polls)
	assert.Equal(t, 0, clock.Sleeps())
}

func TestSessionMarkdownResponse(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	doc := newChatDoc(clock)
	doc.SetHTML(response("<p>Based on the <strong>second</strong> source, the answer is forty-two and that is final.</p>"))
	s := startedSession(t, doc, clock)

	resp, err := s.GetResponse(ctx, ResponseRequest{Format: FormatMarkdown})
	require.NoError(t, err)
	assert.Equal(t, "Based on the **second** source, the answer is forty-two and that is final.", resp.Text)

	resp, err = s.GetResponse(ctx, ResponseRequest{Format: FormatText})
	require.NoError(t, err)
	assert.Equal(t, "Based on the second source, the answer is forty-two and that is final.", resp.Text)
}

func TestSessionNavigateTo(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	doc := newChatDoc(clock).
		AddPage(testBase+"/notebook/other", chatPage).
		Hang(testBase + "/notebook/slow")
	opts := testOptions(clock)
	opts.PageTimeout = 20 * time.Millisecond
	s := NewSession(&docOpener{doc: doc}, opts)
	require.NoError(t, s.Start(ctx))

	url, err := s.NavigateTo(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, testBase+"/notebook/other", url)
	assert.Equal(t, "other", s.Status().NotebookID)

	_, err = s.NavigateTo(ctx, "slow")
	require.Error(t, err)
	assert.Equal(t, KindNavigation, KindOf(err))
	assert.Equal(t, "other", s.Status().NotebookID, "failed navigation keeps the notebook")

	_, err = s.NavigateTo(ctx, "")
	assert.Equal(t, KindNavigation, KindOf(err))
}

func TestSessionClose(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	doc := newChatDoc(clock)
	s := startedSession(t, doc, clock)
	_, err := s.Authenticate(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, doc.Closed())

	st := s.Status()
	assert.Equal(t, Closed, st.State)
	assert.False(t, st.Authenticated)

	_, err = s.SendMessage(ctx, "hi")
	assert.Equal(t, KindSessionClosed, KindOf(err))
	_, err = s.GetResponse(ctx, ResponseRequest{})
	assert.Equal(t, KindSessionClosed, KindOf(err))
	_, err = s.NavigateTo(ctx, "x")
	assert.Equal(t, KindSessionClosed, KindOf(err))
	assert.Equal(t, KindSessionClosed, KindOf(s.Start(ctx)))
}

func TestSessionReconfigure(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	doc := newChatDoc(clock)
	s := startedSession(t, doc, clock)

	opts := testOptions(clock)
	opts.Selectors.ChatInput = []string{"#does-not-exist"}
	opts.Selectors.InputTimeout = time.Second
	s.Reconfigure(opts)

	_, err := s.SendMessage(ctx, "hi")
	require.Error(t, err)
	var nf *ElementNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, []string{"#does-not-exist"}, nf.Selectors)
}
