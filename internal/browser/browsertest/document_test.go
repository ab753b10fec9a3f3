package browsertest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<textarea placeholder="Ask anything" disabled></textarea>
<div contenteditable="true" role="textbox"></div>
<div class="message">first</div>
<div class="message" hidden>second</div>
<div style="display: none"><span class="inner">nested</span></div>
</body></html>`

func TestDocumentQueries(t *testing.T) {
	ctx := context.Background()
	d := New().AddPage("https://x/notebook/1", page)

	require.NoError(t, d.Navigate(ctx, "https://x/notebook/1"))
	require.NoError(t, d.WaitReady(ctx))

	url, err := d.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://x/notebook/1", url)

	els, err := d.FindElements(ctx, ".message")
	require.NoError(t, err)
	require.Len(t, els, 2)

	vis, _ := els[0].Visible(ctx)
	assert.True(t, vis)
	vis, _ = els[1].Visible(ctx)
	assert.False(t, vis)

	inner, _ := d.FindElements(ctx, ".inner")
	vis, _ = inner[0].Visible(ctx)
	assert.False(t, vis, "hidden through ancestor")

	ta, _ := d.FindElements(ctx, "textarea[placeholder*='Ask']")
	require.Len(t, ta, 1)
	ok, _ := ta[0].Interactable(ctx)
	assert.False(t, ok)

	enabled, _ := d.FindElements(ctx, "textarea:not([disabled])")
	assert.Empty(t, enabled)

	html, err := els[0].HTML(ctx)
	require.NoError(t, err)
	assert.Equal(t, `<div class="message">first</div>`, html)

	assert.Equal(t, 1, d.Finds(".message"))
}

func TestDocumentTypingAndSubmit(t *testing.T) {
	ctx := context.Background()
	d := New()
	d.SetHTML(page)

	var hooked string
	d.OnSubmit = func(doc *Document, text string) {
		hooked = text
		doc.SetFrames(`<div class="message">thinking</div>`, `<div class="message">done</div>`)
	}

	box, err := d.FindElements(ctx, "[contenteditable='true'][role='textbox']")
	require.NoError(t, err)
	require.Len(t, box, 1)

	require.NoError(t, box[0].SendKeys(ctx, "stale"))
	require.NoError(t, box[0].Clear(ctx))
	require.NoError(t, box[0].SendKeys(ctx, "hello"))
	require.NoError(t, box[0].Submit(ctx))

	assert.Equal(t, []string{"hello"}, d.Submitted())
	assert.Equal(t, "hello", hooked)

	msgs, _ := d.FindElements(ctx, ".message")
	text, _ := msgs[0].Text(ctx)
	assert.Equal(t, "thinking", text)

	d.Advance()
	d.Advance()
	assert.Equal(t, 1, d.Frame())
	msgs, _ = d.FindElements(ctx, ".message")
	text, _ = msgs[0].Text(ctx)
	assert.Equal(t, "done", text)
}

func TestDocumentRedirectsAndFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	d := New().
		Redirect("https://x/notebook/1", "https://accounts.google.com/signin").
		FailFind("#broken", boom)

	require.NoError(t, d.Navigate(ctx, "https://x/notebook/1"))
	url, _ := d.CurrentURL(ctx)
	assert.Equal(t, "https://accounts.google.com/signin", url)
	assert.Equal(t, []string{"https://x/notebook/1"}, d.Navigations())

	_, err := d.FindElements(ctx, "#broken")
	assert.ErrorIs(t, err, boom)

	d.Hang("https://accounts.google.com/signin")
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, d.WaitReady(cctx), context.Canceled)

	require.NoError(t, d.Close())
	assert.True(t, d.Closed())
	_, err = d.CurrentURL(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
