package notebook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser/browsertest"
)

const inputsPage = `<html><body>
<textarea id="ask" placeholder="Ask about your sources"></textarea>
<textarea id="chat" data-testid="chat-input"></textarea>
<div id="editable" contenteditable="true" role="textbox"></div>
</body></html>`

func TestResolveFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	doc := browsertest.New()
	doc.SetHTML(inputsPage)
	chain := []string{"#editable", "textarea[placeholder*='Ask']", "textarea:not([disabled])"}

	el, selector, err := Resolver{Clock: newFakeClock()}.Resolve(ctx, doc, "chat input", chain, NeedInteractable, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, "#editable", selector)
	assert.Equal(t, 0, doc.Finds(chain[1]))
	assert.Equal(t, 0, doc.Finds(chain[2]))

	html, _ := el.HTML(ctx)
	assert.Contains(t, html, `id="editable"`)
}

func TestResolveSkipsUnusableMatches(t *testing.T) {
	ctx := context.Background()
	doc := browsertest.New()
	doc.SetHTML(`<html><body>
<textarea placeholder="Ask" disabled></textarea>
<textarea placeholder="Ask" hidden></textarea>
<div contenteditable="true" role="textbox">box</div>
</body></html>`)
	clock := newFakeClock()
	start := clock.Now()
	chain := []string{"textarea[placeholder*='Ask']", "[contenteditable='true'][role='textbox']"}

	_, selector, err := Resolver{Clock: clock}.Resolve(ctx, doc, "chat input", chain, NeedInteractable, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, chain[1], selector)
	assert.Equal(t, 2*time.Second, clock.Now().Sub(start), "first selector waited its full timeout")

	el, selector, err := Resolver{Clock: clock}.Resolve(ctx, doc, "any textarea", chain, NeedPresent, 0)
	require.NoError(t, err)
	assert.Equal(t, chain[0], selector)
	ok, _ := el.Interactable(ctx)
	assert.False(t, ok)
}

func TestResolveWaitsForLateElement(t *testing.T) {
	ctx := context.Background()
	doc := browsertest.New()
	clock := newFakeClock()
	clock.onSleep = func() {
		if clock.Sleeps() == 3 {
			doc.SetHTML(inputsPage)
		}
	}

	_, selector, err := Resolver{Clock: clock}.Resolve(ctx, doc, "chat input", []string{"#ask", "#chat"}, NeedInteractable, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "#ask", selector)
	assert.Equal(t, 0, doc.Finds("#chat"))
}

func TestResolveNotFound(t *testing.T) {
	ctx := context.Background()
	doc := browsertest.New()
	clock := newFakeClock()
	start := clock.Now()
	chain := []string{"#missing", ".also-missing"}

	_, _, err := Resolver{Clock: clock}.Resolve(ctx, doc, "chat input", chain, NeedInteractable, 2*time.Second)
	require.Error(t, err)

	var nf *ElementNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "chat input", nf.Target)
	assert.Equal(t, chain, nf.Selectors)
	assert.Equal(t, KindElementNotFound, KindOf(err))
	assert.Equal(t, 4*time.Second, clock.Now().Sub(start))
}

func TestResolveDriverErrorIsNoMatch(t *testing.T) {
	ctx := context.Background()
	doc := browsertest.New().FailFind("#ask", errors.New("invalid selector"))
	doc.SetHTML(inputsPage)

	_, selector, err := Resolver{Clock: newFakeClock()}.Resolve(ctx, doc, "chat input", []string{"#ask", "#chat"}, NeedInteractable, 0)
	require.NoError(t, err)
	assert.Equal(t, "#chat", selector)
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Resolver{Clock: newFakeClock()}.Resolve(ctx, browsertest.New(), "chat input", []string{"#ask"}, NeedPresent, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
