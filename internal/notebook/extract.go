package notebook

import (
	"context"
	"strings"

	"github.com/roelfdiedericks/notebooklm-mcp/internal/browser"
	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// NoResponseContent is returned by a single-sample read that found nothing.
const NoResponseContent = "No response content found"

// extraction is the best response candidate on the page.
type extraction struct {
	text string
	el   browser.Element
}

// extractResponse reads the latest response text. For each response selector
// the last match is taken and the longest text across selectors wins. When
// nothing matches, the trailing generic text nodes are scanned for a
// substantial block without UI words.
func extractResponse(ctx context.Context, drv browser.Driver, sel Selectors) (extraction, error) {
	var best extraction

	for _, selector := range sel.Response {
		els, err := drv.FindElements(ctx, selector)
		if err != nil {
			if ctx.Err() != nil {
				return best, ctx.Err()
			}
			continue
		}
		if len(els) == 0 {
			continue
		}
		el := els[len(els)-1]
		text, err := el.Text(ctx)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if runeLen(text) > runeLen(best.text) {
			best = extraction{text: text, el: el}
		}
	}
	if best.text != "" {
		return best, nil
	}

	els, err := drv.FindElements(ctx, sel.FallbackText)
	if err != nil {
		return best, ctx.Err()
	}
	if len(els) > sel.FallbackScan {
		els = els[len(els)-sel.FallbackScan:]
	}
	for i := len(els) - 1; i >= 0; i-- {
		text, err := els[i].Text(ctx)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if runeLen(text) > 50 && !containsAnyFold(text, sel.FallbackSkip) {
			L_trace("extract: using fallback text block")
			return extraction{text: text, el: els[i]}, nil
		}
	}
	return best, nil
}

// generating reports whether any visible generation indicator is on the page.
func generating(ctx context.Context, drv browser.Driver, sel Selectors) bool {
	for _, selector := range sel.Generating {
		els, err := drv.FindElements(ctx, selector)
		if err != nil {
			continue
		}
		for _, el := range els {
			if ok, err := el.Visible(ctx); err == nil && ok {
				L_trace("extract: generation indicator visible", "selector", selector)
				return true
			}
		}
	}
	return false
}

func containsAnyFold(s string, words []string) bool {
	s = strings.ToLower(s)
	for _, w := range words {
		if w != "" && strings.Contains(s, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
