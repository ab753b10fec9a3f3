package notebook

import "time"

// Selectors holds the selector chains used against the chat page. Every
// chain is ordered by preference; the page structure changes without notice,
// so these are configuration rather than code.
type Selectors struct {
	ChatInput    []string
	Response     []string
	Generating   []string
	FallbackText string
	FallbackSkip []string
	// FallbackScan is how many trailing FallbackText matches are inspected.
	FallbackScan int
	// InputTimeout bounds the wait per chat input selector.
	InputTimeout time.Duration
}

// DefaultSelectors returns the chains known to work against NotebookLM.
func DefaultSelectors() Selectors {
	return Selectors{
		ChatInput: []string{
			"textarea[placeholder*='Ask']",
			"textarea[data-testid*='chat']",
			"textarea[aria-label*='message']",
			"[contenteditable='true'][role='textbox']",
			"input[type='text'][placeholder*='Ask']",
			"textarea:not([disabled])",
		},
		Response: []string{
			"[data-testid*='response']",
			"[data-testid*='message']",
			"[role='article']",
			"[class*='message']:last-child",
			"[class*='response']:last-child",
			"[class*='chat-message']:last-child",
			".message:last-child",
			".chat-bubble:last-child",
			"[class*='ai-response']",
			"[class*='assistant-message']",
		},
		Generating: []string{
			"[class*='loading']",
			"[class*='typing']",
			"[class*='generating']",
			"[class*='spinner']",
			".dots",
		},
		FallbackText: "p, div, span",
		FallbackSkip: []string{
			"ask about", "loading", "error", "sign in", "menu",
			"copy_all", "thumb_up", "thumb_down",
		},
		FallbackScan: 20,
		InputTimeout: 2 * time.Second,
	}
}

// withDefaults fills empty fields from DefaultSelectors.
func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if len(s.ChatInput) == 0 {
		s.ChatInput = d.ChatInput
	}
	if len(s.Response) == 0 {
		s.Response = d.Response
	}
	if len(s.Generating) == 0 {
		s.Generating = d.Generating
	}
	if s.FallbackText == "" {
		s.FallbackText = d.FallbackText
	}
	if s.FallbackSkip == nil {
		s.FallbackSkip = d.FallbackSkip
	}
	if s.FallbackScan <= 0 {
		s.FallbackScan = d.FallbackScan
	}
	if s.InputTimeout <= 0 {
		s.InputTimeout = d.InputTimeout
	}
	return s
}
