package notebook

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rules drive Sanitize. Lengths are counted in runes.
type Rules struct {
	// Artifacts are UI action labels that leak into extracted text.
	Artifacts []string
	// AnswerMarkers are phrases that typically open a real answer.
	AnswerMarkers []string
	// ArtifactLineMaxLength: shorter lines containing an artifact are dropped.
	ArtifactLineMaxLength int
	// MinAnswerLength: a longer line not ending in "?" opens the answer, and
	// a shorter result triggers the fallbacks.
	MinAnswerLength int
	// MinParagraphLength: the paragraph fallback takes the first longer paragraph.
	MinParagraphLength int
	// EchoLineMaxLength: a shorter first line is treated as a prompt echo.
	EchoLineMaxLength int
}

// DefaultRules returns the thresholds and token lists tuned for NotebookLM.
func DefaultRules() Rules {
	return Rules{
		Artifacts: []string{
			"copy_all", "thumb_up", "thumb_down", "share", "more_options", "like", "dislike",
		},
		AnswerMarkers: []string{
			"Mixture-of-Experts", "Based on", "According to", "Here's",
			"Let me", "I can", "The answer", "To answer",
		},
		ArtifactLineMaxLength: 50,
		MinAnswerLength:       50,
		MinParagraphLength:    100,
		EchoLineMaxLength:     100,
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.Artifacts == nil {
		r.Artifacts = d.Artifacts
	}
	if r.AnswerMarkers == nil {
		r.AnswerMarkers = d.AnswerMarkers
	}
	if r.ArtifactLineMaxLength <= 0 {
		r.ArtifactLineMaxLength = d.ArtifactLineMaxLength
	}
	if r.MinAnswerLength <= 0 {
		r.MinAnswerLength = d.MinAnswerLength
	}
	if r.MinParagraphLength <= 0 {
		r.MinParagraphLength = d.MinParagraphLength
	}
	if r.EchoLineMaxLength <= 0 {
		r.EchoLineMaxLength = d.EchoLineMaxLength
	}
	return r
}

// Sanitize extracts the answer from raw response text using DefaultRules.
func Sanitize(raw string) string {
	return DefaultRules().Sanitize(raw)
}

// Sanitize strips UI artifacts and a leading prompt echo from raw. It only
// ever removes text, and returns the artifact-stripped input when none of
// its heuristics find a better answer.
func (r Rules) Sanitize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}

	text := r.stripTrailingArtifacts(raw)
	text = r.dropArtifactLines(text)
	lines := strings.Split(text, "\n")

	answer := strings.TrimSpace(strings.Join(lines[r.answerStart(lines):], "\n"))

	if r.tooShort(answer) {
		for _, p := range strings.Split(text, "\n\n") {
			if p = strings.TrimSpace(p); runeLen(p) > r.MinParagraphLength {
				answer = p
				break
			}
		}
	}

	if r.tooShort(answer) {
		answer = text
		if len(lines) > 1 {
			first := strings.TrimSpace(lines[0])
			if strings.HasSuffix(first, "?") || runeLen(first) < r.EchoLineMaxLength {
				answer = strings.TrimSpace(strings.Join(lines[1:], "\n"))
			}
		}
	}

	return answer
}

func (r Rules) tooShort(s string) bool {
	return s == "" || runeLen(s) < r.MinAnswerLength
}

// stripTrailingArtifacts removes artifact tokens that end the text, repeating
// until none is left. A token only matches on a word boundary.
func (r Rules) stripTrailingArtifacts(text string) string {
	text = strings.TrimRightFunc(text, unicode.IsSpace)
	for {
		stripped := false
		for _, a := range r.Artifacts {
			if a == "" || !strings.HasSuffix(text, a) {
				continue
			}
			rest := text[:len(text)-len(a)]
			if last, _ := utf8.DecodeLastRuneInString(rest); rest != "" && isWordRune(last) {
				continue
			}
			text = strings.TrimSpace(rest)
			stripped = true
		}
		if !stripped || text == "" {
			return text
		}
	}
}

func isWordRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// dropArtifactLines removes lines that are an artifact, or short lines that
// contain one.
func (r Rules) dropArtifactLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		clean := strings.ToLower(strings.TrimSpace(line))
		if r.isArtifact(clean) {
			continue
		}
		if runeLen(clean) < r.ArtifactLineMaxLength && r.containsArtifact(clean) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func (r Rules) isArtifact(s string) bool {
	for _, a := range r.Artifacts {
		if s == strings.ToLower(a) {
			return true
		}
	}
	return false
}

func (r Rules) containsArtifact(s string) bool {
	for _, a := range r.Artifacts {
		if a != "" && strings.Contains(s, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// answerStart returns the index of the first line that looks like answer
// content, or 0.
func (r Rules) answerStart(lines []string) int {
	for i, line := range lines {
		clean := strings.TrimSpace(line)
		if clean == "" {
			continue
		}
		for _, m := range r.AnswerMarkers {
			if m != "" && strings.Contains(clean, m) {
				return i
			}
		}
		if runeLen(clean) > r.MinAnswerLength && !strings.HasSuffix(clean, "?") {
			return i
		}
	}
	return 0
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
