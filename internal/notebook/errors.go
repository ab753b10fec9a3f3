package notebook

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind tags a failure so the tool layer can report it distinctly.
type Kind string

const (
	KindSessionStart    Kind = "session_start"
	KindNavigation      Kind = "navigation"
	KindElementNotFound Kind = "element_not_found"
	KindChat            Kind = "chat"
	KindSessionClosed   Kind = "session_closed"
	KindCanceled        Kind = "canceled"
	KindInternal        Kind = "internal"
)

// Error is a session failure with a kind tag and a human readable message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the outermost tagged error in err's chain.
// Untagged errors report KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var nf *ElementNotFoundError
	if errors.As(err, &nf) {
		return KindElementNotFound
	}
	return KindInternal
}

// MessageOf returns the human readable message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// ElementNotFoundError means no selector in a chain produced a match in time.
type ElementNotFoundError struct {
	Target    string
	Selectors []string
	Timeout   time.Duration
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("could not find %s element (tried %d selectors, %s each: %s)",
		e.Target, len(e.Selectors), e.Timeout, strings.Join(e.Selectors, ", "))
}

// AuthStatus is the outcome of an authentication check. A login wall is a
// legitimate status, not an error.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	URL           string `json:"url"`
}
