package notebook

import (
	"context"
	"time"

	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// NoContentTimeout is returned as text when the wait deadline passes before
// anything was captured.
const NoContentTimeout = "Response timeout - no content retrieved"

// State is a stream monitor state.
type State int

const (
	StatePolling State = iota
	StateStabilizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateStabilizing:
		return "stabilizing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Sample is one poll of the rendered response.
type Sample struct {
	Text       string
	Generating bool
}

// SampleFunc captures one Sample.
type SampleFunc func(ctx context.Context) (Sample, error)

// StreamOptions configures one wait.
type StreamOptions struct {
	// RequiredStable is how many consecutive identical samples end the wait.
	RequiredStable int
	// MaxWait is the soft deadline; zero samples once and returns.
	MaxWait  time.Duration
	Interval time.Duration
}

// DefaultStreamOptions returns 3 stable polls, 60s deadline, 1s ticks.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{RequiredStable: 3, MaxWait: 60 * time.Second, Interval: time.Second}
}

// StreamResult is the outcome of a wait. Complete is false when the deadline
// cut the wait short; that is not an error.
type StreamResult struct {
	Text     string
	Complete bool
	Polls    int
	Elapsed  time.Duration
}

// Monitor tracks stability across samples for a single wait. A zero Monitor
// is in StatePolling with no history.
type Monitor struct {
	required int
	state    State
	stable   int
	last     string
}

// NewMonitor returns a monitor that completes after required identical samples.
func NewMonitor(required int) *Monitor {
	if required < 1 {
		required = 1
	}
	return &Monitor{required: required}
}

// Observe feeds one sample and returns the resulting state. The first sample
// of a new text counts as one; each identical follow-up adds one. Empty text
// never counts toward stability.
func (m *Monitor) Observe(s Sample) State {
	switch {
	case s.Text == "":
		m.stable = 0
		m.last = ""
		m.state = StatePolling
	case s.Text != m.last:
		m.last = s.Text
		m.stable = 1
		m.state = StatePolling
	default:
		m.stable++
		m.state = StateStabilizing
	}

	if m.stable >= m.required && !s.Generating {
		m.state = StateDone
	}
	return m.state
}

// State returns the current state.
func (m *Monitor) State() State { return m.state }

// Stable returns the current run length of identical samples.
func (m *Monitor) Stable() int { return m.stable }

// Watch polls sample until the monitor reaches StateDone or MaxWait passes.
// Sampling failures are treated as empty samples; the only error is ctx's.
func Watch(ctx context.Context, clock Clock, sample SampleFunc, opts StreamOptions) (StreamResult, error) {
	if clock == nil {
		clock = RealClock
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}

	m := NewMonitor(opts.RequiredStable)
	start := clock.Now()
	deadline := start.Add(opts.MaxWait)

	var res StreamResult
	var captured string
	prev := StatePolling

	for {
		s, err := sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			L_debug("monitor: sample failed", "error", err)
			s = Sample{}
		}
		res.Polls++
		if s.Text != "" {
			captured = s.Text
		}

		state := m.Observe(s)
		if state != prev {
			L_trace("monitor: state", "from", prev.String(), "to", state.String(), "stable", m.Stable())
			prev = state
		}

		if state == StateDone {
			res.Text = captured
			res.Complete = true
			res.Elapsed = clock.Now().Sub(start)
			L_debug("monitor: response complete", "polls", res.Polls, "elapsed", res.Elapsed)
			return res, nil
		}

		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			break
		}
		if err := clock.Sleep(ctx, min(opts.Interval, remaining)); err != nil {
			return res, err
		}
		if !clock.Now().Before(deadline) {
			break
		}
	}

	res.Text = captured
	if res.Text == "" {
		res.Text = NoContentTimeout
	}
	res.Elapsed = clock.Now().Sub(start)
	if opts.MaxWait > 0 {
		L_warn("monitor: response wait timed out, returning current content", "maxWait", opts.MaxWait, "polls", res.Polls)
	}
	return res, nil
}
