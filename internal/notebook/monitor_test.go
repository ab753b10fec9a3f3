package notebook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted returns samples in order, repeating the last one.
func scripted(samples ...Sample) SampleFunc {
	i := 0
	return func(ctx context.Context) (Sample, error) {
		s := samples[min(i, len(samples)-1)]
		i++
		return s, nil
	}
}

func TestMonitorObserve(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
		want    []State
	}{
		{
			name:    "three identical samples",
			samples: []Sample{{Text: "a"}, {Text: "a"}, {Text: "a"}},
			want:    []State{StatePolling, StateStabilizing, StateDone},
		},
		{
			name:    "change resets",
			samples: []Sample{{Text: "a"}, {Text: "a"}, {Text: "ab"}, {Text: "ab"}, {Text: "ab"}},
			want:    []State{StatePolling, StateStabilizing, StatePolling, StateStabilizing, StateDone},
		},
		{
			name:    "indicator holds completion",
			samples: []Sample{{Text: "a"}, {Text: "a"}, {Text: "a", Generating: true}, {Text: "a"}},
			want:    []State{StatePolling, StateStabilizing, StateStabilizing, StateDone},
		},
		{
			name:    "empty never stabilizes",
			samples: []Sample{{}, {}, {}, {}},
			want:    []State{StatePolling, StatePolling, StatePolling, StatePolling},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(3)
			var got []State
			for _, s := range tt.samples {
				got = append(got, m.Observe(s))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatchCompletesAfterStableSamples(t *testing.T) {
	clock := newFakeClock()
	full := "Based on the document, X is ..."

	res, err := Watch(context.Background(), clock, scripted(
		Sample{Text: "Based on", Generating: true},
		Sample{Text: full},
		Sample{Text: full},
		Sample{Text: full},
	), DefaultStreamOptions())

	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, full, res.Text)
	assert.Equal(t, 4, res.Polls)
	assert.Equal(t, 3*time.Second, res.Elapsed)
}

func TestWatchIndicatorPreventsDone(t *testing.T) {
	clock := newFakeClock()
	gen := Sample{Text: "steady", Generating: true}

	res, err := Watch(context.Background(), clock, scripted(gen, gen, gen, gen, gen, Sample{Text: "steady"}),
		StreamOptions{RequiredStable: 3, MaxWait: time.Minute, Interval: time.Second})

	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, 6, res.Polls)
}

func TestWatchIndicatorNeverClears(t *testing.T) {
	clock := newFakeClock()

	res, err := Watch(context.Background(), clock, scripted(Sample{Text: "steady", Generating: true}),
		StreamOptions{RequiredStable: 3, MaxWait: 10 * time.Second, Interval: time.Second})

	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, "steady", res.Text)
	assert.Equal(t, 10, res.Polls)
}

func TestWatchTimeoutReturnsLatestText(t *testing.T) {
	clock := newFakeClock()
	n := 0
	growing := func(ctx context.Context) (Sample, error) {
		n++
		return Sample{Text: fmt.Sprintf("chunk %d", n)}, nil
	}

	res, err := Watch(context.Background(), clock, growing,
		StreamOptions{RequiredStable: 3, MaxWait: 5 * time.Second, Interval: time.Second})

	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, "chunk 5", res.Text)
	assert.Equal(t, 5*time.Second, res.Elapsed)
}

func TestWatchTimeoutWithoutContent(t *testing.T) {
	clock := newFakeClock()

	res, err := Watch(context.Background(), clock, scripted(Sample{}),
		StreamOptions{RequiredStable: 3, MaxWait: 3 * time.Second, Interval: time.Second})

	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, NoContentTimeout, res.Text)
}

func TestWatchZeroMaxWait(t *testing.T) {
	clock := newFakeClock()

	res, err := Watch(context.Background(), clock, scripted(Sample{Text: "first"}, Sample{Text: "second"}),
		StreamOptions{RequiredStable: 3, MaxWait: 0, Interval: time.Second})

	require.NoError(t, err)
	assert.Equal(t, "first", res.Text)
	assert.Equal(t, 1, res.Polls)
	assert.Equal(t, 0, clock.Sleeps())
}

func TestWatchSampleErrorsCountAsEmpty(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	flaky := func(ctx context.Context) (Sample, error) {
		calls++
		if calls == 2 {
			return Sample{}, errors.New("node detached")
		}
		return Sample{Text: "answer"}, nil
	}

	res, err := Watch(context.Background(), clock, flaky, DefaultStreamOptions())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	// the failed poll broke the run: 1, fail, then 3 more
	assert.Equal(t, 5, res.Polls)
}

func TestWatchContextCanceled(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	clock.onSleep = cancel

	_, err := Watch(ctx, clock, scripted(Sample{Text: "a"}, Sample{Text: "b"}), DefaultStreamOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
