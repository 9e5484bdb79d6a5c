// Package poll decides when an externally driven page state has settled.
//
// There is no push notification for "the thread finished loading", so the
// only option is sampling: a Poller probes the page, keeps a short trailing
// history of samples, and stops once its predicate holds. Between ticks it
// runs an action (usually a scroll) that moves the page toward the state it
// is waiting for.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrStabilizationTimeout is returned when MaxTicks probes ran without the
// predicate holding.
var ErrStabilizationTimeout = errors.New("stabilization timed out")

// Probe samples the current state once. It must not change the page.
type Probe[S any] func(ctx context.Context) (S, error)

// Predicate reports whether polling should stop. history holds the trailing
// window of samples, oldest first.
type Predicate[S any] func(history []S) bool

// Action moves the page between ticks.
type Action func(ctx context.Context) error

// Poller samples Probe until Done holds over the trailing Window samples.
type Poller[S any] struct {
	Probe Probe[S]
	Done  Predicate[S]
	// Act runs after every tick that did not satisfy Done. nil just waits.
	Act Action

	Window   int           // samples kept for Done; < 1 is treated as 1
	MaxTicks int           // probes before ErrStabilizationTimeout; 0 = unbounded
	Interval time.Duration // minimum spacing between probes
}

// Result describes a finished poll.
type Result[S any] struct {
	Last  S   // sample that satisfied Done
	Ticks int // probes taken, including the last one
}

// Run polls until Done holds, MaxTicks is exhausted, ctx ends, or the probe
// or action fails.
func (p *Poller[S]) Run(ctx context.Context) (Result[S], error) {
	var res Result[S]

	window := max(p.Window, 1)
	history := make([]S, 0, window)

	limit := rate.Inf
	if p.Interval > 0 {
		limit = rate.Every(p.Interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for {
		if p.MaxTicks > 0 && res.Ticks >= p.MaxTicks {
			return res, fmt.Errorf("%w after %d ticks", ErrStabilizationTimeout, res.Ticks)
		}
		if err := limiter.Wait(ctx); err != nil {
			return res, err
		}

		sample, err := p.Probe(ctx)
		if err != nil {
			return res, fmt.Errorf("probe failed on tick %d: %w", res.Ticks, err)
		}
		res.Ticks++
		res.Last = sample

		if len(history) == window {
			copy(history, history[1:])
			history = history[:window-1]
		}
		history = append(history, sample)

		if p.Done(history) {
			return res, nil
		}

		if p.Act != nil {
			if err := p.Act(ctx); err != nil {
				return res, fmt.Errorf("action failed on tick %d: %w", res.Ticks, err)
			}
		}
	}
}

// Present stops on the first true sample.
func Present() Predicate[bool] {
	return func(history []bool) bool {
		return len(history) > 0 && history[len(history)-1]
	}
}

// Converged stops once the last n samples are pairwise equal. Fewer than n
// samples never converge.
func Converged[S any](n int, equal func(a, b S) bool) Predicate[S] {
	return func(history []S) bool {
		if n < 1 || len(history) < n {
			return false
		}
		tail := history[len(history)-n:]
		for i := 1; i < len(tail); i++ {
			if !equal(tail[0], tail[i]) {
				return false
			}
		}
		return true
	}
}

// DefaultConvergence is the number of identical consecutive samples that
// signal the end of a scroll.
const DefaultConvergence = 3

// NewPresence builds a poller that stops once probe reports true.
func NewPresence(probe Probe[bool], act Action) *Poller[bool] {
	return &Poller[bool]{
		Probe:  probe,
		Done:   Present(),
		Act:    act,
		Window: 1,
	}
}

// NewConvergence builds a poller that stops after n identical consecutive
// samples.
func NewConvergence[S any](n int, probe Probe[S], equal func(a, b S) bool, act Action) *Poller[S] {
	return &Poller[S]{
		Probe:  probe,
		Done:   Converged(n, equal),
		Act:    act,
		Window: n,
	}
}

// Equal is an equality func for comparable sample types.
func Equal[S comparable](a, b S) bool {
	return a == b
}
