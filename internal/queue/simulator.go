package queue

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// DefaultInterval is the Simulator tick.
const DefaultInterval = 300 * time.Millisecond

// Simulator fakes a transfer: every Interval progress grows by Step() until
// it reaches 100. It stands in where there is no transport to observe.
type Simulator struct {
	Interval time.Duration
	// Step returns the next increment. Defaults to a uniform value in [0, 10).
	Step func() float64
}

// Track emits rounded progress on every tick and Done once 100 is reached.
// The ticker is stopped when Track returns.
func (s Simulator) Track(ctx context.Context, _ Entry, emit func(Event)) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	step := s.Step
	if step == nil {
		step = func() float64 { return rand.Float64() * 10 }
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var progress float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			progress += step()
			if progress >= 100 {
				emit(Event{Progress: 100, Done: true})
				return
			}
			emit(Event{Progress: int(math.Round(progress))})
		}
	}
}
