package feed

import (
	"context"
	"io"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/pkg/exception"
)

// PlaybackConfig controls replay pacing.
type PlaybackConfig struct {
	// Speed scales the gaps between event times. Zero replays as fast as
	// possible, 2 replays twice as fast as recorded.
	Speed float64
	// Strict stops the replay at the first undecodable line instead of
	// logging and skipping it.
	Strict bool
}

// Clock allows deterministic playback control.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stats summarises one replay.
type Stats struct {
	Events  int
	Skipped int
}

// Playback replays a source in order.
type Playback struct {
	cfg   PlaybackConfig
	clock Clock
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Playback{cfg: cfg, clock: realClock{}}, nil
}

// WithClock swaps the clock implementation.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	if c.Speed < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "playback speed must be >= 0")
	}
	return nil
}

// Run hands every event of src to handler until src is exhausted, ctx is
// done or handler fails.
func (p *Playback) Run(ctx context.Context, src Source, handler func(context.Context, bus.Event) error) (Stats, error) {
	var stats Stats
	if src == nil || handler == nil {
		return stats, errors.Wrap(exception.ErrNilInstance, "playback source or handler")
	}

	var prev time.Time
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		e, err := src.Next()
		if err != nil {
			if err == io.EOF {
				return stats, nil
			}
			if !p.cfg.Strict && (errors.Is(err, exception.ErrMalformedEvent) || errors.Is(err, exception.ErrUnknownTopic)) {
				logs.Warnf("playback skipped: %s", err.Error())
				stats.Skipped++
				continue
			}
			return stats, err
		}

		if err := p.pace(ctx, e.Time, &prev); err != nil {
			return stats, err
		}
		if err := handler(ctx, e); err != nil {
			return stats, err
		}
		stats.Events++
	}
}

func (p *Playback) pace(ctx context.Context, current time.Time, prev *time.Time) error {
	if p.cfg.Speed <= 0 || current.IsZero() {
		return nil
	}
	if !prev.IsZero() {
		if delta := current.Sub(*prev); delta > 0 {
			sleep := time.Duration(float64(delta) / p.cfg.Speed)
			if err := p.clock.Sleep(ctx, sleep); err != nil {
				return err
			}
		}
	}
	*prev = current
	return nil
}
