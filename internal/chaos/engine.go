// Package chaos perturbs an event stream the way an unreliable gateway
// would: events go missing, arrive twice, arrive late or out of order.
package chaos

import (
	"io"
	"math/rand"
	"slices"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/bus"
	"tradecore/internal/feed"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
	MaxDelay      time.Duration
	// Topics limits drops, delays and duplicates to these topics. Other
	// events may still be moved by the reorder window.
	Topics []enum.Topic
}

// Stats counts what the engine did.
type Stats struct {
	Dropped    int
	Duplicated int
	Delayed    int
}

// Engine applies chaos rules to events.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []bus.Event
	stats   Stats
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "drop rate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "duplicate rate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "reorder window must be >= 1")
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "max delay must be >= 0")
	}
	for _, t := range c.Topics {
		if !t.IsAvailable() {
			return errors.Wrapf(exception.ErrUnknownTopic, "chaos topic %d", t)
		}
	}
	return nil
}

// Stats returns the counters so far.
func (e *Engine) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	return e.stats
}

// Process applies chaos to a single event and returns any output events.
func (e *Engine) Process(ev bus.Event) []bus.Event {
	if e == nil {
		return []bus.Event{ev}
	}
	if e.affects(ev.Topic) {
		if e.shouldDrop() {
			e.stats.Dropped++
			return nil
		}
		ev = e.applyDelay(ev)
	}
	if e.cfg.ReorderWindow <= 1 {
		if !e.affects(ev.Topic) {
			return []bus.Event{ev}
		}
		return e.applyDuplicate(ev)
	}
	e.pending = append(e.pending, ev)
	return e.release()
}

// Flush returns any buffered events after processing completes.
func (e *Engine) Flush() []bus.Event {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]bus.Event, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.pick()...)
	}
	return out
}

func (e *Engine) release() []bus.Event {
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.pick()
}

func (e *Engine) pick() []bus.Event {
	idx := e.rng.Intn(len(e.pending))
	ev := e.pending[idx]
	e.pending = slices.Delete(e.pending, idx, idx+1)
	if !e.affects(ev.Topic) {
		return []bus.Event{ev}
	}
	return e.applyDuplicate(ev)
}

func (e *Engine) affects(topic enum.Topic) bool {
	return len(e.cfg.Topics) == 0 || slices.Contains(e.cfg.Topics, topic)
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) applyDuplicate(ev bus.Event) []bus.Event {
	out := []bus.Event{ev}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		e.stats.Duplicated++
		out = append(out, ev.Clone())
	}
	return out
}

func (e *Engine) applyDelay(ev bus.Event) bus.Event {
	if e.cfg.MaxDelay <= 0 || ev.Time.IsZero() {
		return ev
	}
	delay := time.Duration(e.rng.Int63n(e.cfg.MaxDelay.Nanoseconds() + 1))
	if delay == 0 {
		return ev
	}
	e.stats.Delayed++
	ev.Time = ev.Time.Add(delay)
	return ev
}

// Source pulls events from an inner source through an engine.
type Source struct {
	inner  feed.Source
	engine *Engine
	out    []bus.Event
	done   bool
}

// Wrap returns a source yielding the perturbed stream of inner.
func Wrap(inner feed.Source, engine *Engine) *Source {
	return &Source{inner: inner, engine: engine}
}

func (s *Source) Next() (bus.Event, error) {
	for len(s.out) == 0 {
		if s.done {
			return bus.Event{}, io.EOF
		}
		ev, err := s.inner.Next()
		if err == io.EOF {
			s.done = true
			s.out = s.engine.Flush()
			continue
		}
		if err != nil {
			return bus.Event{}, err
		}
		s.out = s.engine.Process(ev)
	}
	ev := s.out[0]
	s.out = s.out[1:]
	return ev, nil
}
