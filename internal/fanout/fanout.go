package fanout

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/model/enum"
	"tradecore/internal/obs"
	"tradecore/pkg/exception"
)

// Scope says how a topic reaches extensions.
type Scope uint8

const (
	// ScopeNone topics are never fanned out.
	ScopeNone Scope = iota
	// ScopeInstrument topics honour instrument filters.
	ScopeInstrument
	// ScopeAll topics reach every extension.
	ScopeAll
)

// ScopeOf returns the delivery scope of a topic.
func ScopeOf(topic enum.Topic) Scope {
	switch topic {
	case enum.TopicTrade, enum.TopicPosition, enum.TopicShared, enum.TopicTimer, enum.TopicInitFinished:
		return ScopeInstrument
	case enum.TopicAccount, enum.TopicContract:
		return ScopeAll
	default:
		return ScopeNone
	}
}

// Failure is one extension invocation that returned an error or panicked.
type Failure struct {
	Extension string
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("extension %s: %s", f.Extension, f.Err.Error())
}

func (f Failure) Unwrap() []error {
	return []error{exception.ErrExtensionFailure, f.Err}
}

// Report describes what happened to one event at the fan-out boundary.
type Report struct {
	Delivered     []string
	Skipped       []string
	Misconfigured []string
	Failures      []Failure
}

// Config controls a Fanout.
type Config struct {
	// InstrumentIndependent restricts instrument-scoped topics to extensions
	// whose instrument list names the event's instrument.
	InstrumentIndependent bool
	Runtime               Runtime
	Metrics               *obs.Metrics
}

// Fanout delivers copies of events to registered extensions and isolates
// their failures.
type Fanout struct {
	mu         sync.RWMutex
	extensions []Extension

	independent bool
	runtime     Runtime
	metrics     *obs.Metrics
}

// New creates a fan-out. A nil runtime runs extensions sequentially.
func New(cfg Config) *Fanout {
	rt := cfg.Runtime
	if rt == nil {
		rt = Sequential{}
	}
	return &Fanout{
		independent: cfg.InstrumentIndependent,
		runtime:     rt,
		metrics:     cfg.Metrics,
	}
}

// Register appends an extension. Names must be unique.
func (f *Fanout) Register(ext Extension) error {
	if ext == nil {
		return exception.ErrNilInstance
	}
	name := ext.Name()
	if name == "" {
		return exception.ErrEmptyExtensionName
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.extensions {
		if e.Name() == name {
			return errors.Wrapf(exception.ErrDuplicateExtension, "name: %s", name)
		}
	}
	f.extensions = append(f.extensions, ext)
	return nil
}

// Unregister removes an extension by name.
func (f *Fanout) Unregister(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.IndexFunc(f.extensions, func(e Extension) bool { return e.Name() == name })
	if i < 0 {
		return false
	}
	f.extensions = slices.Delete(f.extensions, i, i+1)
	return true
}

// Extensions returns the registered names in registration order.
func (f *Fanout) Extensions() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.extensions))
	for _, e := range f.extensions {
		names = append(names, e.Name())
	}
	return names
}

// Deliver hands a copy of e to every entitled extension. It never returns an
// extension's error; failures are logged and listed in the report.
func (f *Fanout) Deliver(ctx context.Context, e bus.Event) Report {
	scope := ScopeOf(e.Topic)
	if scope == ScopeNone {
		return Report{}
	}

	f.mu.RLock()
	extensions := slices.Clone(f.extensions)
	f.mu.RUnlock()

	var (
		report  Report
		targets []Extension
	)
	symbol, scoped := e.LocalSymbol()
	for _, ext := range extensions {
		if scope == ScopeInstrument && f.independent && scoped {
			instruments := instrumentsOf(ext)
			if len(instruments) == 0 {
				logs.Warnf("extension %s has no instruments while instrument independence is on, %s skipped", ext.Name(), e.Topic)
				f.metrics.IncMisconfigured()
				report.Misconfigured = append(report.Misconfigured, ext.Name())
				continue
			}
			if !slices.Contains(instruments, symbol) {
				f.metrics.IncSkipped()
				report.Skipped = append(report.Skipped, ext.Name())
				continue
			}
		}
		targets = append(targets, ext)
	}
	if len(targets) == 0 {
		return report
	}

	calls := make([]Call, len(targets))
	for i, ext := range targets {
		cp := e.Clone()
		calls[i] = func(ctx context.Context) error {
			return f.invoke(ctx, ext, cp)
		}
	}

	errs := f.runtime.Invoke(ctx, calls)
	for i, ext := range targets {
		if errs[i] == nil {
			report.Delivered = append(report.Delivered, ext.Name())
			continue
		}
		failure := Failure{Extension: ext.Name(), Err: errs[i]}
		logs.Errorf("%s #%d: %s", e.Topic, e.Seq, failure.Error())
		f.metrics.IncFailure()
		report.Failures = append(report.Failures, failure)
	}
	return report
}

func (f *Fanout) invoke(ctx context.Context, ext Extension, e bus.Event) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(exception.ErrExtensionPanic, "%v\n%s", r, debug.Stack())
		}
		f.metrics.ObserveDelivery(time.Since(start))
	}()
	return ext.OnEvent(ctx, e)
}

func instrumentsOf(ext Extension) []string {
	filter, ok := ext.(InstrumentFilter)
	if !ok {
		return nil
	}
	return filter.Instruments()
}
