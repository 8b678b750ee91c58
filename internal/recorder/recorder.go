/*
Recorder is the canonical store of trading state.

# Flow
  - every gateway topic is bound to one handler on the bus
  - handlers validate the payload, mutate the store under its lock and release the lock
  - position state is derived by the reconciler, main contracts by the resolver
  - instrument-scoped and account/contract updates are then handed to the fan-out

# Errors
  - a malformed payload is logged to the error log and returned, aborting only that event
  - reconciliation anomalies and misconfigured extensions go to the warning log
  - extension failures go to the error log with the extension's name
*/
package recorder

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/bar"
	"tradecore/internal/bus"
	"tradecore/internal/fanout"
	"tradecore/internal/maincontract"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/obs"
	"tradecore/internal/state"
	"tradecore/pkg/exception"
)

// Deliverer hands an event to extensions.
type Deliverer interface {
	Deliver(ctx context.Context, e bus.Event) fanout.Report
}

// Config controls a Recorder.
type Config struct {
	// LogOutput echoes gateway log lines to the process logger.
	LogOutput bool
	// Location is used to parse tick date and time strings.
	Location     *time.Location
	BarIntervals []enum.Interval
	Now          func() time.Time
}

// Recorder owns every entity map. Queries return copies and may be called
// from any goroutine.
type Recorder struct {
	cfg     Config
	bus     *bus.Bus
	fanout  Deliverer
	metrics *obs.Metrics

	mu               sync.RWMutex
	ticks            map[string]model.Tick
	bars             map[string]map[enum.Interval][]model.Bar
	orders           map[string]model.Order
	orderIDs         []string
	activeOrders     map[string]struct{}
	trades           map[string]model.Trade
	tradeIDs         []string
	gatewayPositions map[string]model.Position
	account          *model.Account
	contracts        map[string]model.Contract
	logs             []model.LogData
	errors           []model.Entry
	warnings         []model.Entry
	shared           map[string][]model.SharedData
	lastPrices       map[string]decimal.Decimal
	generators       map[string]*bar.Generator
	initFinished     bool

	positions *state.Reconciler
	mains     *maincontract.Resolver
}

// New creates a recorder and binds its handlers to b. d may be nil when no
// extension is ever registered.
func New(cfg Config, b *bus.Bus, d Deliverer, m *obs.Metrics) (*Recorder, error) {
	if b == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "recorder bus")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.BarIntervals) == 0 {
		cfg.BarIntervals = []enum.Interval{enum.Interval1m}
	}

	r := &Recorder{
		cfg:     cfg,
		bus:     b,
		fanout:  d,
		metrics: m,
		mains:   maincontract.NewResolver(),
	}
	r.reset()
	r.gatewayPositions = make(map[string]model.Position)
	r.lastPrices = make(map[string]decimal.Decimal)
	r.positions = state.NewReconciler(r.contractSizeLocked, r.anomalyLocked)

	handlers := map[enum.Topic]bus.Handler{
		enum.TopicTick:         r.onTick,
		enum.TopicOrder:        r.onOrder,
		enum.TopicTrade:        r.onTrade,
		enum.TopicPosition:     r.onPosition,
		enum.TopicAccount:      r.onAccount,
		enum.TopicContract:     r.onContract,
		enum.TopicBar:          r.onBar,
		enum.TopicLog:          r.onLog,
		enum.TopicError:        r.onError,
		enum.TopicLast:         r.onLast,
		enum.TopicShared:       r.onShared,
		enum.TopicInitFinished: r.onInit,
		enum.TopicTimer:        r.onTimer,
	}
	for _, topic := range enum.Topics() {
		if err := b.Register(topic, handlers[topic]); err != nil {
			return nil, errors.Wrapf(err, "register %s", topic)
		}
	}
	return r, nil
}

// reset allocates every history-bearing map.
func (r *Recorder) reset() {
	r.ticks = make(map[string]model.Tick)
	r.bars = make(map[string]map[enum.Interval][]model.Bar)
	r.orders = make(map[string]model.Order)
	r.orderIDs = nil
	r.activeOrders = make(map[string]struct{})
	r.trades = make(map[string]model.Trade)
	r.tradeIDs = nil
	r.contracts = make(map[string]model.Contract)
	r.logs = nil
	r.errors = nil
	r.warnings = nil
	r.shared = make(map[string][]model.SharedData)
	r.generators = make(map[string]*bar.Generator)
}

// ClearAll drops history to bound memory in long-running processes.
// Positions, the account, last prices and main-contract buckets are kept.
// Trade ids stay deduplicated until the next ClearAll.
func (r *Recorder) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	r.positions.Compact()
}

// FlushBars publishes every bar still in progress as a completed bar. It is
// meant for the end of a session, once no more ticks arrive.
func (r *Recorder) FlushBars(ctx context.Context) (int, error) {
	r.mu.Lock()
	symbols := slices.Sorted(maps.Keys(r.generators))
	var pending []model.Bar
	for _, symbol := range symbols {
		pending = append(pending, r.generators[symbol].Flush()...)
	}
	r.mu.Unlock()

	for i, b := range pending {
		if err := r.bus.Publish(ctx, bus.NewEvent(enum.TopicBar, b)); err != nil {
			return i, errors.Wrapf(err, "flush bar %s %s", b.LocalSymbol, b.Interval)
		}
	}
	return len(pending), nil
}

func (r *Recorder) contractSizeLocked(localSymbol string) int64 {
	return r.contracts[localSymbol].Size
}

func (r *Recorder) anomalyLocked(positionID string, err error) {
	r.metrics.IncAnomaly()
	entry := model.NewEntry(r.cfg.Now(), model.CategoryReconcileAnomaly, enum.TopicPosition, positionID, err.Error())
	r.warnings = append(r.warnings, entry)
}

// malformed records a rejected event. The error is returned so the bus
// aborts the event, except for log and error topics which never abort.
func (r *Recorder) malformed(e bus.Event, err error) error {
	r.metrics.IncMalformed(e.Topic)
	logs.Errorf("%s #%d: %s", e.Topic, e.Seq, err.Error())

	r.mu.Lock()
	r.errors = append(r.errors, model.NewEntry(r.cfg.Now(), model.CategoryMalformedEvent, e.Topic, "", err.Error()))
	r.mu.Unlock()

	if e.Topic == enum.TopicLog || e.Topic == enum.TopicError {
		return nil
	}
	return err
}

// deliver fans e out and records what went wrong. It must be called without
// the lock held.
func (r *Recorder) deliver(ctx context.Context, e bus.Event) {
	if r.fanout == nil {
		return
	}
	report := r.fanout.Deliver(ctx, e)
	if len(report.Failures) == 0 && len(report.Misconfigured) == 0 {
		return
	}

	now := r.cfg.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range report.Failures {
		entry := model.NewEntry(now, model.CategoryExtensionFailure, e.Topic, f.Extension, f.Err.Error())
		r.errors = append(r.errors, entry)
	}
	for _, name := range report.Misconfigured {
		entry := model.NewEntry(now, model.CategoryMisconfiguration, e.Topic, name,
			errors.Wrap(exception.ErrMisconfiguration, "empty instrument list under instrument independence").Error())
		r.warnings = append(r.warnings, entry)
	}
}

func payload[T any](e bus.Event) (T, error) {
	switch v := e.Data.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, errors.Wrapf(exception.ErrMalformedEvent, "%s payload of type %T", e.Topic, e.Data)
}
