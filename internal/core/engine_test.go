package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"tradecore/internal/bus"
	"tradecore/internal/fanout"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/recorder"
	"tradecore/internal/state"
	"tradecore/pkg/exception"
)

var fixedNow = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func testConfig(mode Mode) Config {
	return Config{
		Mode: mode,
		Recorder: recorder.Config{
			Location:     time.UTC,
			BarIntervals: []enum.Interval{enum.Interval1m, enum.Interval5m},
			Now:          func() time.Time { return fixedNow },
		},
		InstrumentIndependent:   true,
		QueueSize:               1024,
		MaxConcurrentExtensions: 4,
	}
}

type journal struct {
	mu   sync.Mutex
	seen map[string][]string
}

func (j *journal) ext(name string, instruments []string) fanout.Extension {
	return fanout.NewFunc(name, instruments, func(_ context.Context, e bus.Event) error {
		key, _ := e.LocalSymbol()
		j.mu.Lock()
		if j.seen == nil {
			j.seen = make(map[string][]string)
		}
		j.seen[name] = append(j.seen[name], fmt.Sprintf("%d:%s:%s", e.Seq, e.Topic, key))
		j.mu.Unlock()
		if name == "faulty" && e.Topic == enum.TopicTrade {
			return errors.New("rejects trades")
		}
		return nil
	})
}

func (j *journal) snapshot() map[string][]string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string][]string, len(j.seen))
	for k, v := range j.seen {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func scenario() []bus.Event {
	var events []bus.Event
	add := func(topic enum.Topic, data any) {
		events = append(events, bus.NewEvent(topic, data))
	}

	add(enum.TopicContract, model.Contract{Symbol: "rb2101", Exchange: enum.ExchangeSHFE, Size: 10, OpenInterest: 100})
	add(enum.TopicContract, model.Contract{Symbol: "rb2105", Exchange: enum.ExchangeSHFE, Size: 10, OpenInterest: 400})
	add(enum.TopicContract, model.Contract{Symbol: "IF2403", Exchange: enum.ExchangeCFFEX, Size: 300, OpenInterest: 50})

	for i, tm := range []string{"09:00:01", "09:00:30", "09:01:02", "09:02:10", "09:05:00"} {
		add(enum.TopicTick, model.Tick{
			Symbol: "rb2101", Exchange: enum.ExchangeSHFE, Date: "20240102", Time: tm,
			LastPrice: decimal.NewFromInt(int64(3500 + i)), Volume: int64(10 * (i + 1)),
		})
		add(enum.TopicTick, model.Tick{
			Symbol: "IF2403", Exchange: enum.ExchangeCFFEX, Date: "20240102", Time: tm,
			LastPrice: decimal.NewFromInt(int64(3600 - i)), Volume: int64(5 * (i + 1)),
		})
	}

	open := model.Order{
		AccountID: "acc", LocalOrderID: "o1", Symbol: "rb2101", Exchange: enum.ExchangeSHFE,
		Direction: enum.DirectionLong, Offset: enum.OffsetOpen, Status: enum.StatusNotTraded,
		Price: decimal.NewFromInt(3500), Volume: 4,
	}
	add(enum.TopicOrder, open)
	add(enum.TopicTrade, model.Trade{
		AccountID: "acc", LocalTradeID: "t1", LocalOrderID: "o1", Symbol: "rb2101", Exchange: enum.ExchangeSHFE,
		Direction: enum.DirectionLong, Offset: enum.OffsetOpen, Price: decimal.NewFromInt(3500), Volume: 4,
	})
	open.Status, open.Traded = enum.StatusAllTraded, 4
	add(enum.TopicOrder, open)

	closing := model.Order{
		AccountID: "acc", LocalOrderID: "o2", Symbol: "rb2101", Exchange: enum.ExchangeSHFE,
		Direction: enum.DirectionShort, Offset: enum.OffsetClose, Status: enum.StatusNotTraded,
		Price: decimal.NewFromInt(3510), Volume: 3,
	}
	add(enum.TopicOrder, closing)
	add(enum.TopicTrade, model.Trade{
		AccountID: "acc", LocalTradeID: "t2", LocalOrderID: "o2", Symbol: "rb2101", Exchange: enum.ExchangeSHFE,
		Direction: enum.DirectionShort, Offset: enum.OffsetClose, Price: decimal.NewFromInt(3510), Volume: 1,
	})
	add(enum.TopicTick, "not a tick")
	add(enum.TopicAccount, model.Account{AccountID: "acc", Balance: decimal.NewFromInt(1_000_000)})
	add(enum.TopicLog, model.LogData{Message: "connected"})
	add(enum.TopicTimer, nil)
	return events
}

type outcome struct {
	snapshot state.Snapshot
	orders   []model.Order
	trades   []model.Trade
	active   []model.Order
	bars     map[enum.Interval][]model.Bar
	ifBars   map[enum.Interval][]model.Bar
	errors   []model.Entry
	warnings []model.Entry
	mains    []string
	seen     map[string][]string
}

func run(t *testing.T, mode Mode) outcome {
	t.Helper()
	engine, err := New(testConfig(mode))
	require.NoError(t, err)

	var j journal
	require.NoError(t, engine.Register(j.ext("all", nil)))
	require.NoError(t, engine.Register(j.ext("rb", []string{"rb2101.SHFE"})))
	require.NoError(t, engine.Register(j.ext("faulty", []string{"rb2101.SHFE", "IF2403.CFFEX"})))
	require.NoError(t, engine.Start(t.Context()))

	for _, e := range scenario() {
		err := engine.Publish(t.Context(), e)
		if mode == ModeBlocking && e.Data == "not a tick" {
			require.True(t, errors.Is(err, exception.ErrMalformedEvent))
			continue
		}
		require.NoError(t, err)
	}
	require.NoError(t, engine.Close())

	r := engine.Recorder()
	return outcome{
		snapshot: r.PositionSnapshot(0),
		orders:   r.Orders(),
		trades:   r.Trades(),
		active:   r.ActiveOrders(""),
		bars:     r.BarSeries("rb2101.SHFE"),
		ifBars:   r.BarSeries("IF2403.CFFEX"),
		errors:   withoutIDs(r.Errors()),
		warnings: withoutIDs(r.Warnings()),
		mains:    r.MainContracts(),
		seen:     j.snapshot(),
	}
}

func withoutIDs(entries []model.Entry) []model.Entry {
	for i := range entries {
		entries[i].ID = uuid.Nil
	}
	return entries
}

func TestEnginesProduceIdenticalState(t *testing.T) {
	blocking := run(t, ModeBlocking)
	cooperative := run(t, ModeCooperative)

	require.NoError(t, state.CompareSnapshots(blocking.snapshot, cooperative.snapshot))
	assert.Equal(t, blocking.orders, cooperative.orders)
	assert.Equal(t, blocking.trades, cooperative.trades)
	assert.Equal(t, blocking.active, cooperative.active)
	assert.Equal(t, blocking.bars, cooperative.bars)
	assert.Equal(t, blocking.ifBars, cooperative.ifBars)
	assert.Equal(t, blocking.errors, cooperative.errors)
	assert.Equal(t, blocking.warnings, cooperative.warnings)
	assert.Equal(t, blocking.mains, cooperative.mains)
	assert.Equal(t, blocking.seen, cooperative.seen)

	assert.NotEmpty(t, blocking.bars[enum.Interval1m])
	assert.NotEmpty(t, blocking.seen["rb"])
	assert.Equal(t, []string{"rb2105.SHFE", "IF2403.CFFEX"}, blocking.mains)
	for _, s := range blocking.seen["rb"] {
		assert.NotContains(t, s, "IF2403")
	}
}

func TestEngineFailuresAreRecordedOncePerEvent(t *testing.T) {
	for _, mode := range []Mode{ModeBlocking, ModeCooperative} {
		t.Run(string(mode), func(t *testing.T) {
			out := run(t, mode)
			var failures, malformed int
			for _, e := range out.errors {
				switch e.Category {
				case model.CategoryExtensionFailure:
					failures++
					assert.Equal(t, "faulty", e.Source)
				case model.CategoryMalformedEvent:
					malformed++
				}
			}
			assert.Equal(t, 2, failures)
			assert.Equal(t, 1, malformed)
		})
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New(Config{Mode: "threaded"})
	require.True(t, errors.Is(err, exception.ErrMisconfiguration))
	assert.False(t, Mode("threaded").IsAvailable())
	assert.True(t, ModeCooperative.IsAvailable())
}

func TestCooperativeReportsFullQueue(t *testing.T) {
	cfg := testConfig(ModeCooperative)
	cfg.QueueSize = 1
	engine, err := NewCooperative(cfg)
	require.NoError(t, err)

	e := bus.NewEvent(enum.TopicTimer, nil)
	require.NoError(t, engine.Publish(t.Context(), e))
	require.True(t, errors.Is(engine.Publish(t.Context(), e), exception.ErrQueueFull))
	assert.Equal(t, 1, engine.Pending())

	require.NoError(t, engine.Close())
	require.True(t, errors.Is(engine.Publish(t.Context(), e), exception.ErrQueueClosed))

	snap := engine.Metrics().Snapshot()
	assert.Equal(t, uint64(1), snap.QueueDrops)
	assert.Equal(t, uint64(1), snap.QueueClosed)
}

func TestCooperativeStartTwice(t *testing.T) {
	engine, err := NewCooperative(testConfig(ModeCooperative))
	require.NoError(t, err)
	require.NoError(t, engine.Start(t.Context()))
	require.True(t, errors.Is(engine.Start(t.Context()), exception.ErrInvalidArgument))
	require.NoError(t, engine.Close())
}

func TestCooperativeOnErrorReceivesDispatchErrors(t *testing.T) {
	cfg := testConfig(ModeCooperative)
	var (
		mu     sync.Mutex
		topics []enum.Topic
	)
	cfg.OnError = func(e bus.Event, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.True(t, errors.Is(err, exception.ErrMalformedEvent))
		topics = append(topics, e.Topic)
	}
	engine, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, engine.Start(t.Context()))
	require.NoError(t, engine.Publish(t.Context(), bus.NewEvent(enum.TopicOrder, 42)))
	require.NoError(t, engine.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []enum.Topic{enum.TopicOrder}, topics)
}

func TestExtensionPublishesThroughEngine(t *testing.T) {
	for _, mode := range []Mode{ModeBlocking, ModeCooperative} {
		t.Run(string(mode), func(t *testing.T) {
			engine, err := New(testConfig(mode))
			require.NoError(t, err)

			var once sync.Once
			require.NoError(t, engine.Register(fanout.NewFunc("echo", []string{"rb2101.SHFE"}, func(ctx context.Context, e bus.Event) error {
				if e.Topic != enum.TopicTrade {
					return nil
				}
				var perr error
				once.Do(func() {
					perr = engine.Publish(ctx, bus.NewEvent(enum.TopicShared, model.SharedData{
						LocalSymbol: "rb2101.SHFE", Values: map[string]decimal.Decimal{"signal": decimal.NewFromInt(1)},
					}))
				})
				return perr
			})))
			require.NoError(t, engine.Start(t.Context()))
			require.NoError(t, engine.Publish(t.Context(), bus.NewEvent(enum.TopicTrade, model.Trade{
				AccountID: "acc", LocalTradeID: "t1", Symbol: "rb2101", Exchange: enum.ExchangeSHFE,
				Direction: enum.DirectionLong, Offset: enum.OffsetOpen, Price: decimal.NewFromInt(3500), Volume: 1,
			})))

			require.Eventually(t, func() bool {
				return len(engine.Recorder().Shared("rb2101.SHFE")) == 1
			}, time.Second, 5*time.Millisecond)
			require.NoError(t, engine.Close())
		})
	}
}
