package mdg

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/bus"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

const (
	defaultStep      = 500 * time.Millisecond
	defaultAccountID = "paper"
)

// Config drives the synthetic session.
type Config struct {
	// Contracts are announced first and then ticked round robin.
	Contracts []model.Contract
	BasePrice decimal.Decimal
	Start     time.Time
	Step      time.Duration
	Seed      int64
	// Limit stops the stream after this many ticks. Zero never stops.
	Limit int
	// TimerEvery emits a timer event after every N ticks.
	TimerEvery int
	// OrderEvery runs one paper order flow after every N ticks, alternating
	// between opening one lot long and closing the lot last opened.
	OrderEvery int
	AccountID  string
}

// Generator creates a deterministic gateway session: contracts, ticks on a
// random walk, timer heartbeats and filled paper orders.
type Generator struct {
	cfg     Config
	rng     *rand.Rand
	prices  []decimal.Decimal
	volumes []int64
	pending []bus.Event
	ticks   int
	orders  int
	opened  int
	now     time.Time
	started bool
}

// NewGenerator creates a generator for the configured contracts.
func NewGenerator(cfg Config) (*Generator, error) {
	if len(cfg.Contracts) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "generator has no contracts")
	}
	for _, c := range cfg.Contracts {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Limit < 0 || cfg.TimerEvery < 0 || cfg.OrderEvery < 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "generator counts must be >= 0")
	}
	if cfg.Step <= 0 {
		cfg.Step = defaultStep
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().Truncate(time.Second)
	}
	if cfg.BasePrice.IsZero() {
		cfg.BasePrice = decimal.NewFromInt(1000)
	}
	if cfg.AccountID == "" {
		cfg.AccountID = defaultAccountID
	}

	prices := make([]decimal.Decimal, len(cfg.Contracts))
	for i := range prices {
		prices[i] = cfg.BasePrice.Add(decimal.NewFromInt(int64(i * 100)))
	}
	return &Generator{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		prices:  prices,
		volumes: make([]int64, len(cfg.Contracts)),
		now:     cfg.Start,
	}, nil
}

// Next returns the next event of the session, io.EOF after Limit ticks.
func (g *Generator) Next() (bus.Event, error) {
	if !g.started {
		g.started = true
		for _, c := range g.cfg.Contracts {
			g.emit(enum.TopicContract, c)
		}
	}
	if len(g.pending) == 0 {
		if g.cfg.Limit > 0 && g.ticks >= g.cfg.Limit {
			return bus.Event{}, io.EOF
		}
		g.step()
	}
	e := g.pending[0]
	g.pending = g.pending[1:]
	return e, nil
}

func (g *Generator) step() {
	idx := g.ticks % len(g.cfg.Contracts)
	if idx == 0 && g.ticks > 0 {
		g.now = g.now.Add(g.cfg.Step)
	}
	c := g.cfg.Contracts[idx]

	tickSize := c.PriceTick
	if tickSize.IsZero() {
		tickSize = decimal.NewFromInt(1)
	}
	move := int64(g.rng.Intn(3) - 1)
	g.prices[idx] = decimal.Max(tickSize, g.prices[idx].Add(tickSize.Mul(decimal.NewFromInt(move))))
	g.volumes[idx] += int64(1 + g.rng.Intn(10))

	price := g.prices[idx]
	g.emit(enum.TopicTick, model.Tick{
		Symbol:       c.Symbol,
		Exchange:     c.Exchange,
		Date:         g.now.Format("20060102"),
		Time:         g.now.Format("15:04:05.000"),
		LastPrice:    price,
		OpenPrice:    g.cfg.BasePrice,
		HighPrice:    price,
		LowPrice:     price,
		Volume:       g.volumes[idx],
		OpenInterest: c.OpenInterest,
	})
	g.ticks++

	if g.cfg.OrderEvery > 0 && g.ticks%g.cfg.OrderEvery == 0 {
		g.paperOrder(idx)
	}
	if g.cfg.TimerEvery > 0 && g.ticks%g.cfg.TimerEvery == 0 {
		g.emit(enum.TopicTimer, nil)
	}
}

func (g *Generator) paperOrder(idx int) {
	g.orders++
	closing := g.orders%2 == 0
	if closing {
		idx = g.opened
	} else {
		g.opened = idx
	}
	c, price := g.cfg.Contracts[idx], g.prices[idx]
	order := model.Order{
		AccountID:    g.cfg.AccountID,
		LocalOrderID: fmt.Sprintf("paper-%d", g.orders),
		Symbol:       c.Symbol,
		Exchange:     c.Exchange,
		Direction:    enum.DirectionLong,
		Offset:       enum.OffsetOpen,
		Type:         enum.OrderTypeLimit,
		Price:        price,
		Volume:       1,
		Status:       enum.StatusNotTraded,
		Datetime:     g.now,
	}
	if closing {
		order.Direction, order.Offset = enum.DirectionShort, enum.OffsetClose
	}
	g.emit(enum.TopicOrder, order)
	g.emit(enum.TopicTrade, model.Trade{
		AccountID:    order.AccountID,
		LocalTradeID: fmt.Sprintf("paper-t-%d", g.orders),
		LocalOrderID: order.LocalOrderID,
		Symbol:       order.Symbol,
		Exchange:     order.Exchange,
		Direction:    order.Direction,
		Offset:       order.Offset,
		Price:        price,
		Volume:       order.Volume,
		Datetime:     g.now,
	})
	order.Traded, order.Status = order.Volume, enum.StatusAllTraded
	g.emit(enum.TopicOrder, order)
}

func (g *Generator) emit(topic enum.Topic, data any) {
	g.pending = append(g.pending, bus.Event{Topic: topic, Time: g.now, Data: data})
}
