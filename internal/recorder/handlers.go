package recorder

import (
	"context"

	"github.com/yanun0323/logs"

	"tradecore/internal/bar"
	"tradecore/internal/bus"
	"tradecore/internal/maincontract"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
)

func (r *Recorder) onTick(ctx context.Context, e bus.Event) error {
	tick, err := payload[model.Tick](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if err := tick.Validate(); err != nil {
		return r.malformed(e, err)
	}
	tick.LocalSymbol = tick.Key()
	if err := tick.ResolveDatetime(r.cfg.Location); err != nil {
		return r.malformed(e, err)
	}

	r.mu.Lock()
	r.ticks[tick.LocalSymbol] = tick
	r.positions.ApplyTick(tick.LocalSymbol, tick.Price())
	gen, ok := r.generators[tick.Symbol]
	if !ok {
		gen = bar.NewGenerator(tick.Symbol, r.cfg.BarIntervals)
		r.generators[tick.Symbol] = gen
	}
	completed := gen.Update(tick)
	r.mu.Unlock()

	for _, b := range completed {
		if err := r.bus.Publish(ctx, bus.NewEvent(enum.TopicBar, b)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) onOrder(ctx context.Context, e bus.Event) error {
	order, err := payload[model.Order](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if err := order.Validate(); err != nil {
		return r.malformed(e, err)
	}
	order.LocalSymbol = order.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.LocalOrderID]; !ok {
		r.orderIDs = append(r.orderIDs, order.LocalOrderID)
	}
	r.orders[order.LocalOrderID] = order
	if order.IsActive() {
		r.activeOrders[order.LocalOrderID] = struct{}{}
	} else {
		delete(r.activeOrders, order.LocalOrderID)
	}
	r.positions.ApplyOrder(order)
	return nil
}

func (r *Recorder) onTrade(ctx context.Context, e bus.Event) error {
	trade, err := payload[model.Trade](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if err := trade.Validate(); err != nil {
		return r.malformed(e, err)
	}
	trade.LocalSymbol = trade.Key()

	// a replayed trade id is neither stored nor delivered again
	r.mu.Lock()
	applied := r.positions.ApplyTrade(trade)
	if applied {
		if _, ok := r.trades[trade.LocalTradeID]; !ok {
			r.tradeIDs = append(r.tradeIDs, trade.LocalTradeID)
		}
		r.trades[trade.LocalTradeID] = trade
	}
	r.mu.Unlock()
	if !applied {
		return nil
	}

	e.Data = trade
	r.deliver(ctx, e)
	return nil
}

func (r *Recorder) onPosition(ctx context.Context, e bus.Event) error {
	pos, err := payload[model.Position](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if err := pos.Validate(); err != nil {
		return r.malformed(e, err)
	}
	pos.LocalSymbol = pos.Key()

	r.mu.Lock()
	r.gatewayPositions[pos.LocalPositionID()] = pos
	r.positions.MergePosition(pos)
	r.mu.Unlock()

	e.Data = pos
	r.deliver(ctx, e)
	return nil
}

func (r *Recorder) onAccount(ctx context.Context, e bus.Event) error {
	account, err := payload[model.Account](e)
	if err != nil {
		return r.malformed(e, err)
	}

	r.mu.Lock()
	r.account = &account
	r.mu.Unlock()

	e.Data = account
	r.deliver(ctx, e)
	return nil
}

func (r *Recorder) onContract(ctx context.Context, e bus.Event) error {
	contract, err := payload[model.Contract](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if err := contract.Validate(); err != nil {
		return r.malformed(e, err)
	}
	contract.LocalSymbol = contract.Key()

	r.mu.Lock()
	r.contracts[contract.LocalSymbol] = contract
	r.mains.Observe(maincontract.Entry{
		Symbol:          contract.Symbol,
		LocalSymbol:     contract.LocalSymbol,
		OpenInterest:    contract.OpenInterest,
		PreOpenInterest: contract.PreOpenInterest,
	})
	r.mu.Unlock()

	e.Data = contract
	r.deliver(ctx, e)
	return nil
}

func (r *Recorder) onBar(_ context.Context, e bus.Event) error {
	b, err := payload[model.Bar](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if err := b.Validate(); err != nil {
		return r.malformed(e, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	series, ok := r.bars[b.LocalSymbol]
	if !ok {
		series = make(map[enum.Interval][]model.Bar)
		r.bars[b.LocalSymbol] = series
	}
	series[b.Interval] = append(series[b.Interval], b)
	return nil
}

func (r *Recorder) onLog(_ context.Context, e bus.Event) error {
	line, err := payload[model.LogData](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if line.Datetime.IsZero() {
		line.Datetime = r.cfg.Now()
	}

	r.mu.Lock()
	r.logs = append(r.logs, line)
	r.mu.Unlock()

	if r.cfg.LogOutput {
		logs.Info(line.Message)
	}
	return nil
}

func (r *Recorder) onError(_ context.Context, e bus.Event) error {
	data, err := payload[model.ErrorData](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if data.Datetime.IsZero() {
		data.Datetime = r.cfg.Now()
	}

	entry := model.NewEntry(data.Datetime, model.CategoryGateway, e.Topic, "gateway", data.Message)
	entry.Code = data.Code
	r.mu.Lock()
	r.errors = append(r.errors, entry)
	r.mu.Unlock()

	logs.Errorf("gateway error %d: %s", data.Code, data.Message)
	return nil
}

func (r *Recorder) onLast(_ context.Context, e bus.Event) error {
	last, err := payload[model.LastData](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if err := last.Validate(); err != nil {
		return r.malformed(e, err)
	}
	last.LocalSymbol = last.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPrices[last.LocalSymbol] = last.LastPrice
	r.mains.Observe(maincontract.Entry{
		Symbol:          last.Symbol,
		LocalSymbol:     last.LocalSymbol,
		OpenInterest:    last.OpenInterest,
		PreOpenInterest: last.PreOpenInterest,
	})
	return nil
}

func (r *Recorder) onShared(ctx context.Context, e bus.Event) error {
	shared, err := payload[model.SharedData](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if err := shared.Validate(); err != nil {
		return r.malformed(e, err)
	}

	r.mu.Lock()
	r.shared[shared.LocalSymbol] = append(r.shared[shared.LocalSymbol], shared.Clone())
	r.mu.Unlock()

	e.Data = shared
	r.deliver(ctx, e)
	return nil
}

func (r *Recorder) onInit(ctx context.Context, e bus.Event) error {
	data, err := payload[model.InitData](e)
	if err != nil {
		return r.malformed(e, err)
	}
	if data.Finished {
		r.mu.Lock()
		r.initFinished = true
		r.mu.Unlock()
	}

	e.Data = data
	r.deliver(ctx, e)
	return nil
}

func (r *Recorder) onTimer(ctx context.Context, e bus.Event) error {
	r.deliver(ctx, e)
	return nil
}
