package recorder

import (
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"tradecore/internal/maincontract"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/internal/state"
)

// Tick returns the latest tick of a local symbol.
func (r *Recorder) Tick(localSymbol string) (model.Tick, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.ticks[localSymbol]
	return t, ok
}

// Ticks returns the latest tick of every instrument, sorted by local symbol.
func (r *Recorder) Ticks() []model.Tick {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.ticks)
}

// Bars returns the bars of one interval of a local symbol.
func (r *Recorder) Bars(localSymbol string, interval enum.Interval) []model.Bar {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.bars[localSymbol][interval])
}

// CurrentBar returns the bar in progress of a plain symbol, e.g. "rb2101".
func (r *Recorder) CurrentBar(symbol string, interval enum.Interval) (model.Bar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gen, ok := r.generators[symbol]
	if !ok {
		return model.Bar{}, false
	}
	return gen.Current(interval)
}

// BarSeries returns every interval recorded for a local symbol.
func (r *Recorder) BarSeries(localSymbol string) map[enum.Interval][]model.Bar {
	r.mu.RLock()
	defer r.mu.RUnlock()
	series, ok := r.bars[localSymbol]
	if !ok {
		return nil
	}
	out := make(map[enum.Interval][]model.Bar, len(series))
	for iv, bars := range series {
		out[iv] = slices.Clone(bars)
	}
	return out
}

// Order returns the latest state of an order.
func (r *Recorder) Order(localOrderID string) (model.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[localOrderID]
	return o, ok
}

// Orders returns every order in first-seen order.
func (r *Recorder) Orders() []model.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Order, 0, len(r.orderIDs))
	for _, id := range r.orderIDs {
		out = append(out, r.orders[id])
	}
	return out
}

// ActiveOrders returns the orders that can still trade, in first-seen order.
// An empty local symbol matches every instrument.
func (r *Recorder) ActiveOrders(localSymbol string) []model.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Order, 0, len(r.activeOrders))
	for _, id := range r.orderIDs {
		if _, ok := r.activeOrders[id]; !ok {
			continue
		}
		o := r.orders[id]
		if localSymbol == "" || o.LocalSymbol == localSymbol {
			out = append(out, o)
		}
	}
	return out
}

// Trade returns one trade.
func (r *Recorder) Trade(localTradeID string) (model.Trade, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trades[localTradeID]
	return t, ok
}

// Trades returns every trade in arrival order.
func (r *Recorder) Trades() []model.Trade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Trade, 0, len(r.tradeIDs))
	for _, id := range r.tradeIDs {
		out = append(out, r.trades[id])
	}
	return out
}

// Position returns the locally reconciled position, e.g. "rb2101.SHFE.LONG".
func (r *Recorder) Position(localPositionID string) (model.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions.Lookup(localPositionID)
}

// AccountPosition returns the reconciled position of one account.
func (r *Recorder) AccountPosition(account, localSymbol string, direction enum.Direction) (model.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions.Position(account, localSymbol, direction)
}

// Positions returns every reconciled position.
func (r *Recorder) Positions() []model.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions.Positions()
}

// GatewayPosition returns the last position snapshot pushed by the gateway.
func (r *Recorder) GatewayPosition(localPositionID string) (model.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.gatewayPositions[localPositionID]
	return p, ok
}

// Account returns the latest account snapshot.
func (r *Recorder) Account() (model.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.account == nil {
		return model.Account{}, false
	}
	return *r.account, true
}

// Contract returns one contract definition.
func (r *Recorder) Contract(localSymbol string) (model.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[localSymbol]
	return c, ok
}

// Contracts returns every contract, sorted by local symbol.
func (r *Recorder) Contracts() []model.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedValues(r.contracts)
}

// Errors returns the error log.
func (r *Recorder) Errors() []model.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.errors)
}

// LatestError returns the most recent error entry.
func (r *Recorder) LatestError() (model.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.errors) == 0 {
		return model.Entry{}, false
	}
	return r.errors[len(r.errors)-1], true
}

// Warnings returns reconciliation anomalies and misconfiguration warnings.
func (r *Recorder) Warnings() []model.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.warnings)
}

// Logs returns the gateway log lines.
func (r *Recorder) Logs() []model.LogData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.logs)
}

// Shared returns the shared data published for a local symbol.
func (r *Recorder) Shared(localSymbol string) []model.SharedData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.shared[localSymbol]
	if src == nil {
		return nil
	}
	out := make([]model.SharedData, len(src))
	for i, s := range src {
		out[i] = s.Clone()
	}
	return out
}

// LastPrice returns the last traded price seen on the last-price topic.
func (r *Recorder) LastPrice(localSymbol string) (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.lastPrices[localSymbol]
	return p, ok
}

// MainContracts returns the resolved main contract of every product in the
// order products were first seen.
func (r *Recorder) MainContracts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mains.List()
}

// MainContract resolves the main contract of a product code such as "RB".
func (r *Recorder) MainContract(code string) (maincontract.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mains.Resolve(strings.TrimSpace(code))
}

// InitFinished reports whether the gateway finished its start-up queries.
func (r *Recorder) InitFinished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initFinished
}

func sortedValues[V any](m map[string]V) []V {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// PositionSnapshot captures the reconciled positions for comparison tooling.
func (r *Recorder) PositionSnapshot(lastSeq uint64) state.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions.SnapshotWithMeta(lastSeq)
}
