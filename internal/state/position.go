package state

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// SizeFunc returns the contract multiplier of a local symbol, or 0 when the
// contract is unknown.
type SizeFunc func(localSymbol string) int64

// AnomalyFunc receives every reconciliation anomaly. The error wraps
// exception.ErrReconcileAnomaly.
type AnomalyFunc func(positionID string, err error)

type positionKey struct {
	account     string
	localSymbol string
	direction   enum.Direction
}

// Reconciler derives per-direction positions from order, trade and tick
// events. It is not safe for concurrent use; the recorder serializes calls.
type Reconciler struct {
	positions    map[positionKey]*model.Position
	reservations map[string]*reservation
	terminal     idWindow
	trades       idWindow
	marks        map[string]decimal.Decimal

	size      SizeFunc
	onAnomaly AnomalyFunc
}

// NewReconciler creates an empty reconciler. size and onAnomaly may be nil.
func NewReconciler(size SizeFunc, onAnomaly AnomalyFunc) *Reconciler {
	return &Reconciler{
		positions:    make(map[positionKey]*model.Position),
		reservations: make(map[string]*reservation),
		terminal:     newIDWindow(),
		trades:       newIDWindow(),
		marks:        make(map[string]decimal.Decimal),
		size:         size,
		onAnomaly:    onAnomaly,
	}
}

// ApplyOrder updates the frozen volume reserved by a close order. Open
// orders only make sure the position record exists.
func (r *Reconciler) ApplyOrder(o model.Order) {
	if !o.Offset.IsClose() {
		r.position(o.AccountID, o.Key(), o.Symbol, o.Exchange, o.Direction)
		return
	}

	if r.terminal.has(o.LocalOrderID) {
		if o.IsActive() {
			r.warn(model.PositionID(o.Key(), o.Direction.Opposite()),
				"order %s reported %s after reaching a terminal status", o.LocalOrderID, o.Status)
		}
		return
	}

	pos := r.position(o.AccountID, o.Key(), o.Symbol, o.Exchange, o.Direction.Opposite())
	res := r.reservation(o.LocalOrderID, keyOf(pos))
	res.seen = true
	res.volume = o.Volume
	res.orderTraded = max(res.orderTraded, o.Traded)
	res.active = o.IsActive()
	r.settle(pos, res)

	if !res.active {
		r.terminal.add(o.LocalOrderID)
	}
	r.release(o.LocalOrderID, res)
}

// ApplyTrade applies a fill once. It reports false for a replayed trade id.
func (r *Reconciler) ApplyTrade(t model.Trade) bool {
	if r.trades.has(t.LocalTradeID) {
		r.warn(model.PositionID(t.Key(), t.Direction), "trade %s already applied", t.LocalTradeID)
		return false
	}
	r.trades.add(t.LocalTradeID)

	if !t.Offset.IsClose() {
		pos := r.position(t.AccountID, t.Key(), t.Symbol, t.Exchange, t.Direction)
		held := decimal.NewFromInt(pos.Volume)
		v := decimal.NewFromInt(t.Volume)
		pos.Price = pos.Price.Mul(held).Add(t.Price.Mul(v)).Div(held.Add(v))
		pos.Volume += t.Volume
		pos.TodayVolume += t.Volume
		r.mark(pos)
		return true
	}

	pos := r.position(t.AccountID, t.Key(), t.Symbol, t.Exchange, t.Direction.Opposite())
	if !r.terminal.has(t.LocalOrderID) && t.LocalOrderID != "" {
		res := r.reservation(t.LocalOrderID, keyOf(pos))
		res.tradedByTrades += t.Volume
		r.settle(pos, res)
		r.release(t.LocalOrderID, res)
	}

	v := t.Volume
	if v > pos.Volume {
		r.warn(pos.LocalPositionID(), "trade %s closes %d but only %d held", t.LocalTradeID, v, pos.Volume)
		v = pos.Volume
	}
	r.reduce(pos, t.Offset, v)
	r.mark(pos)
	return true
}

// ApplyTick updates the mark price of both directions of the symbol. Volumes
// are never touched.
func (r *Reconciler) ApplyTick(localSymbol string, price decimal.Decimal) {
	if localSymbol == "" || price.IsZero() {
		return
	}
	r.marks[localSymbol] = price
	for k, pos := range r.positions {
		if k.localSymbol == localSymbol {
			r.mark(pos)
		}
	}
}

// MergePosition folds a gateway position snapshot into the local record.
// Volumes and cost follow the gateway; frozen follows local reservations
// when there are any.
func (r *Reconciler) MergePosition(p model.Position) {
	pos := r.position(p.AccountID, p.Key(), p.Symbol, p.Exchange, p.Direction)
	pos.Volume = max(p.Volume, 0)
	pos.TodayVolume = min(max(p.TodayVolume, 0), pos.Volume)
	pos.YesterdayVolume = pos.Volume - pos.TodayVolume
	pos.Price = p.Price

	if reserved := r.reserved(keyOf(pos)); reserved > 0 {
		pos.Frozen = reserved
	} else {
		pos.Frozen = max(p.Frozen, 0)
	}
	r.normalize(pos)
	r.mark(pos)
}

// Compact starts a new id generation. Trade and terminal order ids seen
// before the previous Compact are forgotten, and so are reservations of
// inactive orders that hold nothing. A trade id forgotten this way is applied
// again if it is ever replayed.
func (r *Reconciler) Compact() {
	r.trades.rotate()
	r.terminal.rotate()
	for id, res := range r.reservations {
		if !res.active && res.reserved == 0 {
			delete(r.reservations, id)
		}
	}
}

// Position returns a copy of one position.
func (r *Reconciler) Position(account, localSymbol string, direction enum.Direction) (model.Position, bool) {
	pos, ok := r.positions[positionKey{account: account, localSymbol: localSymbol, direction: direction}]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// Lookup finds a position by its local position id, e.g. "rb2101.SHFE.LONG".
// With several accounts the first account in sort order wins.
func (r *Reconciler) Lookup(localPositionID string) (model.Position, bool) {
	for _, pos := range r.Positions() {
		if pos.LocalPositionID() == localPositionID {
			return pos, true
		}
	}
	return model.Position{}, false
}

// Positions returns copies of every position sorted by account, symbol and
// direction.
func (r *Reconciler) Positions() []model.Position {
	out := make([]model.Position, 0, len(r.positions))
	for _, pos := range r.positions {
		out = append(out, *pos)
	}
	slices.SortFunc(out, func(a, b model.Position) int {
		return cmp.Or(
			cmp.Compare(a.AccountID, b.AccountID),
			cmp.Compare(a.Key(), b.Key()),
			cmp.Compare(a.Direction, b.Direction),
		)
	})
	return out
}

// Count returns the number of tracked positions.
func (r *Reconciler) Count() int {
	return len(r.positions)
}

func (r *Reconciler) position(account, localSymbol, symbol string, exchange enum.Exchange, direction enum.Direction) *model.Position {
	k := positionKey{account: account, localSymbol: localSymbol, direction: direction}
	if pos, ok := r.positions[k]; ok {
		return pos
	}
	pos := &model.Position{
		AccountID:   account,
		Symbol:      symbol,
		Exchange:    exchange,
		LocalSymbol: localSymbol,
		Direction:   direction,
	}
	r.positions[k] = pos
	r.mark(pos)
	return pos
}

func keyOf(pos *model.Position) positionKey {
	return positionKey{account: pos.AccountID, localSymbol: pos.Key(), direction: pos.Direction}
}

// settle moves the order's reservation to what its remaining volume asks for.
func (r *Reconciler) settle(pos *model.Position, res *reservation) {
	delta := res.desired() - res.reserved
	switch {
	case delta > 0:
		room := max(pos.Closeable(), 0)
		if delta > room {
			r.warn(pos.LocalPositionID(), "freeze %d exceeds closeable %d", delta, room)
			delta = room
		}
		pos.Frozen += delta
		res.reserved += delta
	case delta < 0:
		r.unfreeze(pos, -delta)
		res.reserved += delta
	}
	r.normalize(pos)
}

func (r *Reconciler) unfreeze(pos *model.Position, v int64) {
	if v <= 0 {
		return
	}
	if v > pos.Frozen {
		r.warn(pos.LocalPositionID(), "release %d exceeds frozen %d", v, pos.Frozen)
		pos.Frozen = 0
		return
	}
	pos.Frozen -= v
}

func (r *Reconciler) reduce(pos *model.Position, offset enum.Offset, v int64) {
	if v <= 0 {
		return
	}
	first, second := &pos.TodayVolume, &pos.YesterdayVolume
	if offset == enum.OffsetCloseYesterday {
		first, second = second, first
	}
	take := min(v, *first)
	*first -= take
	*second -= min(v-take, *second)

	pos.Volume -= v
	if pos.Volume <= 0 {
		pos.Volume, pos.TodayVolume, pos.YesterdayVolume = 0, 0, 0
		pos.Price = decimal.Zero
	}
	r.normalize(pos)
}

// normalize restores 0 <= frozen <= volume.
func (r *Reconciler) normalize(pos *model.Position) {
	if pos.Frozen < 0 {
		r.warn(pos.LocalPositionID(), "frozen %d below zero", pos.Frozen)
		pos.Frozen = 0
	}
	if pos.Frozen > pos.Volume {
		r.warn(pos.LocalPositionID(), "frozen %d exceeds volume %d", pos.Frozen, pos.Volume)
		pos.Frozen = pos.Volume
	}
}

func (r *Reconciler) mark(pos *model.Position) {
	price, ok := r.marks[pos.Key()]
	if !ok {
		return
	}
	pos.LastPrice = price
	if pos.Volume == 0 {
		pos.PnL = decimal.Zero
		return
	}

	size := int64(1)
	if r.size != nil {
		if s := r.size(pos.Key()); s > 0 {
			size = s
		}
	}
	pnl := price.Sub(pos.Price).Mul(decimal.NewFromInt(pos.Volume * size))
	if pos.Direction == enum.DirectionShort {
		pnl = pnl.Neg()
	}
	pos.PnL = pnl
}

func (r *Reconciler) warn(positionID, format string, args ...any) {
	err := errors.Wrapf(exception.ErrReconcileAnomaly, format, args...)
	logs.Warnf("position %s: %s", positionID, err.Error())
	if r.onAnomaly != nil {
		r.onAnomaly(positionID, err)
	}
}
