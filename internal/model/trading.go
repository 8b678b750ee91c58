package model

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

// Order is the gateway's latest view of one order.
type Order struct {
	AccountID    string          `json:"account_id"`
	OrderID      string          `json:"order_id"`
	LocalOrderID string          `json:"local_order_id"`
	Symbol       string          `json:"symbol"`
	Exchange     enum.Exchange   `json:"exchange"`
	LocalSymbol  string          `json:"local_symbol"`
	Direction    enum.Direction  `json:"direction"`
	Offset       enum.Offset     `json:"offset"`
	Type         enum.OrderType  `json:"type"`
	Price        decimal.Decimal `json:"price"`
	Volume       int64           `json:"volume"`
	Traded       int64           `json:"traded"`
	Status       enum.Status     `json:"status"`
	Datetime     time.Time       `json:"datetime"`
}

// IsActive reports whether the order can still trade.
func (o Order) IsActive() bool {
	return o.Status.IsActive()
}

// Remaining returns the unfilled volume, never negative.
func (o Order) Remaining() int64 {
	return max(o.Volume-o.Traded, 0)
}

func (o Order) Key() string {
	if o.LocalSymbol != "" {
		return o.LocalSymbol
	}
	return LocalSymbol(o.Symbol, o.Exchange)
}

func (o Order) Validate() error {
	if o.LocalOrderID == "" {
		return errors.Wrap(exception.ErrMalformedEvent, "order without local order id")
	}
	if o.Key() == "" {
		return errors.Wrapf(exception.ErrMalformedEvent, "order %s without symbol", o.LocalOrderID)
	}
	if !o.Direction.IsAvailable() {
		return errors.Wrapf(exception.ErrMalformedEvent, "order %s without direction", o.LocalOrderID)
	}
	if !o.Status.IsAvailable() {
		return errors.Wrapf(exception.ErrMalformedEvent, "order %s without status", o.LocalOrderID)
	}
	if o.Volume < 0 || o.Traded < 0 {
		return errors.Wrapf(exception.ErrMalformedEvent, "order %s with negative volume", o.LocalOrderID)
	}
	return nil
}

// Trade is one fill. Trades are immutable once recorded.
type Trade struct {
	AccountID    string          `json:"account_id"`
	TradeID      string          `json:"trade_id"`
	LocalTradeID string          `json:"local_trade_id"`
	OrderID      string          `json:"order_id"`
	LocalOrderID string          `json:"local_order_id"`
	Symbol       string          `json:"symbol"`
	Exchange     enum.Exchange   `json:"exchange"`
	LocalSymbol  string          `json:"local_symbol"`
	Direction    enum.Direction  `json:"direction"`
	Offset       enum.Offset     `json:"offset"`
	Price        decimal.Decimal `json:"price"`
	Volume       int64           `json:"volume"`
	Datetime     time.Time       `json:"datetime"`
}

func (t Trade) Key() string {
	if t.LocalSymbol != "" {
		return t.LocalSymbol
	}
	return LocalSymbol(t.Symbol, t.Exchange)
}

func (t Trade) Validate() error {
	if t.LocalTradeID == "" {
		return errors.Wrap(exception.ErrMalformedEvent, "trade without local trade id")
	}
	if t.Key() == "" {
		return errors.Wrapf(exception.ErrMalformedEvent, "trade %s without symbol", t.LocalTradeID)
	}
	if !t.Direction.IsAvailable() || !t.Offset.IsAvailable() {
		return errors.Wrapf(exception.ErrMalformedEvent, "trade %s without direction or offset", t.LocalTradeID)
	}
	if t.Volume <= 0 {
		return errors.Wrapf(exception.ErrMalformedEvent, "trade %s with volume %d", t.LocalTradeID, t.Volume)
	}
	return nil
}

// Position is a per-direction holding of one instrument.
type Position struct {
	AccountID       string          `json:"account_id"`
	Symbol          string          `json:"symbol"`
	Exchange        enum.Exchange   `json:"exchange"`
	LocalSymbol     string          `json:"local_symbol"`
	Direction       enum.Direction  `json:"direction"`
	Volume          int64           `json:"volume"`
	TodayVolume     int64           `json:"today_volume"`
	YesterdayVolume int64           `json:"yesterday_volume"`
	Frozen          int64           `json:"frozen"`
	Price           decimal.Decimal `json:"price"`
	LastPrice       decimal.Decimal `json:"last_price"`
	PnL             decimal.Decimal `json:"pnl"`
}

// PositionID builds the local position id, "rb2101.SHFE.LONG".
func PositionID(localSymbol string, direction enum.Direction) string {
	return localSymbol + "." + direction.String()
}

func (p Position) Key() string {
	if p.LocalSymbol != "" {
		return p.LocalSymbol
	}
	return LocalSymbol(p.Symbol, p.Exchange)
}

func (p Position) LocalPositionID() string {
	return PositionID(p.Key(), p.Direction)
}

// Closeable returns the volume not reserved by pending close orders.
func (p Position) Closeable() int64 {
	return p.Volume - p.Frozen
}

func (p Position) Validate() error {
	if p.Key() == "" {
		return errors.Wrap(exception.ErrMalformedEvent, "position without symbol")
	}
	if !p.Direction.IsAvailable() {
		return errors.Wrapf(exception.ErrMalformedEvent, "position %s without direction", p.Key())
	}
	if p.Volume < 0 || p.Frozen < 0 {
		return errors.Wrapf(exception.ErrMalformedEvent, "position %s with negative volume", p.Key())
	}
	return nil
}

// Account is the latest balance snapshot.
type Account struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Frozen    decimal.Decimal `json:"frozen"`
	Available decimal.Decimal `json:"available"`
	Datetime  time.Time       `json:"datetime"`
}
