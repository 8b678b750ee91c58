package model

import (
	"maps"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

const (
	tickDateLayout         = "20060102"
	tickTimeLayout         = "15:04:05"
	tickFractionTimeLayout = "15:04:05.999999999"
)

// LocalSymbol joins a symbol and its exchange, e.g. "rb2101.SHFE".
func LocalSymbol(symbol string, exchange enum.Exchange) string {
	if !exchange.IsAvailable() {
		return symbol
	}
	return symbol + "." + exchange.String()
}

// ProductCode strips the contract month digits from a symbol and upper-cases
// the rest, e.g. "rb2101" -> "RB". An exchange suffix is ignored.
func ProductCode(symbol string) string {
	if i := strings.IndexByte(symbol, '.'); i >= 0 {
		symbol = symbol[:i]
	}
	var sb strings.Builder
	sb.Grow(len(symbol))
	for _, r := range symbol {
		if unicode.IsDigit(r) {
			continue
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}

// Tick is the latest market snapshot of one instrument.
type Tick struct {
	Symbol       string          `json:"symbol"`
	Exchange     enum.Exchange   `json:"exchange"`
	LocalSymbol  string          `json:"local_symbol"`
	Datetime     time.Time       `json:"datetime"`
	Date         string          `json:"date"`
	Time         string          `json:"time"`
	LastPrice    decimal.Decimal `json:"last_price"`
	ClosePrice   decimal.Decimal `json:"close_price"`
	OpenPrice    decimal.Decimal `json:"open_price"`
	HighPrice    decimal.Decimal `json:"high_price"`
	LowPrice     decimal.Decimal `json:"low_price"`
	PreClose     decimal.Decimal `json:"pre_close"`
	Volume       int64           `json:"volume"`
	Turnover     decimal.Decimal `json:"turnover"`
	OpenInterest int64           `json:"open_interest"`
}

// Price returns the last price, falling back to the close price.
func (t Tick) Price() decimal.Decimal {
	if !t.LastPrice.IsZero() {
		return t.LastPrice
	}
	return t.ClosePrice
}

// Validate checks the fields every tick consumer relies on.
func (t Tick) Validate() error {
	if t.Symbol == "" && t.LocalSymbol == "" {
		return errors.Wrap(exception.ErrMalformedEvent, "tick without symbol")
	}
	if t.LastPrice.IsZero() && t.ClosePrice.IsZero() {
		return errors.Wrapf(exception.ErrMalformedEvent, "tick %s without last and close price", t.Key())
	}
	return nil
}

// Key returns the local symbol, deriving it when the gateway left it empty.
func (t Tick) Key() string {
	if t.LocalSymbol != "" {
		return t.LocalSymbol
	}
	return LocalSymbol(t.Symbol, t.Exchange)
}

// ResolveDatetime fills Datetime from the raw Date and Time strings when it
// is missing. A '.' in Time selects the sub-second layout.
func (t *Tick) ResolveDatetime(loc *time.Location) error {
	if !t.Datetime.IsZero() {
		return nil
	}
	if t.Date == "" || t.Time == "" {
		return errors.Wrapf(exception.ErrMalformedEvent, "tick %s without datetime", t.Key())
	}
	if loc == nil {
		loc = time.Local
	}
	layout := tickDateLayout + " " + tickTimeLayout
	if strings.Contains(t.Time, ".") {
		layout = tickDateLayout + " " + tickFractionTimeLayout
	}
	dt, err := time.ParseInLocation(layout, t.Date+" "+t.Time, loc)
	if err != nil {
		return errors.Wrapf(exception.ErrMalformedEvent, "tick %s datetime %q %q: %v", t.Key(), t.Date, t.Time, err)
	}
	t.Datetime = dt
	return nil
}

// Bar is one aggregated candle.
type Bar struct {
	Symbol       string          `json:"symbol"`
	Exchange     enum.Exchange   `json:"exchange"`
	LocalSymbol  string          `json:"local_symbol"`
	Interval     enum.Interval   `json:"interval"`
	Datetime     time.Time       `json:"datetime"`
	OpenPrice    decimal.Decimal `json:"open_price"`
	HighPrice    decimal.Decimal `json:"high_price"`
	LowPrice     decimal.Decimal `json:"low_price"`
	ClosePrice   decimal.Decimal `json:"close_price"`
	Volume       int64           `json:"volume"`
	OpenInterest int64           `json:"open_interest"`
}

func (b Bar) Validate() error {
	if b.LocalSymbol == "" {
		return errors.Wrap(exception.ErrMalformedEvent, "bar without local symbol")
	}
	if !b.Interval.IsAvailable() {
		return errors.Wrapf(exception.ErrMalformedEvent, "bar %s with interval %d", b.LocalSymbol, b.Interval)
	}
	return nil
}

// Contract is the static definition of one instrument plus its interest figures.
type Contract struct {
	Symbol          string          `json:"symbol"`
	Exchange        enum.Exchange   `json:"exchange"`
	LocalSymbol     string          `json:"local_symbol"`
	Name            string          `json:"name"`
	Size            int64           `json:"size"`
	PriceTick       decimal.Decimal `json:"price_tick"`
	OpenInterest    int64           `json:"open_interest"`
	PreOpenInterest int64           `json:"pre_open_interest"`
}

func (c Contract) Key() string {
	if c.LocalSymbol != "" {
		return c.LocalSymbol
	}
	return LocalSymbol(c.Symbol, c.Exchange)
}

func (c Contract) Validate() error {
	if c.Symbol == "" || c.Key() == "" {
		return errors.Wrap(exception.ErrMalformedEvent, "contract without symbol")
	}
	return nil
}

// LastData is the last-price payload used for main contract bookkeeping.
type LastData struct {
	Symbol          string          `json:"symbol"`
	Exchange        enum.Exchange   `json:"exchange"`
	LocalSymbol     string          `json:"local_symbol"`
	Datetime        time.Time       `json:"datetime"`
	LastPrice       decimal.Decimal `json:"last_price"`
	OpenInterest    int64           `json:"open_interest"`
	PreOpenInterest int64           `json:"pre_open_interest"`
}

func (l LastData) Key() string {
	if l.LocalSymbol != "" {
		return l.LocalSymbol
	}
	return LocalSymbol(l.Symbol, l.Exchange)
}

func (l LastData) Validate() error {
	if l.Symbol == "" {
		return errors.Wrap(exception.ErrMalformedEvent, "last data without symbol")
	}
	return nil
}

// SharedData is a free-form per-instrument payload shared between strategies.
type SharedData struct {
	LocalSymbol string                     `json:"local_symbol"`
	Datetime    time.Time                  `json:"datetime"`
	Values      map[string]decimal.Decimal `json:"values"`
}

func (s SharedData) Clone() SharedData {
	s.Values = maps.Clone(s.Values)
	return s
}

func (s SharedData) Validate() error {
	if s.LocalSymbol == "" {
		return errors.Wrap(exception.ErrMalformedEvent, "shared data without local symbol")
	}
	return nil
}
