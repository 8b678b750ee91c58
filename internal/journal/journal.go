// Package journal persists trades and account snapshots delivered to it as
// an extension. The recorder's own state is never read back from it.
package journal

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradecore/internal/bus"
	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

const Name = "journal"

// TradeRecord is one row of the trades table.
type TradeRecord struct {
	ID           uint            `gorm:"primaryKey"`
	AccountID    string          `gorm:"column:account_id;type:varchar(64);index"`
	LocalTradeID string          `gorm:"column:local_trade_id;type:varchar(128);uniqueIndex;not null"`
	LocalOrderID string          `gorm:"column:local_order_id;type:varchar(128);index"`
	LocalSymbol  string          `gorm:"column:local_symbol;type:varchar(32);index;not null"`
	Direction    string          `gorm:"column:direction;type:varchar(8);not null"`
	Offset       string          `gorm:"column:trade_offset;type:varchar(16);not null"`
	Price        decimal.Decimal `gorm:"column:price;type:decimal(32,8)"`
	Volume       int64           `gorm:"column:volume"`
	TradedAt     time.Time       `gorm:"column:traded_at"`
	CreatedAt    time.Time
}

func (TradeRecord) TableName() string { return "journal_trades" }

// AccountRecord is one account snapshot.
type AccountRecord struct {
	ID         uint            `gorm:"primaryKey"`
	AccountID  string          `gorm:"column:account_id;type:varchar(64);index;not null"`
	Balance    decimal.Decimal `gorm:"column:balance;type:decimal(32,8)"`
	Frozen     decimal.Decimal `gorm:"column:frozen;type:decimal(32,8)"`
	Available  decimal.Decimal `gorm:"column:available;type:decimal(32,8)"`
	RecordedAt time.Time       `gorm:"column:recorded_at"`
	CreatedAt  time.Time
}

func (AccountRecord) TableName() string { return "journal_accounts" }

// Sink stores journal rows.
type Sink interface {
	SaveTrade(ctx context.Context, r TradeRecord) error
	SaveAccount(ctx context.Context, r AccountRecord) error
}

// GormSink writes rows through gorm. Replayed trades are ignored by their
// local trade id.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) SaveTrade(ctx context.Context, r TradeRecord) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_trade_id"}},
		DoNothing: true,
	}).Create(&r).Error
	if err != nil {
		return errors.Wrapf(err, "save trade %s", r.LocalTradeID)
	}
	return nil
}

func (s *GormSink) SaveAccount(ctx context.Context, r AccountRecord) error {
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return errors.Wrapf(err, "save account %s", r.AccountID)
	}
	return nil
}

// Extension journals the trades of its instruments and every account
// snapshot. With instrument independence on it needs an instrument list.
type Extension struct {
	sink Sink
	now  func() time.Time

	mu          sync.RWMutex
	instruments []string
}

func NewExtension(sink Sink, instruments ...string) (*Extension, error) {
	if sink == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "journal sink")
	}
	return &Extension{
		sink:        sink,
		now:         time.Now,
		instruments: slices.Clone(instruments),
	}, nil
}

func (e *Extension) Name() string {
	return Name
}

func (e *Extension) Instruments() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.instruments)
}

// Follow adds instruments to the journal subscription.
func (e *Extension) Follow(localSymbols ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range localSymbols {
		if !slices.Contains(e.instruments, s) {
			e.instruments = append(e.instruments, s)
		}
	}
}

func (e *Extension) OnEvent(ctx context.Context, ev bus.Event) error {
	switch ev.Topic {
	case enum.TopicTrade:
		t, ok := ev.Data.(model.Trade)
		if !ok {
			return errors.Wrapf(exception.ErrMalformedEvent, "journal trade payload %T", ev.Data)
		}
		return e.sink.SaveTrade(ctx, tradeRecord(t, ev.Time))
	case enum.TopicAccount:
		a, ok := ev.Data.(model.Account)
		if !ok {
			return errors.Wrapf(exception.ErrMalformedEvent, "journal account payload %T", ev.Data)
		}
		return e.sink.SaveAccount(ctx, e.accountRecord(a, ev.Time))
	}
	return nil
}

func tradeRecord(t model.Trade, at time.Time) TradeRecord {
	tradedAt := t.Datetime
	if tradedAt.IsZero() {
		tradedAt = at
	}
	return TradeRecord{
		AccountID:    t.AccountID,
		LocalTradeID: t.LocalTradeID,
		LocalOrderID: t.LocalOrderID,
		LocalSymbol:  t.Key(),
		Direction:    t.Direction.String(),
		Offset:       t.Offset.String(),
		Price:        t.Price,
		Volume:       t.Volume,
		TradedAt:     tradedAt,
	}
}

func (e *Extension) accountRecord(a model.Account, at time.Time) AccountRecord {
	recordedAt := a.Datetime
	if recordedAt.IsZero() {
		recordedAt = at
	}
	if recordedAt.IsZero() {
		recordedAt = e.now()
	}
	return AccountRecord{
		AccountID:  a.AccountID,
		Balance:    a.Balance,
		Frozen:     a.Frozen,
		Available:  a.Available,
		RecordedAt: recordedAt,
	}
}
