package state

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

const rb = "rb2101.SHFE"

func order(id string, dir enum.Direction, offset enum.Offset, status enum.Status, volume, traded int64) model.Order {
	return model.Order{
		AccountID:    "acc",
		LocalOrderID: id,
		Symbol:       "rb2101",
		Exchange:     enum.ExchangeSHFE,
		LocalSymbol:  rb,
		Direction:    dir,
		Offset:       offset,
		Status:       status,
		Volume:       volume,
		Traded:       traded,
	}
}

func trade(id, orderID string, dir enum.Direction, offset enum.Offset, price, volume int64) model.Trade {
	return model.Trade{
		AccountID:    "acc",
		LocalTradeID: id,
		LocalOrderID: orderID,
		Symbol:       "rb2101",
		Exchange:     enum.ExchangeSHFE,
		LocalSymbol:  rb,
		Direction:    dir,
		Offset:       offset,
		Price:        decimal.NewFromInt(price),
		Volume:       volume,
	}
}

func mustPosition(t *testing.T, r *Reconciler, dir enum.Direction) model.Position {
	t.Helper()
	pos, ok := r.Position("acc", rb, dir)
	require.True(t, ok)
	return pos
}

func seedLong(t *testing.T, r *Reconciler, today, yesterday int64) {
	t.Helper()
	r.MergePosition(model.Position{
		AccountID:       "acc",
		Symbol:          "rb2101",
		Exchange:        enum.ExchangeSHFE,
		LocalSymbol:     rb,
		Direction:       enum.DirectionLong,
		Volume:          today + yesterday,
		TodayVolume:     today,
		YesterdayVolume: yesterday,
		Price:           decimal.NewFromInt(100),
	})
}

func TestOpenCancelThenFill(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.ApplyOrder(order("o1", enum.DirectionLong, enum.OffsetOpen, enum.StatusNotTraded, 5, 0))
	r.ApplyOrder(order("o1", enum.DirectionLong, enum.OffsetOpen, enum.StatusCancelled, 5, 0))
	require.True(t, r.ApplyTrade(trade("t1", "o1", enum.DirectionLong, enum.OffsetOpen, 3500, 3)))

	pos := mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(3), pos.Volume)
	assert.Equal(t, int64(0), pos.Frozen)
	assert.Equal(t, int64(3), pos.TodayVolume)
	assert.True(t, pos.Price.Equal(decimal.NewFromInt(3500)))
}

func TestOpenTradesAverageCost(t *testing.T) {
	r := NewReconciler(nil, nil)
	r.ApplyTrade(trade("t1", "o1", enum.DirectionLong, enum.OffsetOpen, 100, 1))
	r.ApplyTrade(trade("t2", "o1", enum.DirectionLong, enum.OffsetOpen, 110, 3))

	pos := mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(4), pos.Volume)
	assert.True(t, pos.Price.Equal(decimal.RequireFromString("107.5")), pos.Price.String())
}

func TestCloseOrderFreezesAndCancelReleases(t *testing.T) {
	r := NewReconciler(nil, nil)
	seedLong(t, r, 0, 5)

	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 4, 0))
	pos := mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(4), pos.Frozen)
	assert.Equal(t, int64(1), pos.Closeable())
	assert.Equal(t, int64(4), r.Reserved("c1"))

	// replaying the same push changes nothing
	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 4, 0))
	assert.Equal(t, int64(4), mustPosition(t, r, enum.DirectionLong).Frozen)

	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusCancelled, 4, 0))
	pos = mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(0), pos.Frozen)
	assert.Equal(t, int64(5), pos.Volume)
	assert.Equal(t, int64(0), r.Reserved("c1"))
}

func TestCloseFillReleasesFrozenInEitherOrder(t *testing.T) {
	for _, tradeFirst := range []bool{false, true} {
		t.Run(fmt.Sprintf("trade_first=%v", tradeFirst), func(t *testing.T) {
			r := NewReconciler(nil, nil)
			seedLong(t, r, 2, 3)
			r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 4, 0))

			fill := trade("t1", "c1", enum.DirectionShort, enum.OffsetClose, 105, 3)
			update := order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusPartTraded, 4, 3)
			if tradeFirst {
				r.ApplyTrade(fill)
				r.ApplyOrder(update)
			} else {
				r.ApplyOrder(update)
				r.ApplyTrade(fill)
			}

			pos := mustPosition(t, r, enum.DirectionLong)
			assert.Equal(t, int64(2), pos.Volume)
			assert.Equal(t, int64(1), pos.Frozen)
			assert.Equal(t, int64(0), pos.TodayVolume)
			assert.Equal(t, int64(2), pos.YesterdayVolume)
		})
	}
}

func TestCloseYesterdayTakesYesterdayFirst(t *testing.T) {
	r := NewReconciler(nil, nil)
	seedLong(t, r, 2, 3)
	r.ApplyTrade(trade("t1", "", enum.DirectionShort, enum.OffsetCloseYesterday, 105, 4))

	pos := mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(1), pos.Volume)
	assert.Equal(t, int64(1), pos.TodayVolume)
	assert.Equal(t, int64(0), pos.YesterdayVolume)
}

func TestCancelledCloseWithPartialFill(t *testing.T) {
	r := NewReconciler(nil, nil)
	seedLong(t, r, 0, 5)
	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 5, 0))
	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusCancelled, 5, 3))
	r.ApplyTrade(trade("t1", "c1", enum.DirectionShort, enum.OffsetClose, 105, 3))

	pos := mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(2), pos.Volume)
	assert.Equal(t, int64(0), pos.Frozen)
}

func TestAnomaliesClampAndReport(t *testing.T) {
	var reported []error
	r := NewReconciler(nil, func(_ string, err error) { reported = append(reported, err) })
	seedLong(t, r, 0, 2)

	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 5, 0))
	pos := mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(2), pos.Frozen)
	require.Len(t, reported, 1)
	require.True(t, errors.Is(reported[0], exception.ErrReconcileAnomaly))

	r.ApplyTrade(trade("t1", "", enum.DirectionShort, enum.OffsetClose, 105, 9))
	pos = mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(0), pos.Volume)
	assert.Equal(t, int64(0), pos.Frozen)
	assert.True(t, pos.Price.IsZero())
	assert.GreaterOrEqual(t, len(reported), 2)

	n := len(reported)
	assert.False(t, r.ApplyTrade(trade("t1", "", enum.DirectionShort, enum.OffsetClose, 105, 9)))
	assert.Len(t, reported, n+1)
}

func TestLateActiveOrderIsIgnored(t *testing.T) {
	r := NewReconciler(nil, nil)
	seedLong(t, r, 0, 5)
	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 5, 0))
	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusCancelled, 5, 0))
	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 5, 0))

	assert.Equal(t, int64(0), mustPosition(t, r, enum.DirectionLong).Frozen)
}

func TestCompactForgetsIDsAfterTwoGenerations(t *testing.T) {
	r := NewReconciler(nil, nil)
	for i := range 1000 {
		require.True(t, r.ApplyTrade(trade(fmt.Sprintf("t%d", i), "o1", enum.DirectionLong, enum.OffsetOpen, 100, 1)))
	}
	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 2, 0))
	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusCancelled, 2, 0))
	r.ApplyOrder(order("c2", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 3, 0))
	assert.Equal(t, 1000, r.trades.len())
	assert.Equal(t, 1, r.terminal.len())

	// ids of the previous generation still dedupe
	r.Compact()
	assert.False(t, r.ApplyTrade(trade("t0", "o1", enum.DirectionLong, enum.OffsetOpen, 100, 1)))
	assert.Equal(t, int64(1000), mustPosition(t, r, enum.DirectionLong).Volume)

	r.Compact()
	assert.Equal(t, 0, r.trades.len())
	assert.Equal(t, 0, r.terminal.len())
	require.Len(t, r.reservations, 1)
	assert.Equal(t, int64(3), r.Reserved("c2"))

	assert.True(t, r.ApplyTrade(trade("t0", "o1", enum.DirectionLong, enum.OffsetOpen, 100, 1)))
	pos := mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(1001), pos.Volume)
	assert.Equal(t, int64(3), pos.Frozen)
}

func TestTickMarksWithoutTouchingVolume(t *testing.T) {
	r := NewReconciler(func(string) int64 { return 10 }, nil)
	r.ApplyTrade(trade("t1", "o1", enum.DirectionLong, enum.OffsetOpen, 100, 2))
	r.ApplyTrade(trade("t2", "o2", enum.DirectionShort, enum.OffsetOpen, 104, 1))
	r.ApplyTick(rb, decimal.NewFromInt(103))

	long := mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(2), long.Volume)
	assert.True(t, long.LastPrice.Equal(decimal.NewFromInt(103)))
	assert.True(t, long.PnL.Equal(decimal.NewFromInt(60)), long.PnL.String())

	short := mustPosition(t, r, enum.DirectionShort)
	assert.True(t, short.PnL.Equal(decimal.NewFromInt(10)), short.PnL.String())
}

func TestMergePositionKeepsLocalReservations(t *testing.T) {
	r := NewReconciler(nil, nil)
	seedLong(t, r, 0, 5)
	r.ApplyOrder(order("c1", enum.DirectionShort, enum.OffsetClose, enum.StatusNotTraded, 2, 0))

	r.MergePosition(model.Position{
		AccountID: "acc", LocalSymbol: rb, Direction: enum.DirectionLong,
		Volume: 6, TodayVolume: 1, Frozen: 0, Price: decimal.NewFromInt(101),
	})
	pos := mustPosition(t, r, enum.DirectionLong)
	assert.Equal(t, int64(6), pos.Volume)
	assert.Equal(t, int64(5), pos.YesterdayVolume)
	assert.Equal(t, int64(2), pos.Frozen)

	got, ok := r.Lookup("rb2101.SHFE.LONG")
	require.True(t, ok)
	assert.Equal(t, pos, got)
}

func TestSnapshotRoundTripAndCompare(t *testing.T) {
	r := NewReconciler(nil, nil)
	seedLong(t, r, 1, 2)
	r.ApplyTrade(trade("t1", "o1", enum.DirectionShort, enum.OffsetOpen, 99, 4))

	snap := r.SnapshotWithMeta(42)
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "rb2101.SHFE.LONG", snap.Positions[0].PositionID)

	path := filepath.Join(t.TempDir(), "nested", "positions.json")
	require.NoError(t, WriteSnapshot(path, snap))
	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), loaded.LastSeq)
	require.NoError(t, CompareSnapshots(snap, loaded))

	loaded.Positions[1].Volume++
	require.Error(t, CompareSnapshots(snap, loaded))
}

func TestPropertyCloseableNeverNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// each step encodes kind, direction, offset and volume in one integer
	properties.Property("closeable volume is never negative", prop.ForAll(
		func(steps []int) bool {
			r := NewReconciler(nil, nil)
			for i, step := range steps {
				dir := enum.DirectionLong
				if step&1 == 1 {
					dir = enum.DirectionShort
				}
				offset := []enum.Offset{enum.OffsetOpen, enum.OffsetClose, enum.OffsetCloseToday, enum.OffsetCloseYesterday}[(step>>1)%4]
				volume := int64(step>>3)%6 + 1
				id := fmt.Sprintf("x%d", i)

				switch (step >> 6) % 3 {
				case 0:
					r.ApplyTrade(trade(id, "", dir, offset, 100+int64(i), volume))
				case 1:
					r.ApplyOrder(order(id, dir, offset, enum.StatusNotTraded, volume, 0))
					r.ApplyTrade(trade(id, id, dir, offset, 100, volume/2+1))
				default:
					r.ApplyOrder(order(id, dir, offset, enum.StatusNotTraded, volume, 0))
					r.ApplyOrder(order(id, dir, offset, enum.StatusCancelled, volume, 0))
				}

				for _, pos := range r.Positions() {
					if pos.Closeable() < 0 || pos.Frozen < 0 {
						return false
					}
					if pos.TodayVolume+pos.YesterdayVolume != pos.Volume {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1<<8)),
	))

	properties.TestingRun(t)
}
