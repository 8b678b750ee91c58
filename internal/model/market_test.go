package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

func TestProductCode(t *testing.T) {
	testCases := []struct {
		symbol   string
		expected string
	}{
		{"rb2101", "RB"},
		{"rb2101.SHFE", "RB"},
		{"IF2403", "IF"},
		{"ag2306P4600", "AGP"},
		{"SR405", "SR"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.symbol, func(t *testing.T) {
			assert.Equal(t, tc.expected, ProductCode(tc.symbol))
		})
	}
}

func TestLocalSymbol(t *testing.T) {
	assert.Equal(t, "rb2101.SHFE", LocalSymbol("rb2101", enum.ExchangeSHFE))
	assert.Equal(t, "rb2101", LocalSymbol("rb2101", 0))
}

func TestTickResolveDatetime(t *testing.T) {
	t.Run("whole seconds", func(t *testing.T) {
		tick := Tick{Symbol: "rb2101", Date: "20240105", Time: "09:30:01"}
		require.NoError(t, tick.ResolveDatetime(time.UTC))
		assert.Equal(t, time.Date(2024, 1, 5, 9, 30, 1, 0, time.UTC), tick.Datetime)
	})

	t.Run("sub second", func(t *testing.T) {
		tick := Tick{Symbol: "rb2101", Date: "20240105", Time: "09:30:01.500"}
		require.NoError(t, tick.ResolveDatetime(time.UTC))
		assert.Equal(t, time.Date(2024, 1, 5, 9, 30, 1, 500*int(time.Millisecond), time.UTC), tick.Datetime)
	})

	t.Run("keeps existing", func(t *testing.T) {
		dt := time.Date(2023, 7, 1, 21, 0, 0, 0, time.UTC)
		tick := Tick{Symbol: "rb2101", Datetime: dt, Date: "garbage", Time: "garbage"}
		require.NoError(t, tick.ResolveDatetime(time.UTC))
		assert.Equal(t, dt, tick.Datetime)
	})

	t.Run("unparseable", func(t *testing.T) {
		tick := Tick{Symbol: "rb2101", Date: "2024-01-05", Time: "09:30"}
		require.True(t, errors.Is(tick.ResolveDatetime(time.UTC), exception.ErrMalformedEvent))
	})
}

func TestTickValidate(t *testing.T) {
	tick := Tick{Symbol: "rb2101", Exchange: enum.ExchangeSHFE}
	require.True(t, errors.Is(tick.Validate(), exception.ErrMalformedEvent))

	tick.ClosePrice = decimal.NewFromInt(3700)
	require.NoError(t, tick.Validate())
	assert.True(t, tick.Price().Equal(decimal.NewFromInt(3700)))

	tick.LastPrice = decimal.NewFromInt(3710)
	assert.True(t, tick.Price().Equal(decimal.NewFromInt(3710)))
	assert.Equal(t, "rb2101.SHFE", tick.Key())
}

func TestSharedDataCloneIsIndependent(t *testing.T) {
	orig := SharedData{
		LocalSymbol: "rb2101.SHFE",
		Values:      map[string]decimal.Decimal{"signal": decimal.NewFromInt(1)},
	}
	cp := orig.Clone()
	cp.Values["signal"] = decimal.NewFromInt(-1)
	cp.Values["extra"] = decimal.NewFromInt(2)

	assert.True(t, orig.Values["signal"].Equal(decimal.NewFromInt(1)))
	assert.Len(t, orig.Values, 1)
}

func TestOrderRemaining(t *testing.T) {
	o := Order{Volume: 5, Traded: 3}
	assert.Equal(t, int64(2), o.Remaining())
	o.Traded = 7
	assert.Equal(t, int64(0), o.Remaining())
}

func TestPositionID(t *testing.T) {
	p := Position{Symbol: "rb2101", Exchange: enum.ExchangeSHFE, Direction: enum.DirectionShort, Volume: 4, Frozen: 1}
	assert.Equal(t, "rb2101.SHFE.SHORT", p.LocalPositionID())
	assert.Equal(t, int64(3), p.Closeable())
}
