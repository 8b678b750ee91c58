package bar

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
)

// Generator folds the ticks of one symbol into bars of several intervals.
// A bar is emitted when the first tick of the next bucket arrives.
type Generator struct {
	symbol    string
	intervals []enum.Interval
	bars      map[enum.Interval]*model.Bar

	lastVolume int64
	hasVolume  bool
}

// NewGenerator creates a generator. Unavailable intervals are dropped and an
// empty list falls back to one minute.
func NewGenerator(symbol string, intervals []enum.Interval) *Generator {
	valid := make([]enum.Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.IsAvailable() && !slices.Contains(valid, iv) {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		valid = append(valid, enum.Interval1m)
	}
	slices.Sort(valid)
	return &Generator{
		symbol:    symbol,
		intervals: valid,
		bars:      make(map[enum.Interval]*model.Bar, len(valid)),
	}
}

// Symbol returns the plain symbol the generator aggregates.
func (g *Generator) Symbol() string {
	return g.symbol
}

// Intervals returns the intervals in ascending order.
func (g *Generator) Intervals() []enum.Interval {
	return slices.Clone(g.intervals)
}

// Update folds a tick and returns the bars it completed, shortest interval
// first. Ticks older than the bar in progress are ignored.
func (g *Generator) Update(t model.Tick) []model.Bar {
	if t.Datetime.IsZero() {
		return nil
	}
	price := t.Price()
	if price.IsZero() {
		return nil
	}

	var delta int64
	if g.hasVolume {
		delta = max(t.Volume-g.lastVolume, 0)
	}

	var done []model.Bar
	for _, iv := range g.intervals {
		start := bucketStart(t.Datetime, iv)
		cur, ok := g.bars[iv]
		if ok && start.Before(cur.Datetime) {
			return nil
		}
		if ok && start.Equal(cur.Datetime) {
			cur.HighPrice = decimal.Max(cur.HighPrice, price)
			cur.LowPrice = decimal.Min(cur.LowPrice, price)
			cur.ClosePrice = price
			cur.Volume += delta
			cur.OpenInterest = t.OpenInterest
			continue
		}
		if ok {
			done = append(done, *cur)
		}
		g.bars[iv] = &model.Bar{
			Symbol:       t.Symbol,
			Exchange:     t.Exchange,
			LocalSymbol:  t.Key(),
			Interval:     iv,
			Datetime:     start,
			OpenPrice:    price,
			HighPrice:    price,
			LowPrice:     price,
			ClosePrice:   price,
			Volume:       delta,
			OpenInterest: t.OpenInterest,
		}
	}

	if t.Volume >= g.lastVolume || !g.hasVolume {
		g.lastVolume = t.Volume
	}
	g.hasVolume = true
	return done
}

// Current returns the bar in progress for an interval.
func (g *Generator) Current(iv enum.Interval) (model.Bar, bool) {
	cur, ok := g.bars[iv]
	if !ok {
		return model.Bar{}, false
	}
	return *cur, true
}

// Flush returns every bar in progress and resets them.
func (g *Generator) Flush() []model.Bar {
	out := make([]model.Bar, 0, len(g.bars))
	for _, iv := range g.intervals {
		if cur, ok := g.bars[iv]; ok {
			out = append(out, *cur)
			delete(g.bars, iv)
		}
	}
	return out
}

// bucketStart aligns t to the interval within its own trading day, so
// intervals that do not divide an hour still line up with midnight.
func bucketStart(t time.Time, iv enum.Interval) time.Time {
	minutes := t.Hour()*60 + t.Minute()
	minutes -= minutes % int(iv)
	y, m, d := t.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, t.Location())
}
