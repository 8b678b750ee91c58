/*
Maincontract picks the dominant contract month of every futures product.

# Source
  - contract definitions and last-price events observed by the recorder

# Rule
  - rank the product's contracts by current open interest and by prior-session open interest
  - when both rankings agree, the prior-session entry is returned
  - when they disagree, the prior-session leader holds until another contract overtakes it on
    prior-session open interest; with no prior-session data the current leader is returned
  - resolution is recomputed on every query
*/
package maincontract

import (
	"slices"
	"strings"

	"tradecore/internal/model"
)

// Entry is the latest interest snapshot of one contract.
type Entry struct {
	Symbol          string
	LocalSymbol     string
	OpenInterest    int64
	PreOpenInterest int64
}

type bucket struct {
	entries []Entry
	index   map[string]int
}

// Resolver groups contracts by product code. It is not safe for concurrent
// use; the recorder calls it from its own dispatch.
type Resolver struct {
	buckets  map[string]*bucket
	products []string
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{buckets: make(map[string]*bucket)}
}

// Observe records a snapshot. A later snapshot of the same local symbol
// replaces the earlier one in place so first-seen order is kept.
func (r *Resolver) Observe(e Entry) {
	if e.LocalSymbol == "" {
		return
	}
	code := model.ProductCode(e.Symbol)
	if code == "" {
		code = model.ProductCode(e.LocalSymbol)
	}
	if code == "" {
		return
	}

	b, ok := r.buckets[code]
	if !ok {
		b = &bucket{index: make(map[string]int)}
		r.buckets[code] = b
		r.products = append(r.products, code)
	}
	if i, ok := b.index[e.LocalSymbol]; ok {
		b.entries[i] = e
		return
	}
	b.index[e.LocalSymbol] = len(b.entries)
	b.entries = append(b.entries, e)
}

// Resolve returns the main contract of a product code, e.g. "rb" or "RB".
func (r *Resolver) Resolve(code string) (Entry, bool) {
	b, ok := r.buckets[strings.ToUpper(code)]
	if !ok || len(b.entries) == 0 {
		return Entry{}, false
	}
	return resolve(b.entries), true
}

// List returns the resolved local symbol of every known product, in the
// order products were first seen.
func (r *Resolver) List() []string {
	out := make([]string, 0, len(r.products))
	for _, code := range r.products {
		if e, ok := r.Resolve(code); ok {
			out = append(out, e.LocalSymbol)
		}
	}
	return out
}

// Products returns the known product codes in first-seen order.
func (r *Resolver) Products() []string {
	return slices.Clone(r.products)
}

// Bucket returns a copy of every contract seen for a product.
func (r *Resolver) Bucket(code string) []Entry {
	b, ok := r.buckets[strings.ToUpper(code)]
	if !ok {
		return nil
	}
	return slices.Clone(b.entries)
}

func resolve(entries []Entry) Entry {
	byNow := slices.Clone(entries)
	slices.SortStableFunc(byNow, func(a, b Entry) int {
		return compareDesc(a.OpenInterest, b.OpenInterest)
	})
	byPre := slices.Clone(entries)
	slices.SortStableFunc(byPre, func(a, b Entry) int {
		return compareDesc(a.PreOpenInterest, b.PreOpenInterest)
	})

	now, pre := byNow[0], byPre[0]
	if pre.LocalSymbol == now.LocalSymbol {
		return pre
	}
	// A current-session lead only counts once it is confirmed by the
	// prior-session figures; without any prior-session data the current
	// leader is all there is.
	if pre.PreOpenInterest > 0 {
		return pre
	}
	return now
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
