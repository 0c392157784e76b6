// Package bestorder decides which order is the "best" one for an aggregate.
// It is pure: no I/O, no clocks. When a decision needs data the core does not
// hold (the global candidate set), the resolver reports the currencies that
// must be re-fetched upstream instead of guessing.
package bestorder

import (
	"github.com/shopspring/decimal"

	"github.com/yungbote/nftbridge-backend/internal/types"
)

type Side int

const (
	SideSell Side = iota // lowest price wins
	SideBid              // highest price wins
)

// Rates maps currency id to its USD rate.
type Rates map[string]decimal.Decimal

type Resolver struct {
	preferred []string
}

// NewResolver takes the currency ids that take precedence when electing the
// default best order, in priority order.
func NewResolver(preferredCurrencies []string) *Resolver {
	return &Resolver{preferred: preferredCurrencies}
}

// Update is the outcome of applying one candidate.
type Update struct {
	ByCurrency types.OrderMap
	Default    *types.Order
	// RefetchCurrencies lists currencies whose incumbent was superseded or
	// died without a known replacement; the caller must re-fetch the next
	// best candidate from upstream for each.
	RefetchCurrencies []string
	Changed           bool
}

// OnCandidate folds one incoming order into the per-currency best map.
// origins is the collection's marketplace allow-list (empty = allow all);
// pool orders are evaluated with a nil allow-list by the caller.
func (r *Resolver) OnCandidate(
	byCurrency types.OrderMap,
	candidate *types.Order,
	side Side,
	origins []string,
	rates Rates,
) Update {
	out := Update{ByCurrency: byCurrency}
	if candidate == nil || candidate.Currency == "" {
		out.Default = r.ElectDefault(byCurrency, side, rates)
		return out
	}

	currency := candidate.Currency
	incumbent := byCurrency[currency]
	sameID := incumbent != nil && incumbent.ID == candidate.ID

	// An order outside the allow-list is invisible unless it already is the
	// incumbent: allow-list changes must not wipe stored state on their own.
	if !originAllowed(candidate, origins) && !sameID {
		out.Default = r.ElectDefault(byCurrency, side, rates)
		return out
	}

	next := byCurrency.Clone()
	if next == nil {
		next = types.OrderMap{}
	}

	switch {
	case !candidate.Alive():
		if sameID {
			// Incumbent died; the next best for this currency is unknown.
			delete(next, currency)
			out.RefetchCurrencies = []string{currency}
			out.Changed = true
		}
	case incumbent == nil:
		next[currency] = candidate
		out.Changed = true
	case sameID:
		// In-place update. If the order worsened, a previously hidden
		// candidate may now win, so the currency must be re-checked.
		next[currency] = candidate
		if r.better(incumbent, candidate, side, rates) == incumbent && !incumbent.Price.Equal(candidate.Price) {
			out.RefetchCurrencies = []string{currency}
		}
		out.Changed = true
	default:
		if r.better(incumbent, candidate, side, rates) == candidate {
			next[currency] = candidate
			out.Changed = true
		}
	}

	if out.Changed {
		if len(next) == 0 {
			next = nil
		}
		out.ByCurrency = next
	}
	out.Default = r.ElectDefault(out.ByCurrency, side, rates)
	return out
}

// ElectDefault picks the designated default best order from the per-currency
// map: the first preferred currency that holds an order, else the best by
// USD-converted price.
func (r *Resolver) ElectDefault(byCurrency types.OrderMap, side Side, rates Rates) *types.Order {
	if len(byCurrency) == 0 {
		return nil
	}
	for _, currency := range r.preferred {
		if o, ok := byCurrency[currency]; ok && o != nil {
			return o
		}
	}
	var best *types.Order
	for _, o := range byCurrency {
		best = r.better(best, o, side, rates)
	}
	return best
}

// Best returns the winner among two candidates for one currency slot.
func (r *Resolver) Best(a, b *types.Order, side Side, rates Rates) *types.Order {
	return r.better(a, b, side, rates)
}

// better is nil-tolerant: any order beats nil. Comparison is by USD price,
// then regular-over-pool, then lexicographically smaller id. Orders without
// a known rate rank below any order with one.
func (r *Resolver) better(a, b *types.Order, side Side, rates Rates) *types.Order {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	aUSD, aOK := usdPrice(a, rates)
	bUSD, bOK := usdPrice(b, rates)

	switch {
	case aOK && !bOK:
		return a
	case bOK && !aOK:
		return b
	}

	var cmp int
	if aOK {
		cmp = aUSD.Cmp(bUSD)
	} else {
		// Neither rate is known; fall back to raw price. Only meaningful
		// within one currency, which is the per-slot case.
		cmp = a.Price.Cmp(b.Price)
	}
	if side == SideBid {
		cmp = -cmp
	}
	if cmp < 0 {
		return a
	}
	if cmp > 0 {
		return b
	}

	// Exact price tie: a regular order outranks a pool order.
	if a.Pool != b.Pool {
		if b.Pool {
			return a
		}
		return b
	}
	if a.ID <= b.ID {
		return a
	}
	return b
}

func usdPrice(o *types.Order, rates Rates) (decimal.Decimal, bool) {
	rate, ok := rates[o.Currency]
	if !ok || !rate.IsPositive() {
		return decimal.Decimal{}, false
	}
	return o.Price.Mul(rate), true
}

func originAllowed(o *types.Order, origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if o.HasOrigin(origin) {
			return true
		}
	}
	return false
}
