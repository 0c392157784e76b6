package types

// Flags are feature toggles passed to the enrichment engines at construction
// so tests can vary behavior per case.
type Flags struct {
	// CompareRevertedLastSale re-derives the last sale on revert only when
	// the reverted payload matches the stored one (legacy heuristic). When
	// false the history is always consulted on revert.
	CompareRevertedLastSale bool

	// EnablePoolOrders turns pool-order tracking on.
	EnablePoolOrders bool

	// EnableIncrementalSellStats computes item sell stats from the ownership
	// delta instead of a full recount query.
	EnableIncrementalSellStats bool

	// EnableNotificationOnCollectionOrders publishes collection updates
	// triggered by collection-wide orders.
	EnableNotificationOnCollectionOrders bool

	// PreferredCurrencies elects the default best order, in priority order,
	// before falling back to USD comparison.
	PreferredCurrencies []string
}

func DefaultFlags() Flags {
	return Flags{
		EnablePoolOrders:                     true,
		EnableIncrementalSellStats:           true,
		EnableNotificationOnCollectionOrders: true,
	}
}
