// Package blockchain routes entity fetches to the per-chain adapter able to
// serve them. Adapters are thin translation layers; everything interesting
// happens above them.
package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/yungbote/nftbridge-backend/internal/types"
)

// ClientError is the typed failure of an adapter call. Callers must respect
// the not-found/transient split: not-found is terminal for that call,
// transient may be retried.
type ClientError struct {
	Blockchain types.Blockchain
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s adapter http %d: %s", e.Blockchain, e.StatusCode, e.Message)
}

// Transient reports whether the call may succeed on retry.
func (e *ClientError) Transient() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

func IsNotFound(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.StatusCode == 404
}

func IsTransient(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Transient()
}

// Adapter is one chain's fetch surface.
type Adapter interface {
	Blockchain() types.Blockchain

	GetItem(ctx context.Context, id types.ItemID) (*types.RawItem, error)
	GetBestSellOrder(ctx context.Context, entityID, currency string) (*types.Order, error)
	GetBestBidOrder(ctx context.Context, entityID, currency string) (*types.Order, error)
	GetItemLastSale(ctx context.Context, itemID string) (*types.LastSale, error)
}

// Router dispatches on the chain prefix of a composite id. It doubles as the
// order source and activity history of the enrichment services.
type Router struct {
	adapters map[types.Blockchain]Adapter
}

func NewRouter(adapters ...Adapter) *Router {
	m := make(map[types.Blockchain]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Blockchain()] = a
	}
	return &Router{adapters: m}
}

func (r *Router) Adapter(chain types.Blockchain) (Adapter, error) {
	a, ok := r.adapters[chain]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for blockchain %s", chain)
	}
	return a, nil
}

func (r *Router) adapterFor(compositeID string) (Adapter, error) {
	chain, err := types.BlockchainOf(compositeID)
	if err != nil {
		return nil, err
	}
	return r.Adapter(chain)
}

// GetBestSell returns the current best sell order for an entity in one
// currency, or nil when there is none. Not-found is absorbed here: an empty
// order book is not an error.
func (r *Router) GetBestSell(ctx context.Context, entityID, currency string) (*types.Order, error) {
	a, err := r.adapterFor(entityID)
	if err != nil {
		return nil, err
	}
	order, err := a.GetBestSellOrder(ctx, entityID, currency)
	if IsNotFound(err) {
		return nil, nil
	}
	return order, err
}

func (r *Router) GetBestBid(ctx context.Context, entityID, currency string) (*types.Order, error) {
	a, err := r.adapterFor(entityID)
	if err != nil {
		return nil, err
	}
	order, err := a.GetBestBidOrder(ctx, entityID, currency)
	if IsNotFound(err) {
		return nil, nil
	}
	return order, err
}

// GetItemLastSale returns the authoritative last sale, or nil when the item
// has never sold.
func (r *Router) GetItemLastSale(ctx context.Context, itemID string) (*types.LastSale, error) {
	a, err := r.adapterFor(itemID)
	if err != nil {
		return nil, err
	}
	sale, err := a.GetItemLastSale(ctx, itemID)
	if IsNotFound(err) {
		return nil, nil
	}
	return sale, err
}

// GetItem fetches the raw chain-side item. Not-found propagates: callers
// distinguish a deleted item from a fetch failure.
func (r *Router) GetItem(ctx context.Context, id types.ItemID) (*types.RawItem, error) {
	a, err := r.Adapter(id.Blockchain)
	if err != nil {
		return nil, err
	}
	return a.GetItem(ctx, id)
}
