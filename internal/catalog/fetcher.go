package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/studysync/studysync/internal/api"
)

// Fetcher resolves catalog items from the backend's split paid/free
// collections. The paid collection is probed first; a not-found answer falls
// through to the free collection. This costs a second round trip for free
// items but keeps both collections behind one call site.
type Fetcher struct {
	client *api.Client
}

func NewFetcher(client *api.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Get fetches one item by id. The first collection that answers with a
// parseable body wins. Access is free only if the free collection answered,
// or if the price is zero regardless of which collection answered.
func (f *Fetcher) Get(ctx context.Context, kind Kind, id string) (*Item, error) {
	var item Item

	err := f.client.Get(ctx, kind.paidPath()+"/"+id, &item)
	if err == nil {
		f.normalize(&item, kind, AccessPaid)
		return &item, nil
	}
	if !errors.Is(err, api.ErrNotFound) {
		return nil, fmt.Errorf("fetch %s %s: %w", kind, id, err)
	}

	log.Debug().Str("kind", kind.String()).Str("id", id).
		Msg("not in paid collection, probing free collection")

	if err := f.client.Get(ctx, kind.freePath()+"/"+id, &item); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", kind, id, api.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch %s %s: %w", kind, id, err)
	}

	f.normalize(&item, kind, AccessFree)
	return &item, nil
}

// List returns the merged catalog across both collections, paid first.
func (f *Fetcher) List(ctx context.Context, kind Kind) ([]Item, error) {
	var paid, free []Item

	if err := f.client.Get(ctx, kind.paidPath(), &paid); err != nil && !errors.Is(err, api.ErrNotFound) {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	if err := f.client.Get(ctx, kind.freePath(), &free); err != nil && !errors.Is(err, api.ErrNotFound) {
		return nil, fmt.Errorf("list free %s: %w", kind, err)
	}

	items := make([]Item, 0, len(paid)+len(free))
	for i := range paid {
		f.normalize(&paid[i], kind, AccessPaid)
		items = append(items, paid[i])
	}
	for i := range free {
		f.normalize(&free[i], kind, AccessFree)
		items = append(items, free[i])
	}

	return items, nil
}

// normalize stamps the kind and infers access from the answering collection
// and the price.
func (f *Fetcher) normalize(item *Item, kind Kind, source Access) {
	item.Kind = kind
	item.Access = source
	if item.Price == 0 {
		item.Access = AccessFree
	}
}
