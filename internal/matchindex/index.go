package matchindex

import (
	"context"
	"fmt"
	"sync"
)

// Store persists the whole graph. Save must replace the stored graph
// atomically so readers never observe a partial write.
type Store interface {
	Load(ctx context.Context) (Graph, error)
	Save(ctx context.Context, g Graph) error
}

// Index serializes read-modify-write cycles over a Store.
type Index struct {
	mu    sync.Mutex
	store Store
}

func New(store Store) *Index {
	return &Index{store: store}
}

// Get returns the reports linked to reportID, empty if none.
func (i *Index) Get(ctx context.Context, reportID string) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	g, err := i.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load match index: %w", err)
	}
	peers := g.Peers(reportID)
	if peers == nil {
		peers = []string{}
	}
	return peers, nil
}

// Update replaces the links of reportID with matchedIDs, keeping the graph symmetric.
func (i *Index) Update(ctx context.Context, reportID string, matchedIDs []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	g, err := i.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load match index: %w", err)
	}
	g.Link(reportID, matchedIDs)
	if err := i.store.Save(ctx, g); err != nil {
		return fmt.Errorf("failed to save match index: %w", err)
	}
	return nil
}

// Remove purges reportID and every link to it.
func (i *Index) Remove(ctx context.Context, reportID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	g, err := i.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load match index: %w", err)
	}
	if !g.Unlink(reportID) {
		return nil
	}
	if err := i.store.Save(ctx, g); err != nil {
		return fmt.Errorf("failed to save match index: %w", err)
	}
	return nil
}

// Reset empties the index.
func (i *Index) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.store.Save(ctx, Graph{}); err != nil {
		return fmt.Errorf("failed to reset match index: %w", err)
	}
	return nil
}
