package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/iliyamo/rental-markup/internal/model"
)

// listingTables maps each markable tag to the catalogue table holding its
// base price. Every table exposes id, title and price columns.
var listingTables = map[model.MarkableType]string{
	model.MarkableProperty: "properties",
	model.MarkableCar:      "cars",
	model.MarkableService:  "services",
	model.MarkableFood:     "foods",
}

// ListingRepo loads the pricing view of catalogue items.
type ListingRepo struct{ DB *sql.DB }

func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{DB: db} }

// GetByKey returns the listing identified by item or ErrNotFound.
func (r *ListingRepo) GetByKey(ctx context.Context, item model.ItemKey) (model.Listing, error) {
	table, ok := listingTables[item.Type]
	if !ok {
		return model.Listing{}, fmt.Errorf("unknown markable type %q: %w", item.Type, ErrNotFound)
	}
	l := model.Listing{Type: item.Type}
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, title, price FROM "+table+" WHERE id = ? LIMIT 1", item.ID,
	).Scan(&l.ID, &l.Title, &l.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, ErrNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

// MemoryListingRepo is an in-process catalogue used by the memory store
// mode and tests.
type MemoryListingRepo struct {
	mu    sync.RWMutex
	items map[model.ItemKey]model.Listing
}

func NewMemoryListingRepo(listings ...model.Listing) *MemoryListingRepo {
	r := &MemoryListingRepo{items: make(map[model.ItemKey]model.Listing, len(listings))}
	for _, l := range listings {
		r.Put(l)
	}
	return r
}

// Put inserts or replaces l.
func (r *MemoryListingRepo) Put(l model.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[l.Key()] = l
}

func (r *MemoryListingRepo) GetByKey(_ context.Context, item model.ItemKey) (model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.items[item]
	if !ok {
		return model.Listing{}, ErrNotFound
	}
	return l, nil
}
