package repository

import (
	"context"

	"github.com/iliyamo/rental-markup/internal/model"
)

// MarkupStore is the persistence contract of the markup engine. It is
// implemented by MarkupRepo (MySQL) and MemoryMarkupRepo (in process).
//
// Find with activeOnly=true called on the store passed to an InTx callback
// locks the matching rows until the unit commits, so a deactivate-then-insert
// sequence cannot interleave with another one for the same tuple.
type MarkupStore interface {
	// Find returns the markups of owner on item, newest first.
	Find(ctx context.Context, owner uint64, item model.ItemKey, activeOnly bool) ([]model.Markup, error)
	// FindByToken returns the markup with the given token or nil when none exists.
	FindByToken(ctx context.Context, token string) (*model.Markup, error)
	// ListByItem returns the markups of every owner on item, newest first.
	ListByItem(ctx context.Context, item model.ItemKey, activeOnly bool) ([]model.Markup, error)
	// Insert stores m and fills its ID and timestamps.
	Insert(ctx context.Context, m *model.Markup) error
	// Update persists the mutable columns of m (is_active, amounts).
	Update(ctx context.Context, m *model.Markup) error
	// InTx runs fn inside one atomic unit. fn's error rolls the unit back.
	InTx(ctx context.Context, fn func(tx MarkupStore) error) error
}
