package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/rental-markup/internal/model"
)

type memoryState struct {
	tx     sync.Mutex // held for the whole of an InTx unit
	mu     sync.Mutex // guards rows and nextID
	rows   []model.Markup
	nextID uint64
}

// MemoryMarkupRepo is an in-process MarkupStore. It enforces the same
// uniqueness rules as the markups table and serialises InTx units, rolling
// back every change made by a unit whose callback fails. It backs the
// "memory" store mode and the test suites.
type MemoryMarkupRepo struct {
	s    *memoryState
	inTx bool
}

// NewMemoryMarkupRepo returns an empty in-process store.
func NewMemoryMarkupRepo() *MemoryMarkupRepo { return &MemoryMarkupRepo{s: &memoryState{}} }

func (r *MemoryMarkupRepo) Find(_ context.Context, owner uint64, item model.ItemKey, activeOnly bool) ([]model.Markup, error) {
	return r.filter(func(m model.Markup) bool {
		return m.OwnerUserID == owner && m.Item() == item && (!activeOnly || m.IsActive)
	}), nil
}

func (r *MemoryMarkupRepo) FindByToken(_ context.Context, token string) (*model.Markup, error) {
	rows := r.filter(func(m model.Markup) bool { return m.MarkupToken == token })
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *MemoryMarkupRepo) ListByItem(_ context.Context, item model.ItemKey, activeOnly bool) ([]model.Markup, error) {
	return r.filter(func(m model.Markup) bool {
		return m.Item() == item && (!activeOnly || m.IsActive)
	}), nil
}

func (r *MemoryMarkupRepo) Insert(_ context.Context, m *model.Markup) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.rows {
		if row.MarkupToken == m.MarkupToken {
			return ErrDuplicateToken
		}
		if m.IsActive && row.IsActive && row.OwnerUserID == m.OwnerUserID && row.Item() == m.Item() {
			return ErrDuplicateActive
		}
	}
	now := time.Now().UTC()
	r.s.nextID++
	m.ID = r.s.nextID
	m.CreatedAt = now
	m.UpdatedAt = now
	r.s.rows = append(r.s.rows, *m)
	return nil
}

func (r *MemoryMarkupRepo) Update(_ context.Context, m *model.Markup) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.rows {
		row := &r.s.rows[i]
		if row.ID != m.ID {
			continue
		}
		if m.IsActive && !row.IsActive {
			for _, other := range r.s.rows {
				if other.ID != m.ID && other.IsActive && other.OwnerUserID == m.OwnerUserID && other.Item() == m.Item() {
					return ErrDuplicateActive
				}
			}
		}
		m.UpdatedAt = time.Now().UTC()
		row.IsActive = m.IsActive
		row.FinalAmount = m.FinalAmount
		row.UpdatedAt = m.UpdatedAt
		return nil
	}
	return ErrNotFound
}

// InTx runs fn while holding the store-wide unit lock. Rows are restored to
// their previous state when fn fails.
func (r *MemoryMarkupRepo) InTx(ctx context.Context, fn func(tx MarkupStore) error) error {
	if r.inTx {
		return fn(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.tx.Lock()
	defer r.s.tx.Unlock()

	r.s.mu.Lock()
	snapshot := append([]model.Markup(nil), r.s.rows...)
	nextID := r.s.nextID
	r.s.mu.Unlock()

	if err := fn(&MemoryMarkupRepo{s: r.s, inTx: true}); err != nil {
		r.s.mu.Lock()
		r.s.rows = snapshot
		r.s.nextID = nextID
		r.s.mu.Unlock()
		return err
	}
	return nil
}

// filter returns copies of matching rows, newest first.
func (r *MemoryMarkupRepo) filter(keep func(model.Markup) bool) []model.Markup {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Markup
	for _, m := range r.s.rows {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
