package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/iliyamo/rental-markup/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same query code
// runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MarkupRepo provides data access to the markups table. A MarkupRepo
// returned by NewMarkupRepo runs each statement on its own; the copy handed
// to an InTx callback runs every statement on the shared transaction and
// locks active rows it reads. All timestamps are UTC.
type MarkupRepo struct {
	db   *sql.DB
	q    querier
	inTx bool
}

// NewMarkupRepo returns a new MarkupRepo bound to the provided database.
func NewMarkupRepo(db *sql.DB) *MarkupRepo { return &MarkupRepo{db: db, q: db} }

// DB exposes the underlying handle for health checks.
func (r *MarkupRepo) DB() *sql.DB { return r.db }

const markupColumns = `id, owner_user_id, markable_type, markable_id, markup_percentage, markup_amount,
       original_amount, final_amount, is_active, markup_token, created_at, updated_at`

// Find returns the markups defined by owner on item, newest first. Inside
// InTx, an activeOnly lookup is issued with FOR UPDATE so that concurrent
// units touching the same tuple serialise on the row (or its index gap).
func (r *MarkupRepo) Find(ctx context.Context, owner uint64, item model.ItemKey, activeOnly bool) ([]model.Markup, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + markupColumns + ` FROM markups
       WHERE owner_user_id = ? AND markable_type = ? AND markable_id = ?`)
	if activeOnly {
		b.WriteString(` AND is_active = 1`)
	}
	b.WriteString(` ORDER BY id DESC`)
	if activeOnly && r.inTx {
		b.WriteString(` FOR UPDATE`)
	}
	return r.query(ctx, b.String(), owner, string(item.Type), item.ID)
}

// FindByToken returns the markup carrying token, or nil when no row matches.
func (r *MarkupRepo) FindByToken(ctx context.Context, token string) (*model.Markup, error) {
	rows, err := r.query(ctx, `SELECT `+markupColumns+` FROM markups WHERE markup_token = ? LIMIT 1`, token)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListByItem returns markups of every owner on item, newest first.
func (r *MarkupRepo) ListByItem(ctx context.Context, item model.ItemKey, activeOnly bool) ([]model.Markup, error) {
	q := `SELECT ` + markupColumns + ` FROM markups WHERE markable_type = ? AND markable_id = ?`
	if activeOnly {
		q += ` AND is_active = 1`
	}
	q += ` ORDER BY id DESC`
	return r.query(ctx, q, string(item.Type), item.ID)
}

// Insert adds a markup row and fills m.ID, CreatedAt and UpdatedAt. An
// insert that would create a second active row for the tuple fails with
// ErrDuplicateActive.
func (r *MarkupRepo) Insert(ctx context.Context, m *model.Markup) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO markups (owner_user_id, markable_type, markable_id, markup_percentage, markup_amount,
                              original_amount, final_amount, is_active, markup_token, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.OwnerUserID, string(m.MarkableType), m.MarkableID, m.MarkupPercentage, m.MarkupAmount,
		m.OriginalAmount, m.FinalAmount, m.IsActive, m.MarkupToken, now, now,
	)
	if err != nil {
		return translateMySQL(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// Update writes the mutable columns of m back to its row.
func (r *MarkupRepo) Update(ctx context.Context, m *model.Markup) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.q.ExecContext(ctx,
		`UPDATE markups SET is_active = ?, final_amount = ?, updated_at = ? WHERE id = ?`,
		m.IsActive, m.FinalAmount, now, m.ID,
	)
	if err != nil {
		return translateMySQL(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	m.UpdatedAt = now
	return nil
}

// InTx runs fn on a transaction-bound copy of the repository. The
// transaction commits when fn returns nil and rolls back otherwise. Nested
// calls reuse the outer transaction.
func (r *MarkupRepo) InTx(ctx context.Context, fn func(tx MarkupStore) error) error {
	if r.inTx {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&MarkupRepo{db: r.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translateMySQL(err)
	}
	committed = true
	return nil
}

func (r *MarkupRepo) query(ctx context.Context, q string, args ...any) ([]model.Markup, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, translateMySQL(err)
	}
	defer rows.Close()
	var out []model.Markup
	for rows.Next() {
		var (
			m   model.Markup
			typ string
		)
		if err := rows.Scan(&m.ID, &m.OwnerUserID, &typ, &m.MarkableID, &m.MarkupPercentage, &m.MarkupAmount,
			&m.OriginalAmount, &m.FinalAmount, &m.IsActive, &m.MarkupToken, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.MarkableType = model.MarkableType(typ)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, translateMySQL(err)
	}
	return out, nil
}

// NewMarkupToken generates the opaque token stored in markups.markup_token:
// 32 bytes from crypto/rand, hex encoded.
func NewMarkupToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
