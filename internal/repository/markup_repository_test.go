package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/rental-markup/internal/database"
	"github.com/iliyamo/rental-markup/internal/model"
)

var item = model.ItemKey{Type: model.MarkableProperty, ID: 42}

func newRow(t *testing.T, owner uint64, active bool) model.Markup {
	t.Helper()
	token, err := NewMarkupToken()
	require.NoError(t, err)
	return model.Markup{
		OwnerUserID:      owner,
		MarkableType:     item.Type,
		MarkableID:       item.ID,
		MarkupPercentage: decimal.NewNullDecimal(decimal.NewFromInt(10)),
		OriginalAmount:   decimal.NewFromInt(1000),
		FinalAmount:      decimal.NewFromInt(1100),
		IsActive:         active,
		MarkupToken:      token,
	}
}

func TestTranslateMySQL(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1:property:42' for key 'markups.uq_markups_active'"}, ErrDuplicateActive},
		{&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ab' for key 'uq_markups_token'"}, ErrDuplicateToken},
		{&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, ErrDeadlock},
		{&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, ErrDeadlock},
	}
	for _, tc := range cases {
		got := translateMySQL(fmt.Errorf("exec: %w", tc.in))
		assert.ErrorIs(t, got, tc.want)
		assert.True(t, Retryable(got))
	}

	other := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'PRIMARY'"}
	assert.Same(t, other, translateMySQL(other))
	assert.False(t, Retryable(other))
	assert.False(t, Retryable(errors.New("boom")))
}

func TestMemoryRepoSingleActive(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryMarkupRepo()

	first := newRow(t, 1, true)
	require.NoError(t, r.Insert(ctx, &first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := newRow(t, 1, true)
	assert.ErrorIs(t, r.Insert(ctx, &second), ErrDuplicateActive)

	other := newRow(t, 2, true)
	require.NoError(t, r.Insert(ctx, &other), "another owner may hold an active markup")

	dupToken := newRow(t, 3, false)
	dupToken.MarkupToken = first.MarkupToken
	assert.ErrorIs(t, r.Insert(ctx, &dupToken), ErrDuplicateToken)

	inactive := newRow(t, 1, false)
	require.NoError(t, r.Insert(ctx, &inactive))

	rows, err := r.Find(ctx, 1, item, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Greater(t, rows[0].ID, rows[1].ID, "newest first")

	rows, err = r.Find(ctx, 1, item, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)

	got, err := r.FindByToken(ctx, other.MarkupToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, other.ID, got.ID)
	got, err = r.FindByToken(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	ghost := model.Markup{ID: 999}
	assert.ErrorIs(t, r.Update(ctx, &ghost), ErrNotFound)
}

func TestMemoryRepoRollsBack(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryMarkupRepo()
	row := newRow(t, 1, true)
	require.NoError(t, r.Insert(ctx, &row))

	boom := errors.New("boom")
	err := r.InTx(ctx, func(tx MarkupStore) error {
		row.IsActive = false
		if err := tx.Update(ctx, &row); err != nil {
			return err
		}
		next := newRow(t, 1, true)
		if err := tx.Insert(ctx, &next); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rows, err := r.ListByItem(ctx, item, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsActive)
}

// openTestDB connects to the database named by TEST_MYSQL_DSN, creates the
// schema and empties the markups table. Tests are skipped without it.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, database.Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `DELETE FROM markups`)
	require.NoError(t, err)
	return db
}

func TestMySQLUniqueActive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := NewMarkupRepo(db)

	first := newRow(t, 1, true)
	require.NoError(t, r.Insert(ctx, &first))
	second := newRow(t, 1, true)
	assert.ErrorIs(t, r.Insert(ctx, &second), ErrDuplicateActive)

	for i := 0; i < 2; i++ {
		old := newRow(t, 1, false)
		require.NoError(t, r.Insert(ctx, &old), "inactive history rows never collide")
	}

	got, err := r.FindByToken(ctx, first.MarkupToken)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.FinalAmount.Equal(first.FinalAmount))
	assert.True(t, got.MarkupPercentage.Valid)
	assert.False(t, got.MarkupAmount.Valid)
}

func TestMySQLConcurrentSwap(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := NewMarkupRepo(db)

	var mu sync.Mutex
	wins := 0
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			for attempt := 0; attempt < 10; attempt++ {
				row := newRow(t, 7, true)
				err := r.InTx(ctx, func(tx MarkupStore) error {
					active, err := tx.Find(ctx, 7, item, true)
					if err != nil {
						return err
					}
					for i := range active {
						active[i].IsActive = false
						if err := tx.Update(ctx, &active[i]); err != nil {
							return err
						}
					}
					return tx.Insert(ctx, &row)
				})
				if Retryable(err) {
					continue
				}
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Positive(t, wins)

	active, err := r.Find(ctx, 7, item, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
