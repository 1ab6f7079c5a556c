package markup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/rental-markup/internal/cache"
	"github.com/iliyamo/rental-markup/internal/model"
	"github.com/iliyamo/rental-markup/internal/pricing"
	"github.com/iliyamo/rental-markup/internal/repository"
)

const (
	hostID  uint64 = 1
	guestID uint64 = 2
	host2ID uint64 = 3
)

const baseURL = "https://stay.example"

var property = model.ItemKey{Type: model.MarkableProperty, ID: 42}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.MarkupEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.MarkupEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type fixture struct {
	m      *Manager
	store  *repository.MemoryMarkupRepo
	tokens *cache.LRUTokenCache
	pub    *recordingPublisher
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T, store repository.MarkupStore) fixture {
	t.Helper()
	mem := repository.NewMemoryMarkupRepo()
	if store == nil {
		store = mem
	}
	tokens, err := cache.NewLRUTokenCache(128)
	require.NoError(t, err)
	users := repository.NewMemoryUserRepo(
		model.User{ID: hostID, Role: model.RoleHost, IsActive: true},
		model.User{ID: guestID, Role: model.RoleGuest, IsActive: true},
		model.User{ID: host2ID, Role: model.RoleHost, IsActive: true},
	)
	core, logs := observer.New(zapcore.DebugLevel)
	pub := &recordingPublisher{}
	m := NewManager(store, tokens, users, Options{
		Links:     DefaultLinkBuilder(baseURL),
		Publisher: pub,
		Logger:    zap.New(core),
	})
	return fixture{m: m, store: mem, tokens: tokens, pub: pub, logs: logs}
}

func applyPct(t *testing.T, m *Manager, owner uint64, item model.ItemKey, original, pct string) *model.Markup {
	t.Helper()
	rec, err := m.Apply(context.Background(), ApplyInput{
		OwnerUserID:    owner,
		Item:           item,
		OriginalAmount: dec(original),
		Value:          dec(pct),
		IsPercentage:   true,
	})
	require.NoError(t, err)
	return rec
}

func TestApplyScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rec := applyPct(t, f.m, hostID, property, "2000", "15")
	assert.Equal(t, "2300.00", rec.FinalAmount.StringFixed(2))
	assert.True(t, rec.IsActive)
	assert.Len(t, rec.MarkupToken, 64)
	assert.NotZero(t, rec.ID)
	assert.True(t, rec.MarkupPercentage.Valid)
	assert.False(t, rec.MarkupAmount.Valid)

	price, err := f.m.FinalPriceForUser(ctx, property, dec("2000"), hostID)
	require.NoError(t, err)
	assert.Equal(t, "2300.00", price.StringFixed(2))

	price, err = f.m.FinalPriceForUser(ctx, property, dec("2000"), host2ID)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("2000")))

	other := applyPct(t, f.m, host2ID, property, "2000", "10")
	assert.NotEqual(t, rec.MarkupToken, other.MarkupToken)

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, model.EventMarkupApplied, f.pub.events[0].Type)
	assert.Equal(t, rec.ID, f.pub.events[0].MarkupID)
}

func TestApplyFlatAmount(t *testing.T) {
	f := newFixture(t, nil)
	rec, err := f.m.Apply(context.Background(), ApplyInput{
		OwnerUserID:    hostID,
		Item:           property,
		OriginalAmount: dec("1000"),
		Value:          dec("150"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1150.00", rec.FinalAmount.StringFixed(2))
	assert.True(t, rec.MarkupAmount.Valid)
	assert.False(t, rec.MarkupPercentage.Valid)
}

func TestApplyRequiresHost(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, owner := range []uint64{guestID, 999} {
		_, err := f.m.Apply(ctx, ApplyInput{
			OwnerUserID:    owner,
			Item:           property,
			OriginalAmount: dec("1000"),
			Value:          dec("10"),
			IsPercentage:   true,
		})
		require.ErrorIs(t, err, ErrNotHost)
	}

	rows, err := f.store.ListByItem(ctx, property, false)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, f.pub.events)
}

func TestApplyRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.m.Apply(ctx, ApplyInput{OwnerUserID: hostID, Item: model.ItemKey{Type: "boat", ID: 1}, OriginalAmount: dec("1"), Value: dec("1")})
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = f.m.Apply(ctx, ApplyInput{OwnerUserID: hostID, Item: property, OriginalAmount: dec("100"), Value: dec("-200")})
	assert.Error(t, err)

	rows, err := f.store.ListByItem(ctx, property, false)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestApplyKeepsHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := applyPct(t, f.m, hostID, property, "1000", "10")
	second := applyPct(t, f.m, hostID, property, "1000", "20")

	rows, err := f.store.Find(ctx, hostID, property, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.True(t, rows[0].IsActive)
	assert.Equal(t, first.ID, rows[1].ID)
	assert.False(t, rows[1].IsActive)

	active, err := f.m.Active(ctx, hostID, property)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "1200.00", active.FinalAmount.StringFixed(2))

	byToken, err := f.store.FindByToken(ctx, first.MarkupToken)
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.False(t, byToken.IsActive)
}

func TestConcurrentApplyLeavesOneActive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var g errgroup.Group
	for i := 1; i <= 25; i++ {
		pct := decimal.NewFromInt(int64(i))
		g.Go(func() error {
			_, err := f.m.Apply(ctx, ApplyInput{
				OwnerUserID:    hostID,
				Item:           property,
				OriginalAmount: dec("1000"),
				Value:          pct,
				IsPercentage:   true,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	active, err := f.store.Find(ctx, hostID, property, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := f.store.Find(ctx, hostID, property, false)
	require.NoError(t, err)
	assert.Len(t, all, 25)
}

// racingStore reports a lost uniqueness race for the first n units.
type racingStore struct {
	repository.MarkupStore
	mu    sync.Mutex
	n     int
	calls int
}

func (s *racingStore) InTx(ctx context.Context, fn func(tx repository.MarkupStore) error) error {
	s.mu.Lock()
	s.calls++
	lose := s.calls <= s.n
	s.mu.Unlock()
	if lose {
		return repository.ErrDuplicateActive
	}
	return s.MarkupStore.InTx(ctx, fn)
}

func TestApplyRetriesLostRace(t *testing.T) {
	rs := &racingStore{MarkupStore: repository.NewMemoryMarkupRepo(), n: 2}
	f := newFixture(t, rs)

	rec := applyPct(t, f.m, hostID, property, "1000", "10")
	assert.True(t, rec.IsActive)
	assert.Equal(t, 3, rs.calls)
}

func TestApplyGivesUpAfterRetries(t *testing.T) {
	rs := &racingStore{MarkupStore: repository.NewMemoryMarkupRepo(), n: 100}
	f := newFixture(t, rs)

	_, err := f.m.Apply(context.Background(), ApplyInput{
		OwnerUserID: hostID, Item: property, OriginalAmount: dec("1000"), Value: dec("10"), IsPercentage: true,
	})
	require.Error(t, err)
	assert.True(t, IsPersistence(err))
	assert.ErrorIs(t, err, repository.ErrDuplicateActive)
	assert.Equal(t, DefaultApplyRetries+1, rs.calls)
}

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.m.Remove(ctx, hostID, property))
	rows, err := f.store.ListByItem(ctx, property, false)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, f.pub.events)

	rec := applyPct(t, f.m, hostID, property, "1000", "10")
	require.NoError(t, f.m.Remove(ctx, hostID, property))
	require.NoError(t, f.m.Remove(ctx, hostID, property))

	active, err := f.m.Active(ctx, hostID, property)
	require.NoError(t, err)
	assert.Nil(t, active)

	kept, err := f.store.FindByToken(ctx, rec.MarkupToken)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.False(t, kept.IsActive)

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, model.EventMarkupRemoved, f.pub.events[1].Type)
}

func TestFinalPriceFallback(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	price, err := f.m.FinalPriceForUser(ctx, property, dec("500"), guestID)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("500")))

	price, err = f.m.FinalPriceForUser(ctx, property, dec("500"), 0)
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("500")))
}

func TestGenerateLinkAndResolve(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	plain, err := f.m.GenerateLink(ctx, hostID, property)
	require.NoError(t, err)
	assert.Equal(t, baseURL+"/properties/42", plain)

	rec := applyPct(t, f.m, hostID, property, "2000", "15")

	cached, err := f.tokens.Get(ctx, cache.LinkKey(rec.MarkupToken))
	require.NoError(t, err)
	assert.Nil(t, cached, "apply must not write the cache")

	url, err := f.m.GenerateLink(ctx, hostID, property)
	require.NoError(t, err)
	assert.Equal(t, baseURL+"/markup-booking/"+rec.MarkupToken, url)

	link := f.m.ResolveToken(ctx, rec.MarkupToken)
	require.NotNil(t, link)
	assert.True(t, link.FinalAmount.Equal(rec.FinalAmount))
	assert.Equal(t, rec.ID, link.MarkupID)
	assert.Equal(t, hostID, link.UserID)
	assert.Equal(t, property, link.Item())

	assert.Nil(t, f.m.ResolveToken(ctx, "unknown"))
	assert.Nil(t, f.m.ResolveToken(ctx, ""))
}

func TestRemoveDropsCachedLink(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rec := applyPct(t, f.m, hostID, property, "2000", "15")
	_, err := f.m.GenerateLink(ctx, hostID, property)
	require.NoError(t, err)
	require.NotNil(t, f.m.ResolveToken(ctx, rec.MarkupToken))

	require.NoError(t, f.m.Remove(ctx, hostID, property))
	assert.Nil(t, f.m.ResolveToken(ctx, rec.MarkupToken))
}

func TestConfirmOffer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rec := applyPct(t, f.m, hostID, property, "2000", "15")
	_, err := f.m.GenerateLink(ctx, hostID, property)
	require.NoError(t, err)

	live, err := f.m.ConfirmOffer(ctx, rec.MarkupToken)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, live.ID)

	// the cached snapshot survives a re-apply, the confirmation does not
	applyPct(t, f.m, hostID, property, "2000", "20")
	require.NotNil(t, f.m.ResolveToken(ctx, rec.MarkupToken))
	_, err = f.m.ConfirmOffer(ctx, rec.MarkupToken)
	assert.ErrorIs(t, err, ErrOfferStale)

	_, err = f.m.ConfirmOffer(ctx, "")
	assert.ErrorIs(t, err, ErrOfferStale)
	_, err = f.m.ConfirmOffer(ctx, "unknown")
	assert.ErrorIs(t, err, ErrOfferStale)
}

func TestConfirmOfferRejectsRepricedSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rec := applyPct(t, f.m, hostID, property, "2000", "15")
	shown := &model.MarkupLink{
		MarkupID:     rec.ID,
		UserID:       hostID,
		MarkableType: property.Type,
		MarkableID:   property.ID,
		FinalAmount:  dec("2100"),
	}
	require.NoError(t, f.tokens.Put(ctx, cache.LinkKey(rec.MarkupToken), shown, time.Hour))

	_, err := f.m.ConfirmOffer(ctx, rec.MarkupToken)
	assert.ErrorIs(t, err, ErrOfferStale)
}

func TestEvictedLinkFallsBackToStore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rec := applyPct(t, f.m, hostID, property, "2000", "15")
	_, err := f.m.GenerateLink(ctx, hostID, property)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Delete(ctx, cache.LinkKey(rec.MarkupToken)))

	link := f.m.ResolveToken(ctx, rec.MarkupToken)
	require.NotNil(t, link)
	assert.Equal(t, rec.ID, link.MarkupID)
	assert.Equal(t, "2300.00", link.FinalAmount.StringFixed(2))

	cached, err := f.tokens.Get(ctx, cache.LinkKey(rec.MarkupToken))
	require.NoError(t, err)
	require.NotNil(t, cached, "the snapshot is written back")
	assert.True(t, cached.FinalAmount.Equal(rec.FinalAmount))

	require.NoError(t, f.tokens.Delete(ctx, cache.LinkKey(rec.MarkupToken)))
	live, err := f.m.ConfirmOffer(ctx, rec.MarkupToken)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, live.ID)

	// an inactive row never resolves, cached or not
	applyPct(t, f.m, hostID, property, "2000", "20")
	assert.Nil(t, f.m.ResolveToken(ctx, rec.MarkupToken))
	_, err = f.m.ConfirmOffer(ctx, rec.MarkupToken)
	assert.ErrorIs(t, err, ErrOfferStale)
}

func TestApplyRejectsValuesTheColumnsCannotHold(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.m.Apply(ctx, ApplyInput{OwnerUserID: hostID, Item: property, OriginalAmount: dec("1000"), Value: dec("12.345"), IsPercentage: true})
	assert.ErrorIs(t, err, pricing.ErrTooPrecise)
	_, err = f.m.Apply(ctx, ApplyInput{OwnerUserID: hostID, Item: property, OriginalAmount: dec("1000"), Value: dec("1e9"), IsPercentage: true})
	assert.ErrorIs(t, err, pricing.ErrOutOfRange)
	assert.False(t, IsPersistence(err))

	rows, err := f.store.ListByItem(ctx, property, false)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// brokenStore fails every call as if the database were unreachable.
type brokenStore struct{ repository.MarkupStore }

var errConnRefused = errors.New("dial tcp 127.0.0.1:3306: connection refused")

func (brokenStore) Find(context.Context, uint64, model.ItemKey, bool) ([]model.Markup, error) {
	return nil, errConnRefused
}

func (brokenStore) FindByToken(context.Context, string) (*model.Markup, error) {
	return nil, errConnRefused
}

func (brokenStore) InTx(context.Context, func(repository.MarkupStore) error) error {
	return errConnRefused
}

func TestStoreFailuresSurface(t *testing.T) {
	f := newFixture(t, brokenStore{})
	ctx := context.Background()

	_, err := f.m.FinalPriceForUser(ctx, property, dec("500"), hostID)
	require.Error(t, err)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, hostID, pe.OwnerUserID)
	assert.Equal(t, property, pe.Item)
	assert.ErrorIs(t, err, errConnRefused)

	err = f.m.Remove(ctx, hostID, property)
	assert.True(t, IsPersistence(err))

	_, err = f.m.Apply(ctx, ApplyInput{OwnerUserID: hostID, Item: property, OriginalAmount: dec("1"), Value: dec("1")})
	assert.True(t, IsPersistence(err))

	assert.Nil(t, f.m.ResolveToken(ctx, "deadbeef"), "an unreachable store reads as a plain visit")
	assert.Equal(t, 1, f.logs.FilterMessage("load markup by token").Len())
	_, err = f.m.ConfirmOffer(ctx, "deadbeef")
	assert.True(t, IsPersistence(err))

	entries := f.logs.FilterMessage("markup store failure").All()
	require.NotEmpty(t, entries)
	fields := entries[0].ContextMap()
	assert.Equal(t, hostID, fields["owner_user_id"])
	assert.Equal(t, "property", fields["markable_type"])
	assert.Equal(t, uint64(42), fields["markable_id"])
}

func TestPublishFailureDoesNotFailApply(t *testing.T) {
	f := newFixture(t, nil)
	f.pub.err = errors.New("broker down")

	rec := applyPct(t, f.m, hostID, property, "1000", "10")
	assert.NotNil(t, rec)
	assert.Equal(t, 1, f.logs.FilterMessage("publish markup event").Len())
}

// stalledPublisher blocks until the caller gives up.
type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ model.MarkupEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPublishIsBoundedByTimeout(t *testing.T) {
	users := repository.NewMemoryUserRepo(model.User{ID: hostID, Role: model.RoleHost, IsActive: true})
	tokens, err := cache.NewLRUTokenCache(8)
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewManager(repository.NewMemoryMarkupRepo(), tokens, users, Options{
		Publisher:      stalledPublisher{},
		PublishTimeout: 50 * time.Millisecond,
		Logger:         zap.New(core),
	})

	start := time.Now()
	rec := applyPct(t, m, hostID, property, "1000", "10")
	assert.Equal(t, "1100.00", rec.FinalAmount.StringFixed(2))
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, 1, logs.FilterMessage("publish markup event").Len())
	assert.Equal(t, context.DeadlineExceeded.Error(), logs.FilterMessage("publish markup event").All()[0].ContextMap()["error"])
}
