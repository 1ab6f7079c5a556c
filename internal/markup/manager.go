// Package markup lets hosts put their own price on a listing and share it.
//
// A markup is owned by one host and targets one markable item. The Manager
// keeps at most one active markup per (host, item) pair: applying a new one
// deactivates the previous row in the same transaction instead of deleting
// it, so the history stays queryable. Shareable links are written to the
// token cache by GenerateLink and are only a snapshot. A token missing from
// the cache is resolved from the markup rows, and ConfirmOffer re-checks
// the live row before money changes hands.
package markup

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/rental-markup/internal/cache"
	"github.com/iliyamo/rental-markup/internal/model"
	"github.com/iliyamo/rental-markup/internal/pricing"
	"github.com/iliyamo/rental-markup/internal/repository"
)

// DefaultLinkTTL is how long a shared markup link stays resolvable.
const DefaultLinkTTL = 30 * 24 * time.Hour

// DefaultApplyRetries bounds how many times Apply reruns its transaction
// after losing a race for the same tuple.
const DefaultApplyRetries = 3

// DefaultPublishTimeout caps how long Apply and Remove wait on the
// Publisher once the markup is committed.
const DefaultPublishTimeout = 5 * time.Second

// Authorizer answers the "can add markup" capability question for a user.
type Authorizer interface {
	CanAddMarkup(ctx context.Context, userID uint64) (bool, error)
}

// Publisher delivers markup events to other services.
type Publisher interface {
	Publish(ctx context.Context, ev model.MarkupEvent) error
}

// Options tunes a Manager. Zero values fall back to defaults.
type Options struct {
	Links        LinkBuilder
	LinkTTL      time.Duration
	ApplyRetries int
	Publisher    Publisher
	// PublishTimeout bounds each Publisher call.
	PublishTimeout time.Duration
	Logger         *zap.Logger
	NewToken       func() (string, error)
	Now            func() time.Time
}

// Manager orchestrates apply, remove and price lookups on top of a
// MarkupStore and a TokenCache. It is safe for concurrent use.
type Manager struct {
	store    repository.MarkupStore
	tokens   cache.TokenCache
	auth     Authorizer
	links    LinkBuilder
	pub      Publisher
	pubWait  time.Duration
	log      *zap.Logger
	linkTTL  time.Duration
	retries  int
	newToken func() (string, error)
	now      func() time.Time
}

// NewManager wires a Manager. It panics if a required dependency is nil.
func NewManager(store repository.MarkupStore, tokens cache.TokenCache, auth Authorizer, opts Options) *Manager {
	if store == nil || tokens == nil || auth == nil {
		panic("nil dependency passed to markup.NewManager")
	}
	m := &Manager{
		store:    store,
		tokens:   tokens,
		auth:     auth,
		links:    opts.Links,
		pub:      opts.Publisher,
		pubWait:  opts.PublishTimeout,
		log:      opts.Logger,
		linkTTL:  opts.LinkTTL,
		retries:  opts.ApplyRetries,
		newToken: opts.NewToken,
		now:      opts.Now,
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.linkTTL <= 0 {
		m.linkTTL = DefaultLinkTTL
	}
	if m.retries <= 0 {
		m.retries = DefaultApplyRetries
	}
	if m.pubWait <= 0 {
		m.pubWait = DefaultPublishTimeout
	}
	if m.newToken == nil {
		m.newToken = repository.NewMarkupToken
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Links returns the URL builder used for shareable links.
func (m *Manager) Links() LinkBuilder { return m.links }

// ApplyInput describes a markup a host wants to set on an item.
type ApplyInput struct {
	OwnerUserID    uint64
	Item           model.ItemKey
	OriginalAmount decimal.Decimal
	Value          decimal.Decimal
	IsPercentage   bool
}

// Apply makes a new markup the active one for (owner, item). Any markup
// that was active for the pair is deactivated in the same transaction.
// The token cache is not touched.
func (m *Manager) Apply(ctx context.Context, in ApplyInput) (*model.Markup, error) {
	if err := validItem(in.Item); err != nil {
		return nil, err
	}
	ok, err := m.auth.CanAddMarkup(ctx, in.OwnerUserID)
	if err != nil {
		return nil, m.persistenceError(ctx, "authorize", in.OwnerUserID, in.Item, err)
	}
	if !ok {
		return nil, ErrNotHost
	}

	spec := pricing.Spec{Value: in.Value, IsPercentage: in.IsPercentage}
	pct, amt := spec.Split()
	final, err := pricing.ComputeFinalAmount(in.OriginalAmount, pct, amt)
	if err != nil {
		return nil, err
	}

	var rec model.Markup
	for attempt := 0; ; attempt++ {
		token, err := m.newToken()
		if err != nil {
			return nil, err
		}
		rec = model.Markup{
			OwnerUserID:      in.OwnerUserID,
			MarkableType:     in.Item.Type,
			MarkableID:       in.Item.ID,
			MarkupPercentage: pct,
			MarkupAmount:     amt,
			OriginalAmount:   in.OriginalAmount,
			FinalAmount:      final,
			IsActive:         true,
			MarkupToken:      token,
		}
		err = m.store.InTx(ctx, func(tx repository.MarkupStore) error {
			if _, err := deactivate(ctx, tx, in.OwnerUserID, in.Item); err != nil {
				return err
			}
			return tx.Insert(ctx, &rec)
		})
		if err == nil {
			break
		}
		if repository.Retryable(err) && attempt < m.retries && ctx.Err() == nil {
			m.log.Debug("retrying markup apply",
				zap.Int("attempt", attempt+1),
				zap.Uint64("owner_user_id", in.OwnerUserID),
				zap.String("markable_type", string(in.Item.Type)),
				zap.Uint64("markable_id", in.Item.ID),
				zap.Error(err))
			continue
		}
		return nil, m.persistenceError(ctx, "apply", in.OwnerUserID, in.Item, err)
	}

	m.publish(ctx, model.EventMarkupApplied, rec)
	return &rec, nil
}

// Remove deactivates the active markup of owner on item. It is a no-op when
// there is none. The cached link of the removed markup is dropped so the
// shared URL stops resolving.
func (m *Manager) Remove(ctx context.Context, owner uint64, item model.ItemKey) error {
	if err := validItem(item); err != nil {
		return err
	}
	var removed []model.Markup
	err := m.store.InTx(ctx, func(tx repository.MarkupStore) error {
		var err error
		removed, err = deactivate(ctx, tx, owner, item)
		return err
	})
	if err != nil {
		return m.persistenceError(ctx, "remove", owner, item, err)
	}
	for _, rec := range removed {
		if err := m.tokens.Delete(ctx, cache.LinkKey(rec.MarkupToken)); err != nil {
			m.log.Warn("drop markup link", zap.Uint64("markup_id", rec.ID), zap.Error(err))
		}
		m.publish(ctx, model.EventMarkupRemoved, rec)
	}
	return nil
}

// Active returns the active markup of owner on item, or nil.
func (m *Manager) Active(ctx context.Context, owner uint64, item model.ItemKey) (*model.Markup, error) {
	if owner == 0 {
		return nil, nil
	}
	rows, err := m.store.Find(ctx, owner, item, true)
	if err != nil {
		return nil, m.persistenceError(ctx, "active", owner, item, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// HasMarkup reports whether owner has an active markup on item.
func (m *Manager) HasMarkup(ctx context.Context, owner uint64, item model.ItemKey) (bool, error) {
	rec, err := m.Active(ctx, owner, item)
	return rec != nil, err
}

// FinalPriceForUser returns the price userID's markup sets on item, or base
// when userID has no active markup there.
func (m *Manager) FinalPriceForUser(ctx context.Context, item model.ItemKey, base decimal.Decimal, userID uint64) (decimal.Decimal, error) {
	rec, err := m.Active(ctx, userID, item)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if rec == nil {
		return base, nil
	}
	return rec.FinalAmount, nil
}

// ListForItem returns every markup on item, all owners, all history.
func (m *Manager) ListForItem(ctx context.Context, item model.ItemKey) ([]model.Markup, error) {
	rows, err := m.store.ListByItem(ctx, item, false)
	if err != nil {
		return nil, m.persistenceError(ctx, "list", 0, item, err)
	}
	return rows, nil
}

// ListActiveForItem returns the active markups of every owner on item.
func (m *Manager) ListActiveForItem(ctx context.Context, item model.ItemKey) ([]model.Markup, error) {
	rows, err := m.store.ListByItem(ctx, item, true)
	if err != nil {
		return nil, m.persistenceError(ctx, "list_active", 0, item, err)
	}
	return rows, nil
}

// GenerateLink returns a shareable URL for owner's markup on item. Without
// an active markup the plain item URL is returned. With one, the link
// snapshot is (re)written to the token cache for the configured TTL.
func (m *Manager) GenerateLink(ctx context.Context, owner uint64, item model.ItemKey) (string, error) {
	rec, err := m.Active(ctx, owner, item)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return m.links.ItemURL(item), nil
	}
	link := linkFor(rec)
	if err := m.tokens.Put(ctx, cache.LinkKey(rec.MarkupToken), link, m.linkTTL); err != nil {
		m.log.Error("write markup link",
			zap.Uint64("markup_id", rec.ID),
			zap.Uint64("owner_user_id", owner),
			zap.String("markable_type", string(item.Type)),
			zap.Uint64("markable_id", item.ID),
			zap.Error(err))
		return "", err
	}
	return m.links.MarkupURL(item, rec.MarkupToken), nil
}

// ResolveToken returns the offer behind token, or nil when the token is
// unknown or its markup is no longer active. The token cache is read
// first; on a miss the markup row is loaded by token and, when still
// active, its snapshot is written back. Read failures are logged and
// reported as a miss so the visit proceeds as a regular one.
func (m *Manager) ResolveToken(ctx context.Context, token string) *model.MarkupLink {
	if token == "" {
		return nil
	}
	link, err := m.tokens.Get(ctx, cache.LinkKey(token))
	if err != nil {
		m.log.Warn("read markup link", zap.Error(err))
	}
	if link != nil {
		return link
	}
	rec, err := m.store.FindByToken(ctx, token)
	if err != nil {
		m.log.Warn("load markup by token", zap.Error(err))
		return nil
	}
	if rec == nil || !rec.IsActive {
		return nil
	}
	link = linkFor(rec)
	if err := m.tokens.Put(ctx, cache.LinkKey(token), link, m.linkTTL); err != nil {
		m.log.Warn("rewrite markup link", zap.Uint64("markup_id", rec.ID), zap.Error(err))
	}
	return link
}

// ConfirmOffer checks the offer behind token against the store before it
// is charged. It returns the markup when it is still active and still
// priced as the cached snapshot says, and ErrOfferStale when the markup
// was replaced, removed or repriced, or the token is unknown.
func (m *Manager) ConfirmOffer(ctx context.Context, token string) (*model.Markup, error) {
	if token == "" {
		return nil, ErrOfferStale
	}
	rec, err := m.store.FindByToken(ctx, token)
	if err != nil {
		return nil, m.persistenceError(ctx, "confirm", 0, model.ItemKey{}, err)
	}
	if rec == nil || !rec.IsActive {
		return nil, ErrOfferStale
	}
	link, err := m.tokens.Get(ctx, cache.LinkKey(token))
	if err != nil {
		m.log.Warn("read markup link", zap.Error(err))
	}
	if link != nil && (link.MarkupID != rec.ID || !link.FinalAmount.Equal(rec.FinalAmount)) {
		return nil, ErrOfferStale
	}
	return rec, nil
}

// linkFor builds the cache snapshot of rec.
func linkFor(rec *model.Markup) *model.MarkupLink {
	return &model.MarkupLink{
		MarkupID:     rec.ID,
		UserID:       rec.OwnerUserID,
		MarkableType: rec.MarkableType,
		MarkableID:   rec.MarkableID,
		FinalAmount:  rec.FinalAmount,
	}
}

// deactivate flips every active markup of owner on item to inactive and
// returns the rows it changed.
func deactivate(ctx context.Context, tx repository.MarkupStore, owner uint64, item model.ItemKey) ([]model.Markup, error) {
	active, err := tx.Find(ctx, owner, item, true)
	if err != nil {
		return nil, err
	}
	for i := range active {
		active[i].IsActive = false
		if err := tx.Update(ctx, &active[i]); err != nil {
			return nil, err
		}
	}
	return active, nil
}

func validItem(item model.ItemKey) error {
	if !item.Type.Valid() || item.ID == 0 {
		return ErrInvalidItem
	}
	return nil
}

func (m *Manager) persistenceError(ctx context.Context, op string, owner uint64, item model.ItemKey, err error) error {
	m.log.Error("markup store failure",
		zap.String("op", op),
		zap.Uint64("owner_user_id", owner),
		zap.String("markable_type", string(item.Type)),
		zap.Uint64("markable_id", item.ID),
		zap.Error(err))
	return &PersistenceError{Op: op, OwnerUserID: owner, Item: item, Err: err}
}

func (m *Manager) publish(ctx context.Context, typ string, rec model.Markup) {
	if m.pub == nil {
		return
	}
	ev := model.MarkupEvent{
		Type:         typ,
		MarkupID:     rec.ID,
		OwnerUserID:  rec.OwnerUserID,
		MarkableType: rec.MarkableType,
		MarkableID:   rec.MarkableID,
		FinalAmount:  rec.FinalAmount,
		OccurredAt:   m.now().UTC().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(ctx, m.pubWait)
	defer cancel()
	if err := m.pub.Publish(ctx, ev); err != nil {
		m.log.Warn("publish markup event", zap.String("type", typ), zap.Uint64("markup_id", rec.ID), zap.Error(err))
	}
}
