package markup

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/rental-markup/internal/identity"
	"github.com/iliyamo/rental-markup/internal/model"
)

// Markable is implemented by every sellable entity that supports
// host markups. The entity supplies its type tag, id and base price; all
// markup behaviour is delegated to a Manager through Capability.
type Markable interface {
	MarkableType() model.MarkableType
	MarkableID() uint64
	BasePrice() decimal.Decimal
}

// Capability binds a Markable to a Manager. A user argument of 0 means the
// acting user carried by ctx (see package identity).
type Capability struct {
	m    *Manager
	item Markable
}

// For returns the markup capability of item.
func (m *Manager) For(item Markable) Capability { return Capability{m: m, item: item} }

func (c Capability) key() model.ItemKey {
	return model.ItemKey{Type: c.item.MarkableType(), ID: c.item.MarkableID()}
}

func userOrActing(ctx context.Context, userID uint64) uint64 {
	if userID != 0 {
		return userID
	}
	return identity.UserID(ctx)
}

// Markups returns every markup on the item, all owners and all history.
func (c Capability) Markups(ctx context.Context) ([]model.Markup, error) {
	return c.m.ListForItem(ctx, c.key())
}

// ActiveMarkups returns the active markups of every owner on the item.
func (c Capability) ActiveMarkups(ctx context.Context) ([]model.Markup, error) {
	return c.m.ListActiveForItem(ctx, c.key())
}

// CurrentUserMarkup returns the acting user's active markup, or nil when
// there is no acting user or no markup.
func (c Capability) CurrentUserMarkup(ctx context.Context) (*model.Markup, error) {
	uid := identity.UserID(ctx)
	if uid == 0 {
		return nil, nil
	}
	return c.m.Active(ctx, uid, c.key())
}

// UserMarkup returns userID's active markup, or nil.
func (c Capability) UserMarkup(ctx context.Context, userID uint64) (*model.Markup, error) {
	return c.m.Active(ctx, userOrActing(ctx, userID), c.key())
}

// ApplyMarkup sets owner's markup on the item, priced from its base price.
func (c Capability) ApplyMarkup(ctx context.Context, value decimal.Decimal, isPercentage bool, owner uint64) (*model.Markup, error) {
	return c.m.Apply(ctx, ApplyInput{
		OwnerUserID:    userOrActing(ctx, owner),
		Item:           c.key(),
		OriginalAmount: c.item.BasePrice(),
		Value:          value,
		IsPercentage:   isPercentage,
	})
}

// RemoveMarkup deactivates owner's markup on the item.
func (c Capability) RemoveMarkup(ctx context.Context, owner uint64) error {
	return c.m.Remove(ctx, userOrActing(ctx, owner), c.key())
}

// FinalPriceForUser returns userID's marked-up price or the base price.
func (c Capability) FinalPriceForUser(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	return c.m.FinalPriceForUser(ctx, c.key(), c.item.BasePrice(), userOrActing(ctx, userID))
}

// GenerateMarkupLink returns the shareable URL for userID's markup.
func (c Capability) GenerateMarkupLink(ctx context.Context, userID uint64) (string, error) {
	return c.m.GenerateLink(ctx, userOrActing(ctx, userID), c.key())
}

// UserHasMarkup reports whether userID has an active markup on the item.
func (c Capability) UserHasMarkup(ctx context.Context, userID uint64) (bool, error) {
	return c.m.HasMarkup(ctx, userOrActing(ctx, userID), c.key())
}
