package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// MarkableType tags the kind of sellable entity a markup refers to.  The
// pair (MarkableType, MarkableID) is treated as an opaque composite key by
// the persistence layer.
type MarkableType string

const (
    MarkableProperty MarkableType = "property"
    MarkableCar      MarkableType = "car"
    MarkableService  MarkableType = "service"
    MarkableFood     MarkableType = "food"
)

// MarkableTypes lists every supported tag in a stable order.
var MarkableTypes = []MarkableType{MarkableProperty, MarkableCar, MarkableService, MarkableFood}

// Valid reports whether t is one of the supported tags.
func (t MarkableType) Valid() bool {
    for _, k := range MarkableTypes {
        if k == t {
            return true
        }
    }
    return false
}

// ItemKey identifies one markable item.
type ItemKey struct {
    Type MarkableType
    ID   uint64
}

// Markup represents one pricing override a host has defined for one
// markable item.  At most one row per (OwnerUserID, MarkableType,
// MarkableID) has IsActive set; older rows are kept with IsActive=false.
//
// Fields:
//  ID               – primary key identifier.
//  OwnerUserID      – host that defined the markup.
//  MarkableType     – tag of the priced entity.
//  MarkableID       – identifier of the priced entity.
//  MarkupPercentage – percentage markup (exclusive with MarkupAmount).
//  MarkupAmount     – flat markup (exclusive with MarkupPercentage).
//  OriginalAmount   – base price snapshot at creation time.
//  FinalAmount      – computed price, persisted for reads.
//  IsActive         – whether this is the current markup for the tuple.
//  MarkupToken      – opaque token used in shareable links.
type Markup struct {
    ID               uint64              `json:"id"`                // markups.id
    OwnerUserID      uint64              `json:"owner_user_id"`     // markups.owner_user_id
    MarkableType     MarkableType        `json:"markable_type"`     // markups.markable_type
    MarkableID       uint64              `json:"markable_id"`       // markups.markable_id
    MarkupPercentage decimal.NullDecimal `json:"markup_percentage"` // markups.markup_percentage (nullable)
    MarkupAmount     decimal.NullDecimal `json:"markup_amount"`     // markups.markup_amount (nullable)
    OriginalAmount   decimal.Decimal     `json:"original_amount"`   // markups.original_amount
    FinalAmount      decimal.Decimal     `json:"final_amount"`      // markups.final_amount
    IsActive         bool                `json:"is_active"`         // markups.is_active
    MarkupToken      string              `json:"markup_token"`      // markups.markup_token
    CreatedAt        time.Time           `json:"created_at"`        // markups.created_at
    UpdatedAt        time.Time           `json:"updated_at"`        // markups.updated_at
}

// Item returns the composite key of the priced entity.
func (m Markup) Item() ItemKey { return ItemKey{Type: m.MarkableType, ID: m.MarkableID} }

// MarkupLink is the denormalised payload stored in the token cache under
// markup_link_{token}.  It is a snapshot of a Markup and never the source of
// truth.
type MarkupLink struct {
    MarkupID     uint64          `json:"markup_id"`
    UserID       uint64          `json:"user_id"`
    MarkableType MarkableType    `json:"markable_type"`
    MarkableID   uint64          `json:"markable_id"`
    FinalAmount  decimal.Decimal `json:"final_amount"`
}

// Item returns the composite key the link points at.
func (l MarkupLink) Item() ItemKey { return ItemKey{Type: l.MarkableType, ID: l.MarkableID} }

// Markup event types published after a committed change.
const (
    EventMarkupApplied = "markup.applied"
    EventMarkupRemoved = "markup.removed"
)

// MarkupEvent is published to the message broker whenever a markup is
// applied or removed so downstream consumers can log or build analytics
// without reading the primary database.
type MarkupEvent struct {
    Type         string          `json:"type"`
    MarkupID     uint64          `json:"markup_id"`
    OwnerUserID  uint64          `json:"owner_user_id"`
    MarkableType MarkableType    `json:"markable_type"`
    MarkableID   uint64          `json:"markable_id"`
    FinalAmount  decimal.Decimal `json:"final_amount"`
    OccurredAt   string          `json:"occurred_at"`
}
