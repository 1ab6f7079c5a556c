package model

import "github.com/shopspring/decimal"

// Listing is the pricing view of a sellable item (a property, car, service
// or food item).  Only the fields needed to price the item are loaded; the
// rest of each catalogue table is owned by other parts of the application.
//
// Fields:
//  Type  – markable tag, decides which table the row came from.
//  ID    – primary key within that table.
//  Title – display name.
//  Price – base price before any markup.
type Listing struct {
    Type  MarkableType    `json:"type"`
    ID    uint64          `json:"id"`
    Title string          `json:"title"`
    Price decimal.Decimal `json:"price"`
}

// MarkableType, MarkableID and BasePrice let a Listing be priced through the
// markup capability.
func (l Listing) MarkableType() MarkableType { return l.Type }
func (l Listing) MarkableID() uint64         { return l.ID }
func (l Listing) BasePrice() decimal.Decimal { return l.Price }

// Key returns the composite key of the listing.
func (l Listing) Key() ItemKey { return ItemKey{Type: l.Type, ID: l.ID} }
