package markup

import (
	"errors"
	"fmt"

	"github.com/iliyamo/rental-markup/internal/model"
)

var (
	// ErrNotHost is returned by Apply when the owner lacks the capability
	// to add markups. No record is created.
	ErrNotHost = errors.New("only hosts can add markups")

	// ErrOfferStale is returned by ConfirmOffer when a cached offer no longer
	// matches the live active markup.
	ErrOfferStale = errors.New("markup offer is no longer valid")

	// ErrInvalidItem is returned for an unknown markable type or a zero id.
	ErrInvalidItem = errors.New("invalid markable item")
)

// PersistenceError wraps a store failure together with the tuple the
// operation was working on. It is never used for a missing markup.
type PersistenceError struct {
	Op          string
	OwnerUserID uint64
	Item        model.ItemKey
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("markup %s (owner=%d %s#%d): %v", e.Op, e.OwnerUserID, e.Item.Type, e.Item.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err carries a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
