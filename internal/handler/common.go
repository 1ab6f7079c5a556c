package handler // handler defines http handlers

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/rental-markup/internal/identity"
    "github.com/iliyamo/rental-markup/internal/logger"
    "github.com/iliyamo/rental-markup/internal/markup"
    "github.com/iliyamo/rental-markup/internal/model"
    "github.com/iliyamo/rental-markup/internal/pricing"
    "github.com/iliyamo/rental-markup/internal/repository"
)

// ListingSource loads the pricing view of a catalogue item.
type ListingSource interface {
    GetByKey(ctx context.Context, item model.ItemKey) (model.Listing, error)
}

// getUserID returns the authenticated user attached by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
    if p, ok := identity.FromContext(c.Request().Context()); ok {
        return p.UserID, nil
    }
    return 0, errors.New("invalid user_id in context")
}

// itemFromPath reads :type and :id.  The type is matched case-insensitively.
func itemFromPath(c echo.Context) (model.ItemKey, bool) {
    t := model.MarkableType(strings.ToLower(strings.TrimSpace(c.Param("type"))))
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 || !t.Valid() {
        return model.ItemKey{}, false
    }
    return model.ItemKey{Type: t, ID: id}, true
}

// loadListing resolves the listing named by the path, writing the error
// response itself when it cannot.
func loadListing(c echo.Context, src ListingSource) (model.Listing, bool, error) {
    item, ok := itemFromPath(c)
    if !ok {
        return model.Listing{}, false, c.JSON(http.StatusNotFound, map[string]string{"error": "listing not found"})
    }
    l, err := src.GetByKey(c.Request().Context(), item)
    if errors.Is(err, repository.ErrNotFound) {
        return model.Listing{}, false, c.JSON(http.StatusNotFound, map[string]string{"error": "listing not found"})
    }
    if err != nil {
        return model.Listing{}, false, c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
    }
    return l, true, nil
}

// markupError translates errors from the markup engine into responses.
func markupError(c echo.Context, err error) error {
    switch {
    case errors.Is(err, markup.ErrNotHost):
        return c.JSON(http.StatusForbidden, map[string]string{"error": "Only hosts can add markups"})
    case errors.Is(err, pricing.ErrInvalidMarkup), errors.Is(err, pricing.ErrNegativeAmount),
        errors.Is(err, pricing.ErrTooPrecise), errors.Is(err, pricing.ErrOutOfRange),
        errors.Is(err, markup.ErrInvalidItem):
        return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
    case errors.Is(err, markup.ErrOfferStale):
        return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
    case markup.IsPersistence(err):
        // details are logged by the manager
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not process markup"})
    default:
        logger.ErrorCtx(c.Request().Context(), err, zap.String("path", c.Path()))
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not process markup"})
    }
}
