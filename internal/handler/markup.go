package handler

import (
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"

    "github.com/iliyamo/rental-markup/internal/markup"
)

// MarkupHandler exposes the host-facing markup operations on a listing.
type MarkupHandler struct {
    Markups  *markup.Manager
    Listings ListingSource
}

// NewMarkupHandler constructs a MarkupHandler and panics if any dependency is nil.
func NewMarkupHandler(m *markup.Manager, listings ListingSource) *MarkupHandler {
    if m == nil || listings == nil {
        panic("nil dependency passed to NewMarkupHandler")
    }
    return &MarkupHandler{Markups: m, Listings: listings}
}

type applyRequest struct {
    Value        *decimal.Decimal `json:"value"`
    IsPercentage bool             `json:"is_percentage"`
}

// Apply handles POST /v1/listings/:type/:id/markup and makes the posted
// markup the caller's active one on the listing.
func (h *MarkupHandler) Apply(c echo.Context) error {
    if _, err := getUserID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
    }
    l, ok, err := loadListing(c, h.Listings)
    if !ok {
        return err
    }
    var body applyRequest
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
    }
    if body.Value == nil {
        return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "value is required"})
    }
    rec, err := h.Markups.For(l).ApplyMarkup(c.Request().Context(), *body.Value, body.IsPercentage, 0)
    if err != nil {
        return markupError(c, err)
    }
    return c.JSON(http.StatusCreated, rec)
}

// Remove handles DELETE /v1/listings/:type/:id/markup.  Removing a markup
// that does not exist still answers 204.
func (h *MarkupHandler) Remove(c echo.Context) error {
    if _, err := getUserID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
    }
    l, ok, err := loadListing(c, h.Listings)
    if !ok {
        return err
    }
    if err := h.Markups.For(l).RemoveMarkup(c.Request().Context(), 0); err != nil {
        return markupError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Current handles GET /v1/listings/:type/:id/markup.
func (h *MarkupHandler) Current(c echo.Context) error {
    l, ok, err := loadListing(c, h.Listings)
    if !ok {
        return err
    }
    rec, err := h.Markups.For(l).CurrentUserMarkup(c.Request().Context())
    if err != nil {
        return markupError(c, err)
    }
    if rec == nil {
        return c.JSON(http.StatusNotFound, map[string]string{"error": "no active markup"})
    }
    return c.JSON(http.StatusOK, rec)
}

// Link handles GET /v1/listings/:type/:id/markup/link.  Without an active
// markup the plain listing URL is returned.
func (h *MarkupHandler) Link(c echo.Context) error {
    l, ok, err := loadListing(c, h.Listings)
    if !ok {
        return err
    }
    url, err := h.Markups.For(l).GenerateMarkupLink(c.Request().Context(), 0)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not generate link"})
    }
    return c.JSON(http.StatusOK, map[string]string{"url": url})
}

// Price handles GET /v1/listings/:type/:id/price.  owner_id selects whose
// markup to apply; it defaults to the caller.
func (h *MarkupHandler) Price(c echo.Context) error {
    l, ok, err := loadListing(c, h.Listings)
    if !ok {
        return err
    }
    var owner uint64
    if raw := c.QueryParam("owner_id"); raw != "" {
        owner, err = strconv.ParseUint(raw, 10, 64)
        if err != nil {
            return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid owner_id"})
        }
    }
    rec, err := h.Markups.For(l).UserMarkup(c.Request().Context(), owner)
    if err != nil {
        return markupError(c, err)
    }
    price := l.Price
    if rec != nil {
        price = rec.FinalAmount
    }
    return c.JSON(http.StatusOK, map[string]any{
        "price":      price.StringFixed(2),
        "base_price": l.Price.StringFixed(2),
        "marked_up":  rec != nil,
    })
}

// AdminList handles GET /v1/admin/listings/:type/:id/markups.  Use
// ?active=true to restrict the result to active markups.
func (h *MarkupHandler) AdminList(c echo.Context) error {
    l, ok, err := loadListing(c, h.Listings)
    if !ok {
        return err
    }
    capability := h.Markups.For(l)
    activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
    list := capability.Markups
    if activeOnly {
        list = capability.ActiveMarkups
    }
    rows, err := list(c.Request().Context())
    if err != nil {
        return markupError(c, err)
    }
    return c.JSON(http.StatusOK, map[string]any{"items": rows, "count": len(rows)})
}
