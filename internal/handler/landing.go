package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/rental-markup/internal/logger"
    "github.com/iliyamo/rental-markup/internal/markup"
    "github.com/iliyamo/rental-markup/internal/model"
    "github.com/iliyamo/rental-markup/internal/repository"
)

// LandingHandler serves the pages a shared markup link points at.
type LandingHandler struct {
    Markups  *markup.Manager
    Listings ListingSource
}

// NewLandingHandler constructs a LandingHandler and panics if any dependency is nil.
func NewLandingHandler(m *markup.Manager, listings ListingSource) *LandingHandler {
    if m == nil || listings == nil {
        panic("nil dependency passed to NewLandingHandler")
    }
    return &LandingHandler{Markups: m, Listings: listings}
}

type offerView struct {
    Markup      *model.MarkupLink `json:"markup"`
    Listing     *model.Listing    `json:"listing,omitempty"`
    ListingURL  string            `json:"listing_url,omitempty"`
    FinalAmount string            `json:"final_amount,omitempty"`
}

// Show handles GET /markup-booking/:token.  A token that is unknown or whose
// markup is no longer active renders the non-markup view rather than an
// error.
func (h *LandingHandler) Show(c echo.Context) error {
    ctx := c.Request().Context()
    link := h.Markups.ResolveToken(ctx, c.Param("token"))
    if link == nil {
        return c.JSON(http.StatusOK, offerView{})
    }
    l, err := h.Listings.GetByKey(ctx, link.Item())
    if errors.Is(err, repository.ErrNotFound) {
        // listing deleted after the link was shared
        return c.JSON(http.StatusOK, offerView{})
    }
    if err != nil {
        logger.ErrorCtx(ctx, err, zap.String("op", "landing listing"), zap.Uint64("markup_id", link.MarkupID))
        return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
    }
    return c.JSON(http.StatusOK, offerView{
        Markup:      link,
        Listing:     &l,
        ListingURL:  h.Markups.Links().ItemURL(link.Item()),
        FinalAmount: link.FinalAmount.StringFixed(2),
    })
}

// Confirm handles POST /markup-booking/:token/confirm.  The cached offer is
// checked against the live markup before the amount is handed to checkout;
// a replaced, removed or repriced markup answers 409.
func (h *LandingHandler) Confirm(c echo.Context) error {
    if _, err := getUserID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
    }
    rec, err := h.Markups.ConfirmOffer(c.Request().Context(), c.Param("token"))
    if err != nil {
        return markupError(c, err)
    }
    return c.JSON(http.StatusOK, map[string]any{
        "markup_id":     rec.ID,
        "markable_type": rec.MarkableType,
        "markable_id":   rec.MarkableID,
        "final_amount":  rec.FinalAmount.StringFixed(2),
    })
}
