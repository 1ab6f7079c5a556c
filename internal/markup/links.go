package markup

import (
	"strconv"
	"strings"

	"github.com/iliyamo/rental-markup/internal/model"
)

// LinkBuilder renders the public URLs of items and markup offers. Shared
// offers look like <base>/<prefix>/<token> where prefix is chosen per
// markable type; plain items look like <base>/<items path>/<id>.
type LinkBuilder struct {
	BaseURL  string
	Prefixes map[model.MarkableType]string // token route prefix per type
	Items    map[model.MarkableType]string // item page path per type
}

// DefaultLinkBuilder uses the landing route /markup-booking for every type.
func DefaultLinkBuilder(baseURL string) LinkBuilder {
	return LinkBuilder{
		BaseURL: baseURL,
		Prefixes: map[model.MarkableType]string{
			model.MarkableProperty: "markup-booking",
			model.MarkableCar:      "markup-booking",
			model.MarkableService:  "markup-booking",
			model.MarkableFood:     "markup-booking",
		},
		Items: map[model.MarkableType]string{
			model.MarkableProperty: "properties",
			model.MarkableCar:      "cars",
			model.MarkableService:  "services",
			model.MarkableFood:     "foods",
		},
	}
}

// ItemURL returns the plain, non-markup URL of item.
func (b LinkBuilder) ItemURL(item model.ItemKey) string {
	path, ok := b.Items[item.Type]
	if !ok {
		path = string(item.Type)
	}
	return b.join(path, strconv.FormatUint(item.ID, 10))
}

// MarkupURL returns the shareable URL embedding token.
func (b LinkBuilder) MarkupURL(item model.ItemKey, token string) string {
	prefix, ok := b.Prefixes[item.Type]
	if !ok {
		prefix = "markup-booking"
	}
	return b.join(prefix, token)
}

func (b LinkBuilder) join(parts ...string) string {
	base := strings.TrimRight(b.BaseURL, "/")
	for _, p := range parts {
		base += "/" + strings.Trim(p, "/")
	}
	return base
}
