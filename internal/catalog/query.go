// Package catalog projects product lists for display: search, filter and sort.
package catalog

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
)

// Sort keys accepted by Apply.
const (
	SortRelevance = "relevance"
	SortName      = "name"
	SortPriceAsc  = "price-asc"
	SortPriceDesc = "price-desc"
	SortNewest    = "newest"
)

var sortAliases = map[string]string{
	"price-low":  SortPriceAsc,
	"price-high": SortPriceDesc,
}

// Query describes a listing request. Zero values disable the matching filter.
type Query struct {
	Search   string
	Category domain.Category
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

// NormaliseSort maps aliases onto the canonical sort keys. Unknown keys pass through unchanged.
func NormaliseSort(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := sortAliases[key]; ok {
		return alias
	}
	return key
}

// Apply filters and orders products. The input slice is never modified and the sort is stable,
// so products comparing equal keep their input order. Unknown sort keys keep input order.
func Apply(products []domain.Product, q Query) []domain.Product {
	fold := cases.Fold()
	term := fold.String(strings.TrimSpace(q.Search))
	category := domain.Category(strings.ToLower(strings.TrimSpace(string(q.Category))))
	if category == "all" {
		category = ""
	}

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if category != "" && p.Category != category {
			continue
		}
		if q.MinPrice != nil && p.PriceCents < *q.MinPrice {
			continue
		}
		if q.MaxPrice != nil && p.PriceCents > *q.MaxPrice {
			continue
		}
		if term != "" && !matches(fold, p, term) {
			continue
		}
		out = append(out, p)
	}

	switch NormaliseSort(q.Sort) {
	case SortName:
		coll := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
		slices.SortStableFunc(out, func(a, b domain.Product) int {
			return coll.CompareString(a.Name, b.Name)
		})
	case SortPriceAsc:
		slices.SortStableFunc(out, func(a, b domain.Product) int {
			return cmp.Compare(a.PriceCents, b.PriceCents)
		})
	case SortPriceDesc:
		slices.SortStableFunc(out, func(a, b domain.Product) int {
			return cmp.Compare(b.PriceCents, a.PriceCents)
		})
	case SortNewest:
		slices.SortStableFunc(out, func(a, b domain.Product) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
	return out
}

func matches(fold cases.Caser, p domain.Product, term string) bool {
	for _, field := range []string{p.Name, p.Description, string(p.Category), p.Category.Label()} {
		if strings.Contains(fold.String(field), term) {
			return true
		}
	}
	return false
}
