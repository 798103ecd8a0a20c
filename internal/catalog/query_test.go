package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
)

var base = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

func fixtures() []domain.Product {
	return []domain.Product{
		{ID: "p1", Name: "Colar Pérolas", Description: "Pérolas cultivadas", PriceCents: 180000, Category: domain.CategoryNecklaces, CreatedAt: base},
		{ID: "p2", Name: "Anel Solitário", Description: "Ouro 18k com diamante", PriceCents: 350000, Category: domain.CategoryRings, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "p3", Name: "brinco Argola", Description: "Prata 925", PriceCents: 45000, Category: domain.CategoryEarrings, CreatedAt: base.Add(time.Hour)},
		{ID: "p4", Name: "Aliança Clássica", Description: "Par de alianças", PriceCents: 180000, Category: domain.CategoryRings, CreatedAt: base.Add(3 * time.Hour)},
	}
}

func ids(products []domain.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestApplySearchIsCaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()

	products := []domain.Product{
		{ID: "a", Name: "Anel Solitário"},
		{ID: "b", Name: "Colar Pérolas"},
	}
	require.Equal(t, []string{"a"}, ids(Apply(products, Query{Search: "anel"})))
	require.Equal(t, []string{"a"}, ids(Apply(products, Query{Search: "  ANEL "})))
}

func TestApplySearchCoversDescriptionAndCategory(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"p2"}, ids(Apply(fixtures(), Query{Search: "DIAMANTE"})))
	require.Equal(t, []string{"p3"}, ids(Apply(fixtures(), Query{Search: "brincos"})))
	require.Equal(t, []string{"p2", "p4"}, ids(Apply(fixtures(), Query{Search: "anéis"})))
}

func TestApplyCategoryAndPriceFilters(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"p2", "p4"}, ids(Apply(fixtures(), Query{Category: domain.CategoryRings})))
	require.Len(t, Apply(fixtures(), Query{Category: "all"}), 4)

	lo, hi := int64(100000), int64(200000)
	require.Equal(t, []string{"p1", "p4"}, ids(Apply(fixtures(), Query{MinPrice: &lo, MaxPrice: &hi})))
}

func TestApplySorts(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		SortName:      {"p4", "p2", "p3", "p1"},
		SortPriceAsc:  {"p3", "p1", "p4", "p2"},
		"price-low":   {"p3", "p1", "p4", "p2"},
		SortPriceDesc: {"p2", "p1", "p4", "p3"},
		SortNewest:    {"p4", "p2", "p3", "p1"},
		SortRelevance: {"p1", "p2", "p3", "p4"},
		"bogus":       {"p1", "p2", "p3", "p4"},
	}
	for sort, want := range cases {
		require.Equal(t, want, ids(Apply(fixtures(), Query{Sort: sort})), sort)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	input := fixtures()
	_ = Apply(input, Query{Sort: SortPriceDesc})
	require.Equal(t, fixtures(), input)
}
