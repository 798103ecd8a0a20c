package cart

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
)

var (
	ring     = domain.ProductSnapshot{ID: "anel-1", Name: "Anel Solitário", PriceCents: 350000, Category: domain.CategoryRings}
	necklace = domain.ProductSnapshot{ID: "colar-1", Name: "Colar Pérolas", PriceCents: 180000, Category: domain.CategoryNecklaces}
)

func requireConsistent(t *testing.T, state State) {
	t.Helper()
	var total int64
	var count int
	seen := map[string]bool{}
	for _, item := range state.Items {
		require.GreaterOrEqual(t, item.Quantity, 1)
		require.False(t, seen[item.Product.ID], "duplicate line %s", item.Product.ID)
		seen[item.Product.ID] = true
		total += item.Product.PriceCents * int64(item.Quantity)
		count += item.Quantity
	}
	require.Equal(t, total, state.Total)
	require.Equal(t, count, state.ItemCount)
}

func TestReduceScenario(t *testing.T) {
	t.Parallel()

	state := Empty()
	state = Reduce(state, AddItem{Product: ring, Quantity: 1})
	state = Reduce(state, AddItem{Product: necklace, Quantity: 2})
	requireConsistent(t, state)
	require.Equal(t, 3, state.ItemCount)
	require.Equal(t, int64(710000), state.Total)

	state = Reduce(state, UpdateQuantity{ProductID: ring.ID, Quantity: 0})
	requireConsistent(t, state)
	require.Equal(t, 2, state.ItemCount)
	require.Equal(t, int64(360000), state.Total)
	require.Len(t, state.Items, 1)
	require.Equal(t, necklace.ID, state.Items[0].Product.ID)
}

func TestReduceAddMergesExistingLine(t *testing.T) {
	t.Parallel()

	state := Reduce(Empty(), AddItem{Product: ring, Quantity: 2})
	state = Reduce(state, AddItem{Product: ring, Quantity: 3})

	require.Len(t, state.Items, 1)
	require.Equal(t, 5, state.Items[0].Quantity)
	requireConsistent(t, state)
}

func TestReduceAddDefaultsQuantity(t *testing.T) {
	t.Parallel()

	state := Reduce(Empty(), AddItem{Product: ring})
	require.Equal(t, 1, state.Quantity(ring.ID))

	state = Reduce(state, AddItem{Product: ring, Quantity: -4})
	require.Equal(t, 2, state.Quantity(ring.ID))
}

func TestReduceIgnoresMalformedActions(t *testing.T) {
	t.Parallel()

	base := Reduce(Empty(), AddItem{Product: ring, Quantity: 1})

	cases := map[string]Action{
		"add without product":    AddItem{Quantity: 3},
		"remove absent":          RemoveItem{ProductID: "missing"},
		"update absent":          UpdateQuantity{ProductID: "missing", Quantity: 4},
		"update without product": UpdateQuantity{Quantity: 4},
		"nil action":             nil,
	}
	for name, action := range cases {
		next := Reduce(base, action)
		require.Equal(t, base, next, name)
	}
}

func TestReduceUpdateZeroEqualsRemove(t *testing.T) {
	t.Parallel()

	base := Reduce(Reduce(Empty(), AddItem{Product: ring, Quantity: 1}), AddItem{Product: necklace, Quantity: 1})
	require.Equal(t,
		Reduce(base, RemoveItem{ProductID: ring.ID}),
		Reduce(base, UpdateQuantity{ProductID: ring.ID, Quantity: 0}),
	)
	require.Equal(t,
		Reduce(base, RemoveItem{ProductID: ring.ID}),
		Reduce(base, UpdateQuantity{ProductID: ring.ID, Quantity: -1}),
	)
}

func TestReduceClearCartIsCanonical(t *testing.T) {
	t.Parallel()

	state := Reduce(Reduce(Empty(), AddItem{Product: ring, Quantity: 2}), ClearCart{})
	require.Equal(t, Empty(), state)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	base := Reduce(Empty(), AddItem{Product: ring, Quantity: 1})
	next := Reduce(base, UpdateQuantity{ProductID: ring.ID, Quantity: 9})
	require.Equal(t, 1, base.Items[0].Quantity)
	require.Equal(t, 9, next.Items[0].Quantity)

	next.Items[0].Quantity = 42
	require.Equal(t, 1, base.Items[0].Quantity)
}

func TestReduceReplaceNormalisesRows(t *testing.T) {
	t.Parallel()

	state := Reduce(Reduce(Empty(), AddItem{Product: necklace, Quantity: 1}), Replace{Items: []domain.CartItem{
		{Product: ring, Quantity: 1},
		{Product: ring, Quantity: 2},
		{Product: domain.ProductSnapshot{}, Quantity: 5},
		{Product: necklace, Quantity: 0},
	}})

	require.Len(t, state.Items, 1)
	require.Equal(t, 3, state.Quantity(ring.ID))
	requireConsistent(t, state)
}

func TestStoreDispatchReportsChanges(t *testing.T) {
	t.Parallel()

	store := NewStore(Empty())
	_, changed := store.Dispatch(AddItem{Product: ring, Quantity: 1})
	require.True(t, changed)

	_, changed = store.Dispatch(RemoveItem{ProductID: "missing"})
	require.False(t, changed)

	snap := store.Snapshot()
	snap.Items[0].Quantity = 99
	require.Equal(t, 1, store.Snapshot().Quantity(ring.ID))
}

func TestStoreConcurrentDispatch(t *testing.T) {
	t.Parallel()

	store := NewStore(Empty())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Dispatch(AddItem{Product: ring, Quantity: 1})
		}()
	}
	wg.Wait()

	state := store.Snapshot()
	require.Equal(t, 50, state.ItemCount)
	require.Equal(t, int64(50*350000), state.Total)
}
