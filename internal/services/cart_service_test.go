package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

var (
	cartTestNow = time.Date(2025, 2, 14, 10, 0, 0, 0, time.UTC)
	ringProduct = domain.Product{ID: "ring", Name: "Anel Solitário", PriceCents: 350000, Category: domain.CategoryRings, InStock: true, StockQuantity: 5}
	pearlChain  = domain.Product{ID: "pearls", Name: "Colar Pérolas", PriceCents: 180000, Category: domain.CategoryNecklaces, InStock: true, StockQuantity: 5}
	soldOut     = domain.Product{ID: "sold-out", Name: "Relógio", PriceCents: 90000, Category: domain.CategoryWatches, InStock: true, StockQuantity: 0}
)

func intPtr(v int) *int {
	return &v
}

func newTestCartService(t *testing.T, rows repositories.CartItemRepository, logger *recordingLogger, wait time.Duration) (CartService, *repositories.MemorySessionStore) {
	t.Helper()
	sessions := repositories.NewMemorySessionStore(func() time.Time { return cartTestNow })
	deps := CartServiceDeps{
		Sessions:         sessions,
		Rows:             rows,
		Products:         catalogueOf(ringProduct, pearlChain, soldOut),
		Clock:            func() time.Time { return cartTestNow },
		MirrorWaitWindow: wait,
	}
	if logger != nil {
		deps.Logger = logger.log
	}
	svc, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc, sessions
}

func TestNewCartServiceValidatesDependencies(t *testing.T) {
	sessions := repositories.NewMemorySessionStore(nil)
	if _, err := NewCartService(CartServiceDeps{}); !errors.Is(err, errCartSessionsRequired) {
		t.Fatalf("expected session store error, got %v", err)
	}
	if _, err := NewCartService(CartServiceDeps{Sessions: sessions}); !errors.Is(err, errCartProductsRequired) {
		t.Fatalf("expected products error, got %v", err)
	}
	if _, err := NewCartService(CartServiceDeps{Sessions: sessions, Products: catalogueOf()}); !errors.Is(err, errCartClockRequired) {
		t.Fatalf("expected clock error, got %v", err)
	}
}

func TestCartRefKey(t *testing.T) {
	cases := map[string]CartRef{
		"user:u1":       {SessionID: "s1", UserID: " u1 "},
		"session:s1":    {SessionID: "s1"},
		"":              {},
		"session:abc-1": {SessionID: " abc-1 "},
	}
	for want, ref := range cases {
		if got := ref.Key(); got != want {
			t.Fatalf("Key(%+v) = %q, want %q", ref, got, want)
		}
	}
}

func TestCartServiceGuestScenario(t *testing.T) {
	svc, _ := newTestCartService(t, nil, nil, 0)
	ctx := context.Background()
	ref := CartRef{SessionID: "guest-1"}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "ring", Quantity: 1}); err != nil {
		t.Fatalf("add ring: %v", err)
	}
	view, err := svc.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "pearls", Quantity: 2})
	if err != nil {
		t.Fatalf("add pearls: %v", err)
	}
	if view.State.ItemCount != 3 || view.State.Total != 710000 {
		t.Fatalf("expected 3 items totalling 710000, got %d / %d", view.State.ItemCount, view.State.Total)
	}

	view, err = svc.UpdateQuantity(ctx, UpdateCartItemCommand{Ref: ref, ProductID: "ring", Quantity: intPtr(0)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if view.State.ItemCount != 2 || view.State.Total != 360000 {
		t.Fatalf("expected 2 items totalling 360000, got %d / %d", view.State.ItemCount, view.State.Total)
	}
	if _, ok := view.State.Find("ring"); ok {
		t.Fatal("ring should have been removed")
	}

	// The state survives across calls through the session store.
	again, err := svc.GetCart(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.State.Total != 360000 || again.Key != "session:guest-1" {
		t.Fatalf("unexpected stored cart %+v", again)
	}
}

func TestCartServiceLenientActions(t *testing.T) {
	svc, _ := newTestCartService(t, nil, nil, 0)
	ctx := context.Background()
	ref := CartRef{SessionID: "guest-2"}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "ring"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	steps := []func() (CartView, error){
		func() (CartView, error) { return svc.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "missing"}) },
		func() (CartView, error) { return svc.AddItem(ctx, AddCartItemCommand{Ref: ref}) },
		func() (CartView, error) { return svc.RemoveItem(ctx, ref, "pearls") },
		func() (CartView, error) {
			return svc.UpdateQuantity(ctx, UpdateCartItemCommand{Ref: ref, ProductID: "ring"})
		},
		func() (CartView, error) {
			return svc.UpdateQuantity(ctx, UpdateCartItemCommand{Ref: ref, ProductID: "pearls", Quantity: intPtr(4)})
		},
	}
	for i, step := range steps {
		view, err := step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if view.State.ItemCount != 1 || view.State.Total != ringProduct.PriceCents {
			t.Fatalf("step %d changed the cart: %+v", i, view.State)
		}
	}
}

func TestCartServiceRejectsUnavailableProduct(t *testing.T) {
	svc, _ := newTestCartService(t, nil, nil, 0)
	_, err := svc.AddItem(context.Background(), AddCartItemCommand{Ref: CartRef{SessionID: "g"}, ProductID: "sold-out"})
	if !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected ErrCartProductUnavailable, got %v", err)
	}
}

func TestCartServiceRequiresCartKey(t *testing.T) {
	svc, _ := newTestCartService(t, nil, nil, 0)
	if _, err := svc.GetCart(context.Background(), CartRef{}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartServiceMirrorsInIssueOrder(t *testing.T) {
	first := make(chan struct{})
	var once sync.Once
	rows := &stubCartRowRepository{
		upsertFunc: func(context.Context, domain.CartRow) error {
			// Hold the first write back so later writes would overtake it without a queue.
			once.Do(func() {
				<-first
			})
			return nil
		},
	}
	svc, _ := newTestCartService(t, rows, nil, time.Millisecond)
	ctx := context.Background()
	ref := CartRef{UserID: "u1"}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "ring", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, UpdateCartItemCommand{Ref: ref, ProductID: "ring", Quantity: intPtr(3)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "pearls", Quantity: 2}); err != nil {
		t.Fatalf("add pearls: %v", err)
	}
	if _, err := svc.RemoveItem(ctx, ref, "ring"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := svc.ClearCart(ctx, ref); err != nil {
		t.Fatalf("clear: %v", err)
	}
	close(first)

	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := svc.FlushUser(flushCtx, "u1"); err != nil {
		t.Fatalf("flush: %v", err)
	}

	want := []recordedRowOp{
		{op: "upsert", productID: "ring", quantity: 1},
		{op: "upsert", productID: "ring", quantity: 3},
		{op: "upsert", productID: "pearls", quantity: 2},
		{op: "delete", productID: "ring"},
		{op: "delete_all"},
	}
	got := rows.recorded()
	if len(got) != len(want) {
		t.Fatalf("expected %d writes, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("write %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestCartServiceMirrorFailureKeepsLocalChange(t *testing.T) {
	rows := &stubCartRowRepository{
		upsertFunc: func(context.Context, domain.CartRow) error {
			return stubRepoError{unavailable: true}
		},
	}
	logger := &recordingLogger{}
	svc, _ := newTestCartService(t, rows, logger, time.Second)

	view, err := svc.AddItem(context.Background(), AddCartItemCommand{Ref: CartRef{UserID: "u1"}, ProductID: "ring", Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if view.State.ItemCount != 2 {
		t.Fatalf("local change must be kept, got %+v", view.State)
	}
	if len(view.Warnings) != 1 || view.Warnings[0] != CartWarningMirrorFailed {
		t.Fatalf("expected mirror warning, got %v", view.Warnings)
	}
	if !logger.has("cart.mirror_failed") {
		t.Fatal("expected cart.mirror_failed to be logged")
	}
}

func TestCartServiceRehydratesUserCartOnce(t *testing.T) {
	release := make(chan struct{})
	rows := &stubCartRowRepository{
		listFunc: func(context.Context, string) ([]domain.CartRow, error) {
			<-release
			return []domain.CartRow{
				{UserID: "u1", ProductID: "pearls", Quantity: 2, Product: pearlChain.Snapshot()},
			}, nil
		},
	}
	svc, _ := newTestCartService(t, rows, nil, 0)
	ctx := context.Background()

	const readers = 5
	var wg sync.WaitGroup
	results := make([]CartView, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GetCart(ctx, CartRef{UserID: "u1"})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < readers; i++ {
		if errs[i] != nil {
			t.Fatalf("reader %d: %v", i, errs[i])
		}
		if results[i].State.Total != 360000 {
			t.Fatalf("reader %d: unexpected state %+v", i, results[i].State)
		}
	}
	if rows.listCalls != 1 {
		t.Fatalf("expected a single remote read, got %d", rows.listCalls)
	}
}

func TestCartServiceAttachIdentityReplacesLocalState(t *testing.T) {
	rows := &stubCartRowRepository{
		rows: []domain.CartRow{
			{UserID: "u1", ProductID: "pearls", Quantity: 2, Product: pearlChain.Snapshot()},
		},
	}
	svc, sessions := newTestCartService(t, rows, nil, 0)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Ref: CartRef{SessionID: "guest"}, ProductID: "ring"}); err != nil {
		t.Fatalf("guest add: %v", err)
	}

	view, err := svc.AttachIdentity(ctx, "guest", "u1")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if view.Key != "user:u1" || view.State.ItemCount != 2 || view.State.Total != 360000 {
		t.Fatalf("unexpected rehydrated cart %+v", view)
	}
	if _, found, _ := sessions.Get(ctx, "session:guest"); found {
		t.Fatal("guest cart should have been discarded")
	}

	if err := svc.DetachIdentity(ctx, "u1"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if _, found, _ := sessions.Get(ctx, "user:u1"); found {
		t.Fatal("user cart should have been discarded on detach")
	}
}

func TestCartServiceRehydrateFailureIsAWarning(t *testing.T) {
	rows := &stubCartRowRepository{
		listFunc: func(context.Context, string) ([]domain.CartRow, error) {
			return nil, stubRepoError{unavailable: true}
		},
	}
	svc, _ := newTestCartService(t, rows, nil, 0)

	view, err := svc.GetCart(context.Background(), CartRef{UserID: "u1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !view.State.IsEmpty() || len(view.Warnings) != 1 || !view.Unsynced {
		t.Fatalf("expected empty unsynced cart with warning, got %+v", view)
	}
}

func TestCartServiceRetriesRehydrateAfterFailure(t *testing.T) {
	var mu sync.Mutex
	failing := true
	rows := &stubCartRowRepository{
		listFunc: func(context.Context, string) ([]domain.CartRow, error) {
			mu.Lock()
			defer mu.Unlock()
			if failing {
				return nil, stubRepoError{unavailable: true}
			}
			return []domain.CartRow{
				{UserID: "u1", ProductID: "pearls", Quantity: 2, Product: pearlChain.Snapshot()},
			}, nil
		},
	}
	svc, sessions := newTestCartService(t, rows, nil, 0)
	ctx := context.Background()
	ref := CartRef{UserID: "u1"}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "ring"}); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable while the saved cart is unreadable, got %v", err)
	}
	if _, found, _ := sessions.Get(ctx, "user:u1"); found {
		t.Fatal("a cart built without the saved rows must not be cached")
	}
	if ops := rows.recorded(); len(ops) != 0 {
		t.Fatalf("nothing may be mirrored, got %+v", ops)
	}

	mu.Lock()
	failing = false
	mu.Unlock()

	view, err := svc.GetCart(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Unsynced || view.State.ItemCount != 2 || view.State.Total != 360000 {
		t.Fatalf("expected the saved pearls after recovery, got %+v", view)
	}
	if rows.listCalls != 2 {
		t.Fatalf("expected the remote read to be retried, got %d reads", rows.listCalls)
	}
}

func TestCartServiceDiscardLocalDoesNotMirror(t *testing.T) {
	rows := &stubCartRowRepository{}
	svc, _ := newTestCartService(t, rows, nil, time.Second)
	ctx := context.Background()
	ref := CartRef{UserID: "u1"}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Ref: ref, ProductID: "ring"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.DiscardLocal(ctx, ref); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	view, err := svc.GetCart(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !view.State.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", view.State)
	}
	if ops := rows.recorded(); len(ops) != 1 || ops[0].op != "upsert" {
		t.Fatalf("expected only the add to be mirrored, got %+v", ops)
	}
}
