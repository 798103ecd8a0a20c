package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/PauloRGNDev/lovableshop-starter/internal/cart"
	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

var (
	errCartSessionsRequired = errors.New("cart service: session store is required")
	errCartProductsRequired = errors.New("cart service: product repository is required")
	errCartClockRequired    = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied neither a session nor a user.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart store cannot be reached.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartProductUnavailable indicates the product exists but cannot be bought right now.
var ErrCartProductUnavailable = errors.New("cart service: product unavailable")

// errCartNotRehydrated marks a user cart whose saved rows could not be read.
var errCartNotRehydrated = errors.New("cart service: saved cart could not be read")

// Warnings attached to cart responses when the remote mirror misbehaves.
const (
	CartWarningMirrorFailed  = "Não foi possível sincronizar seu carrinho. Suas alterações foram mantidas neste dispositivo."
	CartWarningRehydrateFail = "Não foi possível carregar o carrinho salvo na sua conta."
)

const (
	cartKeySessionPrefix = "session:"
	cartKeyUserPrefix    = "user:"

	defaultCartSessionTTL   = 7 * 24 * time.Hour
	defaultMirrorQueueSize  = 64
	defaultMirrorTimeout    = 5 * time.Second
	defaultMirrorWaitWindow = 250 * time.Millisecond
	cartLockStripes         = 64
)

// CartRef identifies a cart. A user id wins over the guest session id.
type CartRef struct {
	SessionID string
	UserID    string
}

// Key returns the cart key, session:<id> for guests and user:<uid> for signed-in shoppers.
func (r CartRef) Key() string {
	if uid := strings.TrimSpace(r.UserID); uid != "" {
		return cartKeyUserPrefix + uid
	}
	if sid := strings.TrimSpace(r.SessionID); sid != "" {
		return cartKeySessionPrefix + sid
	}
	return ""
}

// CartView is the cart returned to callers. Warnings are non-blocking notices. Unsynced is
// set when the saved cart of a user could not be read; State is then empty and nothing was
// cached, so the next access retries.
type CartView struct {
	Key      string
	State    cart.State
	Warnings []string
	Unsynced bool
}

// AddCartItemCommand adds Quantity units of a catalogue product. Zero or less counts as 1.
type AddCartItemCommand struct {
	Ref       CartRef
	ProductID string
	Quantity  int
}

// UpdateCartItemCommand overwrites a line quantity. A nil Quantity is a no-op.
type UpdateCartItemCommand struct {
	Ref       CartRef
	ProductID string
	Quantity  *int
}

type productFinder interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// CartServiceDeps wires collaborators for cart operations.
type CartServiceDeps struct {
	Sessions repositories.CartSessionStore
	Rows     repositories.CartItemRepository
	Products productFinder
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
	Meter    metric.Meter

	SessionTTL         time.Duration
	MirrorQueueSize    int
	MirrorWriteTimeout time.Duration
	// MirrorWaitWindow bounds how long a request waits for its own mirror write before
	// answering. Failures seen within the window become response warnings.
	MirrorWaitWindow time.Duration
}

type cartService struct {
	sessions repositories.CartSessionStore
	rows     repositories.CartItemRepository
	products productFinder
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
	ttl      time.Duration
	wait     time.Duration

	mirror    *cartMirror
	rehydrate singleflight.Group
	locks     [cartLockStripes]sync.Mutex
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService. Without Rows the cart is local only.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Sessions == nil {
		return nil, errCartSessionsRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = defaultCartSessionTTL
	}
	queueSize := deps.MirrorQueueSize
	if queueSize <= 0 {
		queueSize = defaultMirrorQueueSize
	}
	writeTimeout := deps.MirrorWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultMirrorTimeout
	}
	wait := deps.MirrorWaitWindow
	if wait <= 0 {
		wait = defaultMirrorWaitWindow
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter("github.com/PauloRGNDev/lovableshop-starter/internal/services")
	}
	failures, err := meter.Int64Counter(
		"storefront.cart.mirror.failures",
		metric.WithDescription("Remote cart mirror writes that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("cart service: create mirror failure counter: %w", err)
	}

	svc := &cartService{
		sessions: deps.Sessions,
		rows:     deps.Rows,
		products: deps.Products,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
		ttl:      ttl,
		wait:     wait,
	}
	if deps.Rows != nil {
		svc.mirror = newCartMirror(deps.Rows, queueSize, writeTimeout, logger, failures)
	}
	return svc, nil
}

func (s *cartService) GetCart(ctx context.Context, ref CartRef) (CartView, error) {
	key := ref.Key()
	if key == "" {
		return CartView{}, ErrCartInvalidInput
	}
	state, warnings, err := s.load(ctx, ref)
	return readView(key, state, warnings, err)
}

// readView turns a failed rehydration into an empty, unsynced view. Mutations do not use it.
func readView(key string, state cart.State, warnings []string, err error) (CartView, error) {
	if errors.Is(err, errCartNotRehydrated) {
		return CartView{Key: key, State: cart.Empty(), Warnings: []string{CartWarningRehydrateFail}, Unsynced: true}, nil
	}
	if err != nil {
		return CartView{}, err
	}
	return CartView{Key: key, State: state, Warnings: warnings}, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return s.GetCart(ctx, cmd.Ref)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			// Unknown products are ignored like any other malformed cart action.
			return s.GetCart(ctx, cmd.Ref)
		}
		return CartView{}, s.translateRepoError(err)
	}
	if !product.Purchasable() {
		return CartView{}, fmt.Errorf("%w: %s", ErrCartProductUnavailable, product.ID)
	}
	return s.mutate(ctx, cmd.Ref, cart.AddItem{Product: product.Snapshot(), Quantity: cmd.Quantity})
}

func (s *cartService) RemoveItem(ctx context.Context, ref CartRef, productID string) (CartView, error) {
	return s.mutate(ctx, ref, cart.RemoveItem{ProductID: strings.TrimSpace(productID)})
}

func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	if cmd.Quantity == nil {
		return s.GetCart(ctx, cmd.Ref)
	}
	return s.mutate(ctx, cmd.Ref, cart.UpdateQuantity{ProductID: strings.TrimSpace(cmd.ProductID), Quantity: *cmd.Quantity})
}

func (s *cartService) ClearCart(ctx context.Context, ref CartRef) (CartView, error) {
	return s.mutate(ctx, ref, cart.ClearCart{})
}

func (s *cartService) DiscardLocal(ctx context.Context, ref CartRef) error {
	key := ref.Key()
	if key == "" {
		return ErrCartInvalidInput
	}
	unlock := s.lock(key)
	defer unlock()

	// A user cart is rebuilt from whatever rows remain on the next access.
	if err := s.sessions.Delete(ctx, key); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// AttachIdentity drops the guest cart and the cached user cart, then rebuilds the user cart
// from the remote rows.
func (s *cartService) AttachIdentity(ctx context.Context, sessionID, userID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}
	ref := CartRef{UserID: uid}
	key := ref.Key()

	if guest := (CartRef{SessionID: sessionID}).Key(); guest != "" {
		if err := s.sessions.Delete(ctx, guest); err != nil {
			s.logger(ctx, "cart.session_discard_failed", map[string]any{"cartKey": guest, "error": err.Error()})
		}
	}
	if err := s.FlushUser(ctx, uid); err != nil {
		return CartView{}, err
	}

	unlock := s.lock(key)
	defer unlock()

	if err := s.sessions.Delete(ctx, key); err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	state, warnings, err := s.load(ctx, ref)
	return readView(key, state, warnings, err)
}

// DetachIdentity drops the cached cart of userID after its pending writes landed.
func (s *cartService) DetachIdentity(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	if err := s.FlushUser(ctx, uid); err != nil {
		s.logger(ctx, "cart.detach_flush_incomplete", map[string]any{"userId": uid, "error": err.Error()})
	}
	key := CartRef{UserID: uid}.Key()
	unlock := s.lock(key)
	defer unlock()
	if err := s.sessions.Delete(ctx, key); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) FlushUser(ctx context.Context, userID string) error {
	if s.mirror == nil {
		return nil
	}
	return s.mirror.flushUser(ctx, strings.TrimSpace(userID))
}

func (s *cartService) Flush(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	return s.mirror.flushAll(ctx)
}

// mutate loads the cart, dispatches action through a cart.Store, saves the result and
// queues the matching remote write. The local change is never rolled back. A user cart that
// could not be rehydrated is not mutated, so a partial state never replaces the saved one.
func (s *cartService) mutate(ctx context.Context, ref CartRef, action cart.Action) (CartView, error) {
	key := ref.Key()
	if key == "" {
		return CartView{}, ErrCartInvalidInput
	}
	unlock := s.lock(key)
	defer unlock()

	current, warnings, err := s.load(ctx, ref)
	if err != nil {
		return CartView{}, err
	}
	store := cart.NewStore(current)
	next, changed := store.Dispatch(action)
	_, isClear := action.(cart.ClearCart)
	if !changed && !isClear {
		return CartView{Key: key, State: next, Warnings: warnings}, nil
	}

	if err := s.sessions.Put(ctx, key, next.Items, s.ttl); err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	uid := strings.TrimSpace(ref.UserID)
	if uid != "" && s.mirror != nil {
		if write, ok := s.mirrorWriteFor(ctx, uid, action, next); ok {
			if warning := s.submitMirror(ctx, write); warning != "" {
				warnings = append(warnings, warning)
			}
		}
	}
	return CartView{Key: key, State: next, Warnings: warnings}, nil
}

func (s *cartService) mirrorWriteFor(ctx context.Context, userID string, action cart.Action, next cart.State) (mirrorWrite, bool) {
	write := mirrorWrite{
		ctx:    context.WithoutCancel(ctx),
		userID: userID,
		done:   make(chan error, 1),
	}
	var productID string
	switch a := action.(type) {
	case cart.AddItem:
		productID = a.Product.ID
	case cart.UpdateQuantity:
		productID = a.ProductID
	case cart.RemoveItem:
		write.op = mirrorDelete
		write.productID = a.ProductID
		return write, true
	case cart.ClearCart:
		write.op = mirrorDeleteAll
		return write, true
	default:
		return mirrorWrite{}, false
	}

	write.productID = productID
	item, ok := next.Find(productID)
	if !ok {
		write.op = mirrorDelete
		return write, true
	}
	write.op = mirrorUpsert
	write.row = domain.CartRow{
		UserID:    userID,
		ProductID: productID,
		Quantity:  item.Quantity,
		Product:   item.Product,
		UpdatedAt: s.now(),
	}
	return write, true
}

// submitMirror queues write and waits up to the wait window for its outcome.
func (s *cartService) submitMirror(ctx context.Context, write mirrorWrite) string {
	if err := s.mirror.enqueue(write); err != nil {
		s.mirror.reportFailure(ctx, write, err)
		return CartWarningMirrorFailed
	}
	timer := time.NewTimer(s.wait)
	defer timer.Stop()
	select {
	case err := <-write.done:
		if err != nil {
			return CartWarningMirrorFailed
		}
	case <-timer.C:
	case <-ctx.Done():
	}
	return ""
}

// load returns the cached state of ref. A user cart without cached state is rebuilt from
// the remote rows; concurrent first reads share one remote query. When that query fails
// nothing is cached and the error wraps errCartNotRehydrated.
func (s *cartService) load(ctx context.Context, ref CartRef) (cart.State, []string, error) {
	key := ref.Key()
	items, found, err := s.sessions.Get(ctx, key)
	if err != nil {
		return cart.State{}, nil, s.translateRepoError(err)
	}
	if found {
		return cart.Reduce(cart.Empty(), cart.Replace{Items: items}), nil, nil
	}

	uid := strings.TrimSpace(ref.UserID)
	if uid == "" || s.rows == nil {
		return cart.Empty(), nil, nil
	}

	result, err, _ := s.rehydrate.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		rows, err := s.rows.List(ctx, uid)
		if err != nil {
			return nil, err
		}
		lines := make([]domain.CartItem, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, domain.CartItem{Product: row.Product, Quantity: row.Quantity})
		}
		state := cart.Reduce(cart.Empty(), cart.Replace{Items: lines})
		if err := s.sessions.Put(ctx, key, state.Items, s.ttl); err != nil {
			s.logger(ctx, "cart.session_store_failed", map[string]any{"cartKey": key, "error": err.Error()})
		}
		return state, nil
	})
	if err != nil {
		s.logger(ctx, "cart.rehydrate_failed", map[string]any{"userId": uid, "error": err.Error()})
		return cart.State{}, nil, fmt.Errorf("%w: %w: %v", ErrCartUnavailable, errCartNotRehydrated, err)
	}
	state := result.(cart.State)
	return cart.Reduce(state, nil), nil, nil
}

// lock serialises read-modify-write cycles per cart key.
func (s *cartService) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &s.locks[h.Sum32()%cartLockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
