package repositories

import (
	"context"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/pagination"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	CartItems() CartItemRepository
	CartSessions() CartSessionStore
	Orders() OrderRepository
	Profiles() ProfileRepository
	ContactMessages() ContactMessageRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductListFilter narrows product listings. Results are ordered newest first.
type ProductListFilter struct {
	InStockOnly  bool
	FeaturedOnly bool
	Limit        int
}

// ProductRepository persists catalogue entries.
type ProductRepository interface {
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
}

// CartItemRepository is the durable per-user mirror of cart lines, keyed by (user, product).
type CartItemRepository interface {
	Upsert(ctx context.Context, row domain.CartRow) error
	Delete(ctx context.Context, userID, productID string) error
	DeleteAll(ctx context.Context, userID string) error
	List(ctx context.Context, userID string) ([]domain.CartRow, error)
}

// CartSessionStore caches the working cart of a cart key (guest session or user) between requests.
// Get reports found=false when nothing is stored or the entry expired.
type CartSessionStore interface {
	Get(ctx context.Context, key string) (items []domain.CartItem, found bool, err error)
	Put(ctx context.Context, key string, items []domain.CartItem, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PlaceOrderRequest carries everything the order transaction needs. IDs are generated by the
// caller so that retries of the transaction body stay deterministic.
type PlaceOrderRequest struct {
	OrderID       string
	ItemIDs       []string
	UserID        string
	CustomerEmail string
	Lines         []domain.CartItem
	PlacedAt      time.Time
}

// StatusTransition moves one order to To. A non-empty From makes the change conditional on
// the stored status still being From when the transaction commits.
type StatusTransition struct {
	OrderID string
	From    domain.OrderStatus
	To      domain.OrderStatus
	At      time.Time
}

// OrderListFilter pages through one user's orders, newest first.
type OrderListFilter struct {
	UserID   string
	PageSize int
	After    pagination.Cursor
}

// OrderRepository persists order headers and their items.
type OrderRepository interface {
	// Place atomically re-validates stock, writes the order and its items at the current
	// catalogue prices, decrements stock and deletes the mirrored cart rows of the ordered
	// products. Nothing is written on error.
	Place(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// TransitionStatus moves the order when the lifecycle allows it.
	TransitionStatus(ctx context.Context, change StatusTransition) (domain.Order, error)
	SetPaymentSession(ctx context.Context, orderID, sessionID string, at time.Time) error
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
}

// ProfileRepository stores the store-side account record of each user.
type ProfileRepository interface {
	FindByID(ctx context.Context, userID string) (domain.Profile, error)
	Upsert(ctx context.Context, profile domain.Profile) (domain.Profile, error)
}

// ContactMessageRepository stores contact form submissions.
type ContactMessageRepository interface {
	Insert(ctx context.Context, msg domain.ContactMessage) error
}

// HealthRepository surfaces dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
