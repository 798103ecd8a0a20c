package services

import (
	"context"

	"github.com/PauloRGNDev/lovableshop-starter/internal/catalog"
	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/payments"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/auth"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/pagination"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/storage"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	Category           = domain.Category
	CartItem           = domain.CartItem
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	Profile            = domain.Profile
	ContactMessage     = domain.ContactMessage
	SystemHealthReport = domain.SystemHealthReport
)

// CartService owns the working cart of every cart key and mirrors authenticated carts to
// durable per-user rows.
type CartService interface {
	GetCart(ctx context.Context, ref CartRef) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, ref CartRef, productID string) (CartView, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	ClearCart(ctx context.Context, ref CartRef) (CartView, error)
	// DiscardLocal drops the cached cart of ref without touching the remote mirror. A user
	// cart is rebuilt from the remaining remote rows on its next access.
	DiscardLocal(ctx context.Context, ref CartRef) error
	AttachIdentity(ctx context.Context, sessionID, userID string) (CartView, error)
	DetachIdentity(ctx context.Context, userID string) error
	// FlushUser waits until every mirror write queued for userID has been applied.
	FlushUser(ctx context.Context, userID string) error
	// Flush waits for the mirror queues of all users.
	Flush(ctx context.Context) error
}

// CheckoutService converts a user's cart into an order and hands payment off to the PSP.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// CatalogService serves the storefront catalogue and its admin maintenance.
type CatalogService interface {
	ListProducts(ctx context.Context, query catalog.Query) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	FeaturedProducts(ctx context.Context, limit int) ([]Product, error)
	SearchProducts(ctx context.Context, term string) ([]Product, error)
	Categories() []Category
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, productID string, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	ProductImageUploadURL(ctx context.Context, productID, contentType string) (storage.UploadTicket, error)
}

// AccountService fronts the identity provider for the storefront session lifecycle.
type AccountService interface {
	SignIn(ctx context.Context, cmd SignInCommand) (SignInResult, error)
	SignUp(ctx context.Context, cmd SignUpCommand) (Profile, error)
	SignOut(ctx context.Context, userID string) error
	SendPasswordReset(ctx context.Context, email string) error
	Session(ctx context.Context, identity *auth.Identity) (SessionView, error)
	Profile(ctx context.Context, identity *auth.Identity) (Profile, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// OrderService exposes order history, admin status changes and payment reconciliation.
type OrderService interface {
	ListOrders(ctx context.Context, userID string, page pagination.Params) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, cmd OrderReadCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
	HandlePaymentEvent(ctx context.Context, event payments.WebhookEvent) error
	CancelStale(ctx context.Context) (CancelStaleResult, error)
}

// ContactService accepts public contact form submissions.
type ContactService interface {
	Submit(ctx context.Context, cmd ContactCommand) (ContactMessage, error)
}

// SystemService aggregates health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// EventPublisher publishes domain events such as order.created and contact.submitted.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) (string, error)
}
