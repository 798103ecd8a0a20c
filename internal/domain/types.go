package domain

import (
	"strings"
	"time"
)

// Category enumerates the product families sold by the store.
type Category string

const (
	// CategoryRings groups rings.
	CategoryRings Category = "aneis"
	// CategoryNecklaces groups necklaces.
	CategoryNecklaces Category = "colares"
	// CategoryEarrings groups earrings.
	CategoryEarrings Category = "brincos"
	// CategoryBracelets groups bracelets.
	CategoryBracelets Category = "pulseiras"
	// CategoryWatches groups watches.
	CategoryWatches Category = "relogios"
	// CategoryOther is the catch-all bucket.
	CategoryOther Category = "outros"
)

var categoryLabels = map[Category]string{
	CategoryRings:     "Anéis",
	CategoryNecklaces: "Colares",
	CategoryEarrings:  "Brincos",
	CategoryBracelets: "Pulseiras",
	CategoryWatches:   "Relógios",
	CategoryOther:     "Outros",
}

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{CategoryRings, CategoryNecklaces, CategoryEarrings, CategoryBracelets, CategoryWatches, CategoryOther}
}

// ParseCategory normalises raw input into a known category.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := categoryLabels[c]
	return c, ok
}

// Label returns the pt-BR display label, or the raw value for unknown categories.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Product is a catalogue entry. Prices are integer BRL cents.
type Product struct {
	ID            string
	Name          string
	Description   string
	PriceCents    int64
	ImageURL      string
	Category      Category
	InStock       bool
	StockQuantity int
	Featured      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Purchasable reports whether the product can be added to a cart.
func (p Product) Purchasable() bool {
	return p.InStock && p.StockQuantity > 0
}

// ProductSnapshot is the subset of product data copied into carts and orders so they
// survive later catalogue edits.
type ProductSnapshot struct {
	ID         string
	Name       string
	PriceCents int64
	ImageURL   string
	Category   Category
}

// Snapshot copies the fields a cart line needs.
func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:         p.ID,
		Name:       p.Name,
		PriceCents: p.PriceCents,
		ImageURL:   p.ImageURL,
		Category:   p.Category,
	}
}

// CartItem is one cart line. Quantity is at least 1 while the line exists.
type CartItem struct {
	Product  ProductSnapshot
	Quantity int
}

// Subtotal returns price times quantity.
func (i CartItem) Subtotal() int64 {
	return i.Product.PriceCents * int64(i.Quantity)
}

// CartRow is the durable per-user mirror of a cart line, keyed by (UserID, ProductID).
type CartRow struct {
	UserID    string
	ProductID string
	Quantity  int
	Product   ProductSnapshot
	UpdatedAt time.Time
}

// OrderStatus enumerates the order lifecycle.
type OrderStatus string

const (
	// OrderStatusPending is the initial status; payment has not been confirmed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed means payment succeeded.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped means the order left the store.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// ParseOrderStatus normalises raw input into a known status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return s, true
	}
	return "", false
}

// CanTransitionTo reports whether next is a legal successor of s. Transitions only move forward.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order is an order header.
type Order struct {
	ID               string
	UserID           string
	TotalCents       int64
	Status           OrderStatus
	CustomerEmail    string
	PaymentSessionID string
	Items            []OrderItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItem records one purchased line with the unit price at purchase time.
type OrderItem struct {
	ID             string
	OrderID        string
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPriceCents int64
	CreatedAt      time.Time
}

// Profile is the store-side account record for a Firebase user.
type Profile struct {
	ID        string
	FullName  string
	Email     string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContactMessage is a message submitted through the public contact form.
type ContactMessage struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Subject   string
	Message   string
	CreatedAt time.Time
}

// Health statuses reported by dependency probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// OverallHealth folds individual checks into one status: error if any check errored,
// degraded if any other check is not ok.
func OverallHealth(checks map[string]SystemHealthCheck) string {
	status := HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case HealthStatusOK, "":
		case HealthStatusError:
			return HealthStatusError
		default:
			status = HealthStatusDegraded
		}
	}
	return status
}

// CursorPage is one page of a keyset-paginated listing. NextPageToken is empty on the last page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
