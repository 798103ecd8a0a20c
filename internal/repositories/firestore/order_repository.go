package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	pfirestore "github.com/PauloRGNDev/lovableshop-starter/internal/platform/firestore"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/pagination"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

const (
	orderCollection     = "orders"
	orderItemCollection = "order_items"
)

// OrderRepository stores order headers in orders and their lines in order_items.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	items    *pfirestore.Collection[orderItemDocument]
	products *pfirestore.Collection[productDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, orderCollection),
		items:    pfirestore.NewCollection[orderItemDocument](provider, orderItemCollection),
		products: pfirestore.NewCollection[productDocument](provider, productCollection),
	}, nil
}

// Place runs the checkout transaction. All reads happen before the first write as Firestore
// requires; any validation failure aborts without writing. Lines are charged at the catalogue
// price read inside the transaction, not at the price captured in the cart.
func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if strings.TrimSpace(req.OrderID) == "" || strings.TrimSpace(req.UserID) == "" {
		return domain.Order{}, errors.New("order repository: order and user ids are required")
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, errors.New("order repository: at least one line is required")
	}
	if len(req.ItemIDs) != len(req.Lines) {
		return domain.Order{}, errors.New("order repository: one item id per line is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	cartRows := client.Collection(r.provider.CollectionName(cartItemCollection))
	placedAt := req.PlacedAt.UTC()

	var order domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		productRefs := make([]*firestore.DocumentRef, len(req.Lines))
		for i, line := range req.Lines {
			ref, err := r.products.Ref(ctx, line.Product.ID)
			if err != nil {
				return err
			}
			productRefs[i] = ref
		}
		snaps, err := tx.GetAll(productRefs)
		if err != nil {
			return pfirestore.WrapError("orders.place.read_products", err)
		}

		products := make([]domain.Product, len(snaps))
		for i, snap := range snaps {
			if !snap.Exists() {
				id := req.Lines[i].Product.ID
				return repositories.NewOrderError(repositories.OrderErrorProductUnavailable, id,
					fmt.Sprintf("product %s no longer exists", id))
			}
			doc, err := pfirestore.Decode[productDocument](snap)
			if err != nil {
				return err
			}
			products[i] = doc.Data.toDomain(doc.ID)
		}
		lines, total, err := priceOrder(req, products)
		if err != nil {
			return err
		}

		orderRef, err := r.orders.Ref(ctx, req.OrderID)
		if err != nil {
			return err
		}
		header := orderDocument{
			UserID:        req.UserID,
			TotalCents:    total,
			Status:        string(domain.OrderStatusPending),
			CustomerEmail: strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
			ItemCount:     len(lines),
			CreatedAt:     placedAt,
			UpdatedAt:     placedAt,
		}
		if err := tx.Create(orderRef, header); err != nil {
			return pfirestore.WrapError("orders.place.create_order", err)
		}

		items := make([]domain.OrderItem, len(lines))
		for i, item := range lines {
			itemRef, err := r.items.Ref(ctx, req.ItemIDs[i])
			if err != nil {
				return err
			}
			if err := tx.Create(itemRef, item); err != nil {
				return pfirestore.WrapError("orders.place.create_item", err)
			}
			if err := tx.Update(productRefs[i], []firestore.Update{
				{Path: "stockQuantity", Value: products[i].StockQuantity - item.Quantity},
				{Path: "updatedAt", Value: placedAt},
			}); err != nil {
				return pfirestore.WrapError("orders.place.decrement_stock", err)
			}
			// Only the ordered rows go; rows the shopper never saw in this cart stay durable.
			if err := tx.Delete(cartRows.Doc(cartRowID(req.UserID, item.ProductID))); err != nil {
				return pfirestore.WrapError("orders.place.clear_cart", err)
			}
			items[i] = item.toDomain(req.ItemIDs[i])
		}

		order = header.toDomain(req.OrderID)
		order.Items = items
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// priceOrder checks each re-read product against its line and builds the order items at the
// current catalogue price. products[i] is the stored state of req.Lines[i].
func priceOrder(req repositories.PlaceOrderRequest, products []domain.Product) ([]orderItemDocument, int64, error) {
	placedAt := req.PlacedAt.UTC()
	items := make([]orderItemDocument, len(req.Lines))
	var total int64
	for i, line := range req.Lines {
		product := products[i]
		if !product.Purchasable() {
			return nil, 0, repositories.NewOrderError(repositories.OrderErrorProductUnavailable, product.ID,
				fmt.Sprintf("product %s is not available", product.ID))
		}
		if product.StockQuantity < line.Quantity {
			return nil, 0, repositories.NewOrderError(repositories.OrderErrorInsufficientStock, product.ID,
				fmt.Sprintf("product %s has %d in stock, %d requested", product.ID, product.StockQuantity, line.Quantity))
		}
		items[i] = orderItemDocument{
			OrderID:        req.OrderID,
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: product.PriceCents,
			Position:       i,
			CreatedAt:      placedAt,
		}
		total += product.PriceCents * int64(line.Quantity)
	}
	return items, total, nil
}

// FindByID returns the order with its items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	order := doc.Data.toDomain(doc.ID)

	itemDocs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", doc.ID).OrderBy("position", firestore.Asc)
	})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = make([]domain.OrderItem, 0, len(itemDocs))
	for _, item := range itemDocs {
		order.Items = append(order.Items, item.Data.toDomain(item.ID))
	}
	return order, nil
}

// ListByUser pages through headers ordered by (createdAt desc, id desc). Items are not loaded.
func (r *OrderRepository) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", strings.TrimSpace(filter.UserID)).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if !filter.After.IsZero() {
			q = q.StartAfter(filter.After.CreatedAt, filter.After.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, min(len(docs), pageSize))}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// TransitionStatus applies a forward-only status change inside a transaction. When change.From
// is set the stored status must still equal it. Cancelling an order returns its quantities to
// stock; products deleted since are skipped.
func (r *OrderRepository) TransitionStatus(ctx context.Context, change repositories.StatusTransition) (domain.Order, error) {
	orderID, next, at := strings.TrimSpace(change.OrderID), change.To, change.At
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	var order domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.Ref(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.transition.get", err)
		}
		doc, err := pfirestore.Decode[orderDocument](snap)
		if err != nil {
			return err
		}
		current := domain.OrderStatus(doc.Data.Status)
		if change.From != "" && current != change.From {
			return repositories.NewOrderError(repositories.OrderErrorInvalidTransition, "",
				fmt.Sprintf("order %s is %s, expected %s", orderID, current, change.From))
		}
		if !current.CanTransitionTo(next) {
			return repositories.NewOrderError(repositories.OrderErrorInvalidTransition, "",
				fmt.Sprintf("order %s cannot move from %s to %s", orderID, current, next))
		}

		var restockRefs []*firestore.DocumentRef
		var restockQty []int
		if next == domain.OrderStatusCancelled {
			itemSnaps, err := tx.Documents(client.Collection(r.provider.CollectionName(orderItemCollection)).Where("orderId", "==", doc.ID)).GetAll()
			if err != nil {
				return pfirestore.WrapError("orders.transition.read_items", err)
			}
			for _, itemSnap := range itemSnaps {
				item, err := pfirestore.Decode[orderItemDocument](itemSnap)
				if err != nil {
					return err
				}
				productRef, err := r.products.Ref(ctx, item.Data.ProductID)
				if err != nil {
					return err
				}
				restockRefs = append(restockRefs, productRef)
				restockQty = append(restockQty, item.Data.Quantity)
			}
		}
		var productSnaps []*firestore.DocumentSnapshot
		if len(restockRefs) > 0 {
			productSnaps, err = tx.GetAll(restockRefs)
			if err != nil {
				return pfirestore.WrapError("orders.transition.read_products", err)
			}
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(next)},
			{Path: "updatedAt", Value: at.UTC()},
		}); err != nil {
			return pfirestore.WrapError("orders.transition.update", err)
		}
		for i, productSnap := range productSnaps {
			if !productSnap.Exists() {
				continue
			}
			if err := tx.Update(restockRefs[i], []firestore.Update{
				{Path: "stockQuantity", Value: firestore.Increment(restockQty[i])},
				{Path: "updatedAt", Value: at.UTC()},
			}); err != nil {
				return pfirestore.WrapError("orders.transition.restock", err)
			}
		}

		doc.Data.Status = string(next)
		doc.Data.UpdatedAt = at.UTC()
		order = doc.Data.toDomain(doc.ID)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// SetPaymentSession records the PSP session id on the order.
func (r *OrderRepository) SetPaymentSession(ctx context.Context, orderID, sessionID string, at time.Time) error {
	_, err := r.orders.Update(ctx, orderID, []firestore.Update{
		{Path: "paymentSessionId", Value: strings.TrimSpace(sessionID)},
		{Path: "updatedAt", Value: at.UTC()},
	})
	return err
}

// ListPendingBefore returns pending orders created before cutoff, oldest first.
func (r *OrderRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.OrderStatusPending)).
			Where("createdAt", "<", cutoff.UTC()).
			OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

type orderDocument struct {
	UserID           string    `firestore:"userId"`
	TotalCents       int64     `firestore:"totalCents"`
	Status           string    `firestore:"status"`
	CustomerEmail    string    `firestore:"customerEmail"`
	PaymentSessionID string    `firestore:"paymentSessionId,omitempty"`
	ItemCount        int       `firestore:"itemCount"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func (d orderDocument) toDomain(id string) domain.Order {
	return domain.Order{
		ID:               id,
		UserID:           d.UserID,
		TotalCents:       d.TotalCents,
		Status:           domain.OrderStatus(d.Status),
		CustomerEmail:    d.CustomerEmail,
		PaymentSessionID: d.PaymentSessionID,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type orderItemDocument struct {
	OrderID        string    `firestore:"orderId"`
	ProductID      string    `firestore:"productId"`
	ProductName    string    `firestore:"productName"`
	Quantity       int       `firestore:"quantity"`
	UnitPriceCents int64     `firestore:"unitPriceCents"`
	Position       int       `firestore:"position"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func (d orderItemDocument) toDomain(id string) domain.OrderItem {
	return domain.OrderItem{
		ID:             id,
		OrderID:        d.OrderID,
		ProductID:      d.ProductID,
		ProductName:    d.ProductName,
		Quantity:       d.Quantity,
		UnitPriceCents: d.UnitPriceCents,
		CreatedAt:      d.CreatedAt,
	}
}
