package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	pfirestore "github.com/PauloRGNDev/lovableshop-starter/internal/platform/firestore"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

const cartItemCollection = "cart_items"

// CartItemRepository mirrors authenticated carts as one document per (user, product).
type CartItemRepository struct {
	rows *pfirestore.Collection[cartRowDocument]
}

var _ repositories.CartItemRepository = (*CartItemRepository)(nil)

// NewCartItemRepository constructs a Firestore-backed cart row repository.
func NewCartItemRepository(provider *pfirestore.Provider) (*CartItemRepository, error) {
	if provider == nil {
		return nil, errors.New("cart item repository requires firestore provider")
	}
	return &CartItemRepository{rows: pfirestore.NewCollection[cartRowDocument](provider, cartItemCollection)}, nil
}

// cartRowID is the document id of a row. Firebase uids and product ids never contain '/'.
func cartRowID(userID, productID string) string {
	return strings.TrimSpace(userID) + "_" + strings.TrimSpace(productID)
}

func (r *CartItemRepository) Upsert(ctx context.Context, row domain.CartRow) error {
	if strings.TrimSpace(row.UserID) == "" || strings.TrimSpace(row.ProductID) == "" {
		return errors.New("cart item repository: user and product ids are required")
	}
	id := cartRowID(row.UserID, row.ProductID)
	doc := cartRowFromDomain(row)

	// Update first so createdAt, which orders the rows, survives quantity changes.
	_, err := r.rows.Update(ctx, id, []firestore.Update{
		{Path: "quantity", Value: doc.Quantity},
		{Path: "name", Value: doc.Name},
		{Path: "priceCents", Value: doc.PriceCents},
		{Path: "imageUrl", Value: doc.ImageURL},
		{Path: "category", Value: doc.Category},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
	if !pfirestore.IsNotFound(err) {
		return err
	}

	ref, err := r.rows.Ref(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("cart_items.create", err)
	}
	return nil
}

func (r *CartItemRepository) Delete(ctx context.Context, userID, productID string) error {
	return r.rows.Delete(ctx, cartRowID(userID, productID))
}

func (r *CartItemRepository) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.rows.DeleteWhere(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID))
	})
	return err
}

// List returns the user's rows in the order they were first added.
func (r *CartItemRepository) List(ctx context.Context, userID string) ([]domain.CartRow, error) {
	docs, err := r.rows.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.CartRow, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain())
	}
	return out, nil
}

type cartRowDocument struct {
	UserID     string    `firestore:"userId"`
	ProductID  string    `firestore:"productId"`
	Quantity   int       `firestore:"quantity"`
	Name       string    `firestore:"name"`
	PriceCents int64     `firestore:"priceCents"`
	ImageURL   string    `firestore:"imageUrl"`
	Category   string    `firestore:"category"`
	CreatedAt  time.Time `firestore:"createdAt,serverTimestamp"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d cartRowDocument) toDomain() domain.CartRow {
	return domain.CartRow{
		UserID:    d.UserID,
		ProductID: d.ProductID,
		Quantity:  d.Quantity,
		Product: domain.ProductSnapshot{
			ID:         d.ProductID,
			Name:       d.Name,
			PriceCents: d.PriceCents,
			ImageURL:   d.ImageURL,
			Category:   domain.Category(d.Category),
		},
		UpdatedAt: d.UpdatedAt,
	}
}

func cartRowFromDomain(row domain.CartRow) cartRowDocument {
	updated := row.UpdatedAt.UTC()
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return cartRowDocument{
		UserID:     strings.TrimSpace(row.UserID),
		ProductID:  strings.TrimSpace(row.ProductID),
		Quantity:   row.Quantity,
		Name:       row.Product.Name,
		PriceCents: row.Product.PriceCents,
		ImageURL:   row.Product.ImageURL,
		Category:   string(row.Product.Category),
		UpdatedAt:  updated,
	}
}
