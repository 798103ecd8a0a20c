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

const productCollection = "products"

// ProductRepository stores catalogue entries in the products collection.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{products: pfirestore.NewCollection[productDocument](provider, productCollection)}, nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.InStockOnly {
			q = q.Where("inStock", "==", true)
		}
		if filter.FeaturedOnly {
			q = q.Where("featured", "==", true)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Insert creates the product and fails with a conflict when the id is taken.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	ref, err := r.products.Ref(ctx, product.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, productFromDomain(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update replaces an existing product. Missing products yield a not-found error.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	doc := productFromDomain(product)
	_, err := r.products.Update(ctx, product.ID, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "description", Value: doc.Description},
		{Path: "priceCents", Value: doc.PriceCents},
		{Path: "imageUrl", Value: doc.ImageURL},
		{Path: "category", Value: doc.Category},
		{Path: "inStock", Value: doc.InStock},
		{Path: "stockQuantity", Value: doc.StockQuantity},
		{Path: "featured", Value: doc.Featured},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}, firestore.Exists)
	return err
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.products.Delete(ctx, productID)
}

// Upsert writes the product unconditionally. Used by the catalogue seeder.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	_, err := r.products.Set(ctx, product.ID, productFromDomain(product))
	return err
}

type productDocument struct {
	Name          string    `firestore:"name"`
	Description   string    `firestore:"description"`
	PriceCents    int64     `firestore:"priceCents"`
	ImageURL      string    `firestore:"imageUrl"`
	Category      string    `firestore:"category"`
	InStock       bool      `firestore:"inStock"`
	StockQuantity int       `firestore:"stockQuantity"`
	Featured      bool      `firestore:"featured"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:            id,
		Name:          d.Name,
		Description:   d.Description,
		PriceCents:    d.PriceCents,
		ImageURL:      d.ImageURL,
		Category:      domain.Category(d.Category),
		InStock:       d.InStock,
		StockQuantity: d.StockQuantity,
		Featured:      d.Featured,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func productFromDomain(p domain.Product) productDocument {
	return productDocument{
		Name:          strings.TrimSpace(p.Name),
		Description:   p.Description,
		PriceCents:    p.PriceCents,
		ImageURL:      strings.TrimSpace(p.ImageURL),
		Category:      string(p.Category),
		InStock:       p.InStock,
		StockQuantity: p.StockQuantity,
		Featured:      p.Featured,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}
