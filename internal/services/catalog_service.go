package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/PauloRGNDev/lovableshop-starter/internal/catalog"
	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/money"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/storage"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

const (
	// DefaultFeaturedLimit is the number of featured products shown on the home page.
	DefaultFeaturedLimit = 6

	maxProductNameLength        = 200
	maxProductDescriptionLength = 5000
)

var (
	// ErrCatalogInvalidInput indicates the product payload failed validation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product does not exist.
	ErrCatalogNotFound = errors.New("catalog: product not found")
	// ErrCatalogConflict indicates a product with the same id already exists.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates the catalogue store cannot be reached.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
	// ErrCatalogUploadsDisabled indicates no image bucket is configured.
	ErrCatalogUploadsDisabled = errors.New("catalog: image uploads are not configured")
)

type productImageSigner interface {
	UploadURL(ctx context.Context, productID, contentType string) (storage.UploadTicket, error)
}

// UpsertProductCommand is the admin product payload. Nil fields keep their current value on
// update. The price is given either in cents or as a decimal string in reais
// ("3500,00" or "3500.00"); cents win when both are set.
type UpsertProductCommand struct {
	Name          *string
	Description   *string
	PriceCents    *int64
	Price         *string
	ImageURL      *string
	Category      *string
	InStock       *bool
	StockQuantity *int
	Featured      *bool
}

// CatalogServiceDeps wires the catalogue collaborators.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Images      productImageSigner
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type catalogService struct {
	products repositories.ProductRepository
	images   productImageSigner
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
	newID    func() string
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs a CatalogService.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	return &catalogService{
		products: deps.Products,
		images:   deps.Images,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		newID:    idGen,
	}, nil
}

// ListProducts loads in-stock products newest first and projects them through query.
func (s *catalogService) ListProducts(ctx context.Context, query catalog.Query) ([]Product, error) {
	products, err := s.products.List(ctx, repositories.ProductListFilter{InStockOnly: true})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return catalog.Apply(products, query), nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, ErrCatalogNotFound
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

func (s *catalogService) FeaturedProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	products, err := s.products.List(ctx, repositories.ProductListFilter{InStockOnly: true, FeaturedOnly: true, Limit: limit})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return products, nil
}

func (s *catalogService) SearchProducts(ctx context.Context, term string) ([]Product, error) {
	return s.ListProducts(ctx, catalog.Query{Search: term})
}

func (s *catalogService) Categories() []Category {
	return domain.Categories()
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	now := s.now()
	product := Product{
		ID:        s.newID(),
		Category:  domain.CategoryOther,
		InStock:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cmd.Name == nil {
		return Product{}, publicError(ErrCatalogInvalidInput, "name", "Nome do produto é obrigatório.")
	}
	if cmd.PriceCents == nil && cmd.Price == nil {
		return Product{}, publicError(ErrCatalogInvalidInput, "price", "Preço é obrigatório.")
	}
	if err := applyProductCommand(&product, cmd); err != nil {
		return Product{}, err
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product_created", map[string]any{"productId": product.ID, "priceCents": product.PriceCents})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, productID string, cmd UpsertProductCommand) (Product, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if err := applyProductCommand(&product, cmd); err != nil {
		return Product{}, err
	}
	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product_updated", map[string]any{"productId": product.ID})
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrCatalogNotFound
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product_deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) ProductImageUploadURL(ctx context.Context, productID, contentType string) (storage.UploadTicket, error) {
	if s.images == nil {
		return storage.UploadTicket{}, ErrCatalogUploadsDisabled
	}
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return storage.UploadTicket{}, err
	}
	ticket, err := s.images.UploadURL(ctx, product.ID, contentType)
	if err != nil {
		if errors.Is(err, storage.ErrContentTypeNotAllowed) {
			return storage.UploadTicket{}, publicError(ErrCatalogInvalidInput, "contentType", "Envie uma imagem JPEG, PNG ou WebP.")
		}
		return storage.UploadTicket{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return ticket, nil
}

// applyProductCommand validates cmd and copies the set fields onto product.
func applyProductCommand(product *Product, cmd UpsertProductCommand) error {
	if cmd.Name != nil {
		name := sanitizePlain(*cmd.Name)
		if name == "" {
			return publicError(ErrCatalogInvalidInput, "name", "Nome do produto é obrigatório.")
		}
		if len([]rune(name)) > maxProductNameLength {
			return publicError(ErrCatalogInvalidInput, "name", "Nome do produto muito longo.")
		}
		product.Name = name
	}
	if cmd.Description != nil {
		description := sanitizePlain(*cmd.Description)
		if len([]rune(description)) > maxProductDescriptionLength {
			return publicError(ErrCatalogInvalidInput, "description", "Descrição muito longa.")
		}
		product.Description = description
	}
	switch {
	case cmd.PriceCents != nil:
		if *cmd.PriceCents < 0 {
			return publicError(ErrCatalogInvalidInput, "priceCents", "Preço inválido.")
		}
		product.PriceCents = *cmd.PriceCents
	case cmd.Price != nil:
		cents, err := money.ParseMajor(*cmd.Price)
		if err != nil {
			return publicError(ErrCatalogInvalidInput, "price", "Preço inválido.")
		}
		product.PriceCents = cents
	}
	if cmd.ImageURL != nil {
		imageURL := strings.TrimSpace(*cmd.ImageURL)
		if imageURL != "" && !strings.HasPrefix(imageURL, "https://") && !strings.HasPrefix(imageURL, "http://") {
			return publicError(ErrCatalogInvalidInput, "imageUrl", "URL da imagem inválida.")
		}
		product.ImageURL = imageURL
	}
	if cmd.Category != nil {
		raw := strings.TrimSpace(*cmd.Category)
		if raw == "" {
			product.Category = domain.CategoryOther
		} else {
			category, ok := domain.ParseCategory(raw)
			if !ok {
				return publicError(ErrCatalogInvalidInput, "category", "Categoria inválida.")
			}
			product.Category = category
		}
	}
	if cmd.InStock != nil {
		product.InStock = *cmd.InStock
	}
	if cmd.StockQuantity != nil {
		if *cmd.StockQuantity < 0 {
			return publicError(ErrCatalogInvalidInput, "stockQuantity", "Quantidade em estoque inválida.")
		}
		product.StockQuantity = *cmd.StockQuantity
	}
	if cmd.Featured != nil {
		product.Featured = *cmd.Featured
	}
	return nil
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCatalogNotFound
		case repoErr.IsConflict():
			return ErrCatalogConflict
		}
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
