package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/PauloRGNDev/lovableshop-starter/internal/platform/firestore"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

// Registry bundles the Firestore repositories with a pluggable cart session store and health
// repository.
type Registry struct {
	provider *pfirestore.Provider
	products *ProductRepository
	cartRows *CartItemRepository
	orders   *OrderRepository
	profiles *ProfileRepository
	contact  *ContactMessageRepository
	sessions repositories.CartSessionStore
	health   repositories.HealthRepository
	closers  []func() error
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every Firestore repository on provider. closers run on Close after the
// provider is released.
func NewRegistry(provider *pfirestore.Provider, sessions repositories.CartSessionStore, health repositories.HealthRepository, closers ...func() error) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if sessions == nil {
		return nil, errors.New("registry requires a cart session store")
	}
	reg := &Registry{provider: provider, sessions: sessions, health: health, closers: closers}

	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.cartRows, err = NewCartItemRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.profiles, err = NewProfileRepository(provider); err != nil {
		return nil, err
	}
	if reg.contact, err = NewContactMessageRepository(provider); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Close(context.Context) error {
	errs := []error{r.provider.Close()}
	for _, closer := range r.closers {
		if closer != nil {
			errs = append(errs, closer())
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Products() repositories.ProductRepository               { return r.products }
func (r *Registry) CartItems() repositories.CartItemRepository             { return r.cartRows }
func (r *Registry) CartSessions() repositories.CartSessionStore            { return r.sessions }
func (r *Registry) Orders() repositories.OrderRepository                   { return r.orders }
func (r *Registry) Profiles() repositories.ProfileRepository               { return r.profiles }
func (r *Registry) ContactMessages() repositories.ContactMessageRepository { return r.contact }
func (r *Registry) Health() repositories.HealthRepository                  { return r.health }

// SetHealth installs the health repository once its probes, which may reference the registry,
// have been built.
func (r *Registry) SetHealth(health repositories.HealthRepository) { r.health = health }

// ProductStore exposes the concrete product repository for the seeder's Upsert.
func (r *Registry) ProductStore() *ProductRepository { return r.products }
