package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/config"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
)

type stubProducts struct {
	repositories.ProductRepository
}

type stubHealth struct{}

func (stubHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

type stubRegistry struct {
	products repositories.ProductRepository
	sessions repositories.CartSessionStore
	health   repositories.HealthRepository
	closeErr error
	closed   bool
}

func (r *stubRegistry) Close(context.Context) error {
	r.closed = true
	return r.closeErr
}

func (r *stubRegistry) Products() repositories.ProductRepository               { return r.products }
func (r *stubRegistry) CartItems() repositories.CartItemRepository             { return nil }
func (r *stubRegistry) CartSessions() repositories.CartSessionStore            { return r.sessions }
func (r *stubRegistry) Orders() repositories.OrderRepository                   { return nil }
func (r *stubRegistry) Profiles() repositories.ProfileRepository               { return nil }
func (r *stubRegistry) ContactMessages() repositories.ContactMessageRepository { return nil }
func (r *stubRegistry) Health() repositories.HealthRepository                  { return r.health }

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		products: stubProducts{},
		sessions: repositories.NewMemorySessionStore(time.Now),
		health:   stubHealth{},
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	_, err := NewContainer(context.Background(), config.Config{}, nil, Clients{})
	require.Error(t, err)
}

func TestNewContainerRequiresProducts(t *testing.T) {
	reg := newStubRegistry()
	reg.products = nil
	_, err := NewContainer(context.Background(), config.Config{}, reg, Clients{})
	require.ErrorContains(t, err, "product repository")
}

func TestNewContainerBuildsLocalOnlyServices(t *testing.T) {
	reg := newStubRegistry()
	cfg := config.Config{Security: config.SecurityConfig{Environment: "test"}}

	c, err := NewContainer(context.Background(), cfg, reg, Clients{})
	require.NoError(t, err)

	assert.NotNil(t, c.Services.Catalog)
	assert.NotNil(t, c.Services.Cart)
	assert.NotNil(t, c.Services.System)
	assert.Nil(t, c.Services.Checkout, "checkout needs an order repository")
	assert.Nil(t, c.Services.Orders)
	assert.Nil(t, c.Services.Accounts, "accounts need firebase clients")
	assert.Nil(t, c.Services.Contact)

	report, err := c.Services.System.HealthReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", report.Environment)
}

func TestContainerCloseReleasesRegistry(t *testing.T) {
	reg := newStubRegistry()
	reg.closeErr = errors.New("close firestore")

	c, err := NewContainer(context.Background(), config.Config{}, reg, Clients{})
	require.NoError(t, err)

	err = c.Close(context.Background())
	require.ErrorIs(t, err, reg.closeErr)
	assert.True(t, reg.closed)

	var nilContainer *Container
	assert.NoError(t, nilContainer.Close(context.Background()))
}
