package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/PauloRGNDev/lovableshop-starter/internal/payments"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/auth"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/config"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/observability"
	"github.com/PauloRGNDev/lovableshop-starter/internal/platform/storage"
	"github.com/PauloRGNDev/lovableshop-starter/internal/repositories"
	"github.com/PauloRGNDev/lovableshop-starter/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Checkout services.CheckoutService
	Accounts services.AccountService
	Orders   services.OrderService
	Contact  services.ContactService
	System   services.SystemService
}

// Clients carries the external clients built by the entry point. A nil member disables the
// features that depend on it.
type Clients struct {
	Logger        *zap.Logger
	Meter         metric.Meter
	Passwords     *auth.PasswordClient
	Firebase      *auth.FirebaseClient
	Payments      *payments.Manager
	ProductImages *storage.ProductImages
	ContactEvents services.EventPublisher
	OrderEvents   services.EventPublisher
	Build         services.BuildInfo
	Clock         func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries and
// an empty Clients value.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, clients Clients) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, clients)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close drains pending cart mirror writes, then releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Services.Cart != nil {
		if err := c.Services.Cart.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush cart mirror: %w", err))
		}
	}
	if c.Repositories != nil {
		errs = append(errs, c.Repositories.Close(ctx))
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, clients Clients) (Services, error) {
	var svc Services

	clock := clients.Clock
	if clock == nil {
		clock = time.Now
	}
	base := clients.Logger
	if base == nil {
		base = zap.NewNop()
	}
	eventLogger := func(name string) observability.EventLogger {
		return observability.NewEventLogger(base.Named(name))
	}

	productsRepo := reg.Products()
	if productsRepo == nil {
		return Services{}, errors.New("product repository is required")
	}

	catalogDeps := services.CatalogServiceDeps{
		Products: productsRepo,
		Clock:    clock,
		Logger:   eventLogger("catalog"),
	}
	if clients.ProductImages != nil {
		catalogDeps.Images = clients.ProductImages
	}
	catalogSvc, err := services.NewCatalogService(catalogDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Sessions:           reg.CartSessions(),
		Rows:               reg.CartItems(),
		Products:           productsRepo,
		Clock:              clock,
		Logger:             eventLogger("cart"),
		Meter:              clients.Meter,
		SessionTTL:         cfg.Cart.SessionTTL,
		MirrorQueueSize:    cfg.Cart.MirrorQueueSize,
		MirrorWriteTimeout: cfg.Cart.MirrorWriteTimeout,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	if ordersRepo := reg.Orders(); ordersRepo != nil {
		checkoutDeps := services.CheckoutServiceDeps{
			Carts:    cartSvc,
			Orders:   ordersRepo,
			Events:   clients.OrderEvents,
			Clock:    clock,
			Logger:   eventLogger("checkout"),
			Currency: cfg.Locale.Currency,
			Locale:   cfg.Locale.Language,
		}
		orderDeps := services.OrderServiceDeps{
			Orders:            ordersRepo,
			Events:            clients.OrderEvents,
			Clock:             clock,
			Logger:            eventLogger("orders"),
			Currency:          cfg.Locale.Currency,
			StalePendingAfter: cfg.Orders.StalePendingAfter,
		}
		if clients.Payments != nil {
			checkoutDeps.Payments = clients.Payments
			checkoutDeps.SuccessURL = cfg.PSP.SuccessURL
			checkoutDeps.CancelURL = cfg.PSP.CancelURL
			orderDeps.Payments = clients.Payments
		}

		checkoutSvc, err := services.NewCheckoutService(checkoutDeps)
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc

		orderSvc, err := services.NewOrderService(orderDeps)
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if profilesRepo := reg.Profiles(); profilesRepo != nil && clients.Passwords != nil && clients.Firebase != nil {
		accountSvc, err := services.NewAccountService(services.AccountServiceDeps{
			Passwords: clients.Passwords,
			Admin:     clients.Firebase,
			Profiles:  profilesRepo,
			Carts:     cartSvc,
			Logger:    eventLogger("accounts"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build account service: %w", err)
		}
		svc.Accounts = accountSvc
	}

	if contactRepo := reg.ContactMessages(); contactRepo != nil {
		contactSvc, err := services.NewContactService(services.ContactServiceDeps{
			Messages: contactRepo,
			Events:   clients.ContactEvents,
			Clock:    clock,
			Logger:   eventLogger("contact"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build contact service: %w", err)
		}
		svc.Contact = contactSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := clients.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
