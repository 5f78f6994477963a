package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devki-mart/api/internal/notifications"
	"github.com/devki-mart/api/internal/payments"
	"github.com/devki-mart/api/internal/platform/config"
	"github.com/devki-mart/api/internal/repositories"
	"github.com/devki-mart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Checkout services.CheckoutService
	Payments services.PaymentService
	Orders   services.OrderService
	System   services.SystemService
}

// Deps carries the externally constructed collaborators the container wires
// into services. Gateway may be nil, which disables online payments and
// refunds; Health may be nil, which leaves System unset.
type Deps struct {
	Config   config.Config
	Registry repositories.Registry
	Gateway  *payments.Manager
	Notifier notifications.Notifier
	Health   repositories.HealthRepository
	Logger   func(component string) func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring
// provides a Firestore registry, while tests can supply in-memory ones.
func NewContainer(deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry
	cfg := deps.Config

	componentLogger := deps.Logger
	if componentLogger == nil {
		componentLogger = func(string) func(context.Context, string, map[string]any) {
			return nil
		}
	}

	assignment, err := services.NewSoleAgentStrategy(reg.Agents())
	if err != nil {
		return Services{}, fmt.Errorf("build assignment strategy: %w", err)
	}

	svc.Catalog, err = services.NewCatalogService(services.CatalogServiceDeps{
		Catalog:         reg.Catalog(),
		Agents:          reg.Agents(),
		DefaultCurrency: cfg.PSP.Currency,
		Clock:           time.Now,
		Logger:          componentLogger("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}

	svc.Cart, err = services.NewCartService(services.CartServiceDeps{
		Carts:   reg.Carts(),
		Catalog: reg.Catalog(),
		Clock:   time.Now,
		Logger:  componentLogger("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	svc.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:      reg.Carts(),
		Catalog:    reg.Catalog(),
		Orders:     reg.Orders(),
		Counters:   reg.Counters(),
		Assignment: assignment,
		Notifier:   deps.Notifier,
		Shipping: services.ShippingRules{
			AllowedPincodes: cfg.Shipping.AllowedPincodes,
			PhoneLength:     cfg.Shipping.PhoneLength,
			PhoneLeading:    cfg.Shipping.PhoneLeading,
		},
		Currency:      cfg.PSP.Currency,
		NumberPrefix:  cfg.Orders.NumberPrefix,
		OperatorEmail: cfg.Notifications.OperatorEmail,
		Clock:         time.Now,
		Logger:        componentLogger("checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	if deps.Gateway != nil {
		svc.Payments, err = services.NewPaymentService(services.PaymentServiceDeps{
			Carts:         reg.Carts(),
			Orders:        reg.Orders(),
			Counters:      reg.Counters(),
			Gateway:       deps.Gateway,
			Assignment:    assignment,
			Notifier:      deps.Notifier,
			NumberPrefix:  cfg.Orders.NumberPrefix,
			OperatorEmail: cfg.Notifications.OperatorEmail,
			Clock:         time.Now,
			Logger:        componentLogger("payments"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
	}

	orderDeps := services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Agents:        reg.Agents(),
		Notifier:      deps.Notifier,
		OperatorEmail: cfg.Notifications.OperatorEmail,
		Clock:         time.Now,
		Logger:        componentLogger("orders"),
	}
	if deps.Gateway != nil {
		orderDeps.Gateway = deps.Gateway
	}
	svc.Orders, err = services.NewOrderService(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	if deps.Health != nil {
		svc.System, err = services.NewSystemService(services.SystemServiceDeps{
			Health: deps.Health,
			Logger: componentLogger("health"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
	}

	return svc, nil
}
