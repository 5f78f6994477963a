package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/platform/textutil"
	"github.com/devki-mart/api/internal/repositories"
)

const (
	productIDPrefix = "prd_"
	variantIDPrefix = "var_"
	agentIDPrefix   = "agt_"
)

// CatalogServiceDeps wires the dependencies required by the catalog service.
type CatalogServiceDeps struct {
	Catalog         repositories.CatalogRepository
	Agents          repositories.AgentRepository
	DefaultCurrency string
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
	IDGen           func(prefix string) string
}

type catalogService struct {
	catalog         repositories.CatalogRepository
	agents          repositories.AgentRepository
	defaultCurrency string
	now             func() time.Time
	logger          func(ctx context.Context, event string, fields map[string]any)
	idGen           func(prefix string) string
	sanitizer       *bluemonday.Policy
}

// NewCatalogService constructs a CatalogService validating required dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	if deps.Agents == nil {
		return nil, errors.New("catalog service: agent repository is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "INR"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func(prefix string) string { return prefix + ulid.Make().String() }
	}

	return &catalogService{
		catalog:         deps.Catalog,
		agents:          deps.Agents,
		defaultCurrency: currency,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		idGen:     idGen,
		sanitizer: bluemonday.UGCPolicy(),
	}, nil
}

// ListProducts pages the storefront catalog.
func (s *catalogService) ListProducts(ctx context.Context, filter CatalogListFilter) (domain.CursorPage[Product], error) {
	page, err := s.catalog.ListProducts(ctx, repositories.ProductFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, translateCatalogError(err)
	}
	return page, nil
}

// GetProductBySlug loads a product and its variants for the detail page.
func (s *catalogService) GetProductBySlug(ctx context.Context, slug string) (Product, []ProductVariant, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return Product{}, nil, ErrCatalogInvalidInput
	}
	product, err := s.catalog.GetProductBySlug(ctx, trimmed)
	if err != nil {
		return Product{}, nil, translateCatalogError(err)
	}
	var variants []ProductVariant
	if product.HasVariants {
		variants, err = s.catalog.ListVariants(ctx, product.ID)
		if err != nil {
			return Product{}, nil, translateCatalogError(err)
		}
	}
	return product, variants, nil
}

// UpsertProduct creates or updates a product, sanitising the rich description
// before it is stored.
func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	slug := strings.ToLower(strings.TrimSpace(cmd.Slug))
	if name == "" || slug == "" {
		return Product{}, ErrCatalogInvalidInput
	}
	if cmd.Price < 0 || cmd.Stock < 0 {
		return Product{}, ErrCatalogInvalidInput
	}

	now := s.now()
	product := Product{
		ID:              strings.TrimSpace(cmd.ID),
		Slug:            slug,
		Name:            name,
		Description:     strings.TrimSpace(cmd.Description),
		DescriptionHTML: s.sanitizer.Sanitize(cmd.DescriptionHTML),
		Price:           cmd.Price,
		Currency:        strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		Stock:           cmd.Stock,
		HasVariants:     cmd.HasVariants,
		Active:          cmd.Active,
		UpdatedAt:       now,
	}
	if product.Currency == "" {
		product.Currency = s.defaultCurrency
	}
	if product.ID == "" {
		product.ID = s.idGen(productIDPrefix)
		product.CreatedAt = now
	} else if existing, err := s.catalog.GetProduct(ctx, product.ID); err == nil {
		product.CreatedAt = existing.CreatedAt
	} else if repositories.IsNotFound(err) {
		product.CreatedAt = now
	} else {
		return Product{}, translateCatalogError(err)
	}

	if err := s.catalog.UpsertProduct(ctx, product); err != nil {
		return Product{}, translateCatalogError(err)
	}
	s.logger(ctx, "catalog.product_upserted", map[string]any{"product_id": product.ID, "slug": product.Slug})
	return product, nil
}

// UpsertVariant creates or updates a purchasable variant of a product.
func (s *catalogService) UpsertVariant(ctx context.Context, cmd UpsertVariantCommand) (ProductVariant, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	sku := strings.TrimSpace(cmd.SKU)
	if productID == "" || sku == "" {
		return ProductVariant{}, ErrCatalogInvalidInput
	}
	if cmd.Stock < 0 || (cmd.Price != nil && *cmd.Price < 0) {
		return ProductVariant{}, ErrCatalogInvalidInput
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return ProductVariant{}, translateCatalogError(err)
	}

	now := s.now()
	variant := ProductVariant{
		ID:        strings.TrimSpace(cmd.ID),
		ProductID: productID,
		SKU:       sku,
		Options:   textutil.NormalizeStringMap(cmd.Options),
		Price:     cmd.Price,
		Stock:     cmd.Stock,
		Active:    cmd.Active,
		UpdatedAt: now,
	}
	if variant.ID == "" {
		variant.ID = s.idGen(variantIDPrefix)
		variant.CreatedAt = now
	} else if existing, err := s.catalog.GetVariant(ctx, productID, variant.ID); err == nil {
		variant.CreatedAt = existing.CreatedAt
	} else if repositories.IsNotFound(err) {
		variant.CreatedAt = now
	} else {
		return ProductVariant{}, translateCatalogError(err)
	}

	if err := s.catalog.UpsertVariant(ctx, variant); err != nil {
		return ProductVariant{}, translateCatalogError(err)
	}
	return variant, nil
}

// UpsertAgent maintains the delivery agent roster.
func (s *catalogService) UpsertAgent(ctx context.Context, cmd UpsertAgentCommand) (DeliveryAgent, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return DeliveryAgent{}, ErrCatalogInvalidInput
	}

	now := s.now()
	agent := DeliveryAgent{
		ID:     strings.TrimSpace(cmd.ID),
		Name:   name,
		Email:  strings.ToLower(strings.TrimSpace(cmd.Email)),
		Phone:  strings.TrimSpace(cmd.Phone),
		Active: cmd.Active,
	}
	if agent.ID == "" {
		agent.ID = s.idGen(agentIDPrefix)
		agent.CreatedAt = now
	} else if existing, err := s.agents.Get(ctx, agent.ID); err == nil {
		agent.CreatedAt = existing.CreatedAt
	} else if repositories.IsNotFound(err) {
		agent.CreatedAt = now
	} else {
		return DeliveryAgent{}, translateCatalogError(err)
	}

	if err := s.agents.Upsert(ctx, agent); err != nil {
		return DeliveryAgent{}, translateCatalogError(err)
	}
	s.logger(ctx, "catalog.agent_upserted", map[string]any{"agent_id": agent.ID, "active": agent.Active})
	return agent, nil
}

func translateCatalogError(err error) error {
	if err == nil {
		return nil
	}
	if repositories.IsNotFound(err) {
		return ErrCatalogProductNotFound
	}
	if repositories.IsUnavailable(err) {
		return ErrCheckoutUnavailable
	}
	return err
}
