package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/repositories/memory"
)

type catalogFixture struct {
	registry *memory.Registry
	service  CatalogService
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	registry := memory.NewRegistry()
	service, err := NewCatalogService(CatalogServiceDeps{
		Catalog: registry.Catalog(),
		Agents:  registry.Agents(),
		Clock:   func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return &catalogFixture{registry: registry, service: service}
}

func TestUpsertProductSanitisesDescriptionHTML(t *testing.T) {
	fixture := newCatalogFixture(t)

	product, err := fixture.service.UpsertProduct(context.Background(), UpsertProductCommand{
		Slug:            "Masala-Chai",
		Name:            "Masala Chai",
		DescriptionHTML: `<p>Strong <b>assam</b> base</p><script>alert("x")</script>`,
		Price:           9900,
		Stock:           20,
		Active:          true,
	})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	if strings.Contains(product.DescriptionHTML, "<script") {
		t.Fatalf("script tag survived sanitisation: %q", product.DescriptionHTML)
	}
	if !strings.Contains(product.DescriptionHTML, "<b>assam</b>") {
		t.Fatalf("benign markup was stripped: %q", product.DescriptionHTML)
	}
	if product.Slug != "masala-chai" {
		t.Fatalf("expected lowercased slug, got %q", product.Slug)
	}
	if product.Currency != "INR" {
		t.Fatalf("expected default currency INR, got %q", product.Currency)
	}
	if !strings.HasPrefix(product.ID, "prd_") {
		t.Fatalf("expected generated prd_ id, got %q", product.ID)
	}
}

func TestUpsertProductPreservesCreatedAt(t *testing.T) {
	fixture := newCatalogFixture(t)
	ctx := context.Background()

	created := fixedNow.Add(-48 * time.Hour)
	if err := fixture.registry.Catalog().UpsertProduct(ctx, domain.Product{
		ID:        "p1",
		Slug:      "p1",
		Name:      "P1",
		Price:     100,
		Currency:  "INR",
		Active:    true,
		CreatedAt: created,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	product, err := fixture.service.UpsertProduct(ctx, UpsertProductCommand{
		ID:     "p1",
		Slug:   "p1",
		Name:   "P1 renamed",
		Price:  200,
		Active: true,
	})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	if !product.CreatedAt.Equal(created) {
		t.Fatalf("expected createdAt preserved, got %v", product.CreatedAt)
	}
	if !product.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("expected updatedAt bumped, got %v", product.UpdatedAt)
	}
}

func TestUpsertVariantRequiresExistingProduct(t *testing.T) {
	fixture := newCatalogFixture(t)

	_, err := fixture.service.UpsertVariant(context.Background(), UpsertVariantCommand{
		ProductID: "missing",
		SKU:       "SKU-1",
		Stock:     5,
		Active:    true,
	})
	if !errors.Is(err, ErrCatalogProductNotFound) {
		t.Fatalf("expected ErrCatalogProductNotFound, got %v", err)
	}
}

func TestGetProductBySlugLoadsVariants(t *testing.T) {
	fixture := newCatalogFixture(t)
	ctx := context.Background()

	product, err := fixture.service.UpsertProduct(ctx, UpsertProductCommand{
		Slug:        "kurta",
		Name:        "Cotton Kurta",
		Price:       79900,
		HasVariants: true,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	for _, size := range []string{"S", "M"} {
		if _, err := fixture.service.UpsertVariant(ctx, UpsertVariantCommand{
			ProductID: product.ID,
			SKU:       "KURTA-" + size,
			Options:   map[string]string{"size": size},
			Stock:     3,
			Active:    true,
		}); err != nil {
			t.Fatalf("UpsertVariant %s: %v", size, err)
		}
	}

	got, variants, err := fixture.service.GetProductBySlug(ctx, "kurta")
	if err != nil {
		t.Fatalf("GetProductBySlug: %v", err)
	}
	if got.ID != product.ID {
		t.Fatalf("expected product %s, got %s", product.ID, got.ID)
	}
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(variants))
	}
}

func TestUpsertAgentGeneratesID(t *testing.T) {
	fixture := newCatalogFixture(t)

	agent, err := fixture.service.UpsertAgent(context.Background(), UpsertAgentCommand{
		Name:   "Ravi Kumar",
		Email:  "Ravi@Example.com",
		Active: true,
	})
	if err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}
	if !strings.HasPrefix(agent.ID, "agt_") {
		t.Fatalf("expected generated agt_ id, got %q", agent.ID)
	}
	if agent.Email != "ravi@example.com" {
		t.Fatalf("expected lowercased email, got %q", agent.Email)
	}
}
