package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/devki-mart/api/internal/domain"
	pfirestore "github.com/devki-mart/api/internal/platform/firestore"
	"github.com/devki-mart/api/internal/repositories"
)

const (
	productsCollection = "products"
	variantsCollection = "variants"
)

// CatalogRepository persists products and their variants in Firestore.
// Variants live in a subcollection under their parent product document.
type CatalogRepository struct {
	provider *pfirestore.Provider
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{provider: provider}, nil
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// GetProduct loads a product by document id.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("catalog.getProduct", err)
	}
	snap, err := client.Collection(productsCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("catalog.getProduct", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// GetProductBySlug resolves a product through its unique slug.
func (r *CatalogRepository) GetProductBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	trimmed := strings.ToLower(strings.TrimSpace(slug))
	if trimmed == "" {
		return domain.Product{}, errors.New("catalog repository: slug is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("catalog.getProductBySlug", err)
	}
	iter := client.Collection(productsCollection).
		Where("slug", "==", trimmed).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Product{}, repositories.NewNotFoundError("catalog.getProductBySlug", fmt.Sprintf("product slug %s not found", trimmed))
	}
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("catalog.getProductBySlug", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// GetVariant loads one variant of a product.
func (r *CatalogRepository) GetVariant(ctx context.Context, productID, variantID string) (domain.ProductVariant, error) {
	if r == nil || r.provider == nil {
		return domain.ProductVariant{}, errors.New("catalog repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	vid := strings.TrimSpace(variantID)
	if pid == "" || vid == "" {
		return domain.ProductVariant{}, errors.New("catalog repository: product id and variant id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.ProductVariant{}, pfirestore.WrapError("catalog.getVariant", err)
	}
	snap, err := client.Collection(productsCollection).Doc(pid).Collection(variantsCollection).Doc(vid).Get(ctx)
	if err != nil {
		return domain.ProductVariant{}, pfirestore.WrapError("catalog.getVariant", err)
	}
	var doc variantDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.ProductVariant{}, fmt.Errorf("decode variant %s/%s: %w", pid, vid, err)
	}
	return doc.toDomain(pid, snap.Ref.ID), nil
}

// ListVariants returns every variant of the product ordered by SKU.
func (r *CatalogRepository) ListVariants(ctx context.Context, productID string) ([]domain.ProductVariant, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return nil, errors.New("catalog repository: product id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("catalog.listVariants", err)
	}
	iter := client.Collection(productsCollection).Doc(pid).Collection(variantsCollection).
		OrderBy("sku", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var variants []domain.ProductVariant
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("catalog.listVariants", err)
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode variant %s/%s: %w", pid, snap.Ref.ID, err)
		}
		variants = append(variants, doc.toDomain(pid, snap.Ref.ID))
	}
	return variants, nil
}

// ListProducts pages through the catalog ordered by slug.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("catalog repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("catalog.listProducts", err)
	}

	query := client.Collection(productsCollection).Query
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	query = query.OrderBy("slug", firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeCatalogPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("catalog.listProducts", err)
		}
		query = query.StartAfter(decoded.Slug)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("catalog.listProducts", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(products) > pageSize
	if hasMore {
		products = products[:pageSize]
	}
	var nextToken string
	if hasMore && len(products) > 0 {
		last := products[len(products)-1]
		encoded, err := encodeCatalogPageToken(catalogPageToken{Slug: last.Slug})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("catalog.listProducts", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Product]{
		Items:         products,
		NextPageToken: nextToken,
	}, nil
}

// UpsertProduct writes the product document, keying it by ID.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("catalog repository: product id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("catalog.upsertProduct", err)
	}
	doc := newProductDocument(product)
	if _, err := client.Collection(productsCollection).Doc(id).Set(ctx, doc); err != nil {
		return pfirestore.WrapError("catalog.upsertProduct", err)
	}
	return nil
}

// UpsertVariant writes the variant document under its parent product.
func (r *CatalogRepository) UpsertVariant(ctx context.Context, variant domain.ProductVariant) error {
	if r == nil || r.provider == nil {
		return errors.New("catalog repository not initialised")
	}
	pid := strings.TrimSpace(variant.ProductID)
	vid := strings.TrimSpace(variant.ID)
	if pid == "" || vid == "" {
		return errors.New("catalog repository: product id and variant id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("catalog.upsertVariant", err)
	}
	doc := newVariantDocument(variant)
	if _, err := client.Collection(productsCollection).Doc(pid).Collection(variantsCollection).Doc(vid).Set(ctx, doc); err != nil {
		return pfirestore.WrapError("catalog.upsertVariant", err)
	}
	return nil
}

// Document mapping ----------------------------------------------------------

type productDocument struct {
	Slug            string    `firestore:"slug"`
	Name            string    `firestore:"name"`
	Description     string    `firestore:"description,omitempty"`
	DescriptionHTML string    `firestore:"descriptionHtml,omitempty"`
	Price           int64     `firestore:"price"`
	Currency        string    `firestore:"currency"`
	Stock           int       `firestore:"stock"`
	HasVariants     bool      `firestore:"hasVariants"`
	Active          bool      `firestore:"active"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Slug:            strings.ToLower(strings.TrimSpace(product.Slug)),
		Name:            strings.TrimSpace(product.Name),
		Description:     product.Description,
		DescriptionHTML: product.DescriptionHTML,
		Price:           product.Price,
		Currency:        strings.ToUpper(strings.TrimSpace(product.Currency)),
		Stock:           product.Stock,
		HasVariants:     product.HasVariants,
		Active:          product.Active,
		CreatedAt:       product.CreatedAt.UTC(),
		UpdatedAt:       product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:              id,
		Slug:            strings.TrimSpace(d.Slug),
		Name:            strings.TrimSpace(d.Name),
		Description:     d.Description,
		DescriptionHTML: d.DescriptionHTML,
		Price:           d.Price,
		Currency:        strings.ToUpper(strings.TrimSpace(d.Currency)),
		Stock:           d.Stock,
		HasVariants:     d.HasVariants,
		Active:          d.Active,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

type variantDocument struct {
	SKU       string            `firestore:"sku"`
	Options   map[string]string `firestore:"options,omitempty"`
	Price     *int64            `firestore:"price,omitempty"`
	Stock     int               `firestore:"stock"`
	Active    bool              `firestore:"active"`
	CreatedAt time.Time         `firestore:"createdAt"`
	UpdatedAt time.Time         `firestore:"updatedAt"`
}

func newVariantDocument(variant domain.ProductVariant) variantDocument {
	return variantDocument{
		SKU:       strings.TrimSpace(variant.SKU),
		Options:   cloneStringMap(variant.Options),
		Price:     variant.Price,
		Stock:     variant.Stock,
		Active:    variant.Active,
		CreatedAt: variant.CreatedAt.UTC(),
		UpdatedAt: variant.UpdatedAt.UTC(),
	}
}

func (d variantDocument) toDomain(productID, id string) domain.ProductVariant {
	return domain.ProductVariant{
		ID:        id,
		ProductID: productID,
		SKU:       strings.TrimSpace(d.SKU),
		Options:   cloneStringMap(d.Options),
		Price:     d.Price,
		Stock:     d.Stock,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

type catalogPageToken struct {
	Slug string
}

func encodeCatalogPageToken(token catalogPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode catalog page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeCatalogPageToken(encoded string) (*catalogPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode catalog page token: %w", err)
	}
	var token catalogPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode catalog page token json: %w", err)
	}
	return &token, nil
}
