package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/devki-mart/api/internal/platform/httpx"
	"github.com/devki-mart/api/internal/services"
)

// CatalogHandlers exposes the public storefront catalog. No authentication
// is required; only active products are listed.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs the public catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the /products endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{slug}", h.getProduct)
}

type productListResponse struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type productDetailResponse struct {
	Product  productPayload   `json:"product"`
	Variants []variantPayload `json:"variants,omitempty"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pageReq, ok := paginationFromQuery(w, r)
	if !ok {
		return
	}

	page, err := h.catalog.ListProducts(ctx, services.CatalogListFilter{
		ActiveOnly: true,
		Pagination: pageReq,
	})
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	resp := productListResponse{
		Products:      make([]productPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, product := range page.Items {
		resp.Products = append(resp.Products, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	product, variants, err := h.catalog.GetProductBySlug(ctx, slug)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	if !product.Active {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}

	resp := productDetailResponse{Product: buildProductPayload(product)}
	for _, variant := range variants {
		if !variant.Active {
			continue
		}
		resp.Variants = append(resp.Variants, buildVariantPayload(variant))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load catalog", http.StatusInternalServerError))
	}
}
