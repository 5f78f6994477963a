package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/devki-mart/api/internal/platform/auth"
	"github.com/devki-mart/api/internal/platform/httpx"
	"github.com/devki-mart/api/internal/services"
)

// AdminCatalogHandlers exposes the admin write surface: products, variants
// and the delivery agent roster.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

const maxAdminBodySize = 64 * 1024

// NewAdminCatalogHandlers constructs handlers restricted to the admin role.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Post("/products", h.upsertProduct)
	r.Put("/products/{productID}", h.upsertProduct)
	r.Post("/products/{productID}/variants", h.upsertVariant)
	r.Put("/products/{productID}/variants/{variantID}", h.upsertVariant)
	r.Post("/agents", h.upsertAgent)
	r.Put("/agents/{agentID}", h.upsertAgent)
}

type upsertProductRequest struct {
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DescriptionHTML string `json:"descriptionHtml"`
	Price           int64  `json:"price"`
	Currency        string `json:"currency"`
	Stock           int    `json:"stock"`
	HasVariants     bool   `json:"hasVariants"`
	Active          bool   `json:"active"`
}

type upsertVariantRequest struct {
	SKU     string            `json:"sku"`
	Options map[string]string `json:"options"`
	Price   *int64            `json:"price"`
	Stock   int               `json:"stock"`
	Active  bool              `json:"active"`
}

type upsertAgentRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Active bool   `json:"active"`
}

type agentResponse struct {
	Agent agentPayload `json:"agent"`
}

type variantResponse struct {
	Variant variantPayload `json:"variant"`
}

func (h *AdminCatalogHandlers) upsertProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireActor(w, r); !ok {
		return
	}

	var req upsertProductRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{
		ID:              strings.TrimSpace(chi.URLParam(r, "productID")),
		Slug:            req.Slug,
		Name:            req.Name,
		Description:     req.Description,
		DescriptionHTML: req.DescriptionHTML,
		Price:           req.Price,
		Currency:        req.Currency,
		Stock:           req.Stock,
		HasVariants:     req.HasVariants,
		Active:          req.Active,
	})
	if err != nil {
		h.writeAdminError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, productDetailResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) upsertVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireActor(w, r); !ok {
		return
	}

	var req upsertVariantRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	variant, err := h.catalog.UpsertVariant(ctx, services.UpsertVariantCommand{
		ID:        strings.TrimSpace(chi.URLParam(r, "variantID")),
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		SKU:       req.SKU,
		Options:   req.Options,
		Price:     req.Price,
		Stock:     req.Stock,
		Active:    req.Active,
	})
	if err != nil {
		h.writeAdminError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, variantResponse{Variant: buildVariantPayload(variant)})
}

func (h *AdminCatalogHandlers) upsertAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireActor(w, r); !ok {
		return
	}

	var req upsertAgentRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	agent, err := h.catalog.UpsertAgent(ctx, services.UpsertAgentCommand{
		ID:     strings.TrimSpace(chi.URLParam(r, "agentID")),
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		Active: req.Active,
	})
	if err != nil {
		h.writeAdminError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, agentResponse{Agent: buildAgentPayload(agent)})
}

func (h *AdminCatalogHandlers) writeAdminError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to update catalog", http.StatusInternalServerError))
	}
}
