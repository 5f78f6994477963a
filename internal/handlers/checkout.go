package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/platform/auth"
	"github.com/devki-mart/api/internal/platform/httpx"
	"github.com/devki-mart/api/internal/services"
)

// CheckoutHandlers exposes the checkout pipeline: buy-now selection, checkout
// resolution, cash commits and online payment verification.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	payments services.PaymentService
}

const maxCheckoutBodySize = 32 * 1024

// NewCheckoutHandlers constructs handlers enforcing Firebase authentication
// before invoking the checkout and payment services.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, payments services.PaymentService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		payments: payments,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/buy-now", h.setBuyNow)
	r.Post("/resolve", h.resolve)
	r.Post("/cod", h.commitCash)
	r.Post("/payment", h.createPaymentIntent)
	r.Post("/payment/verify", h.verifyPayment)
}

type buyNowRequest struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId"`
}

type resolveCheckoutRequest struct {
	Shipping shippingPayload `json:"shipping"`
}

type checkoutResponse struct {
	Checkout checkoutPayload `json:"checkout"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type paymentIntentResponse struct {
	Provider        string `json:"provider"`
	ProviderOrderID string `json:"providerOrderId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type createPaymentIntentRequest struct {
	Provider string `json:"provider"`
}

type verifyPaymentRequest struct {
	Provider        string `json:"provider"`
	ProviderOrderID string `json:"providerOrderId"`
	PaymentID       string `json:"paymentId"`
	Signature       string `json:"signature"`
}

func (h *CheckoutHandlers) setBuyNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req buyNowRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.checkout.SetBuyNow(ctx, services.BuyNowCommand{
		UserID:    actor.ID,
		ProductID: strings.TrimSpace(req.ProductID),
		VariantID: req.VariantID,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CheckoutHandlers) resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req resolveCheckoutRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	intent, err := h.checkout.ResolveCheckout(ctx, services.ResolveCheckoutCommand{
		UserID: actor.ID,
		Shipping: domain.ShippingInfo{
			FullName:   req.Shipping.FullName,
			Address:    req.Shipping.Address,
			City:       req.Shipping.City,
			PostalCode: req.Shipping.PostalCode,
			Phone:      req.Shipping.Phone,
		},
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutResponse{Checkout: buildCheckoutPayload(intent)})
}

func (h *CheckoutHandlers) commitCash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	order, err := h.checkout.CommitCashOrder(ctx, services.CommitCashOrderCommand{UserID: actor.ID})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createPaymentIntentRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.payments.CreateIntent(ctx, services.CreatePaymentIntentCommand{
		UserID:   actor.ID,
		Provider: strings.TrimSpace(req.Provider),
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentIntentResponse{
		Provider:        result.Provider,
		ProviderOrderID: result.ProviderOrderID,
		Amount:          result.Amount,
		Currency:        result.Currency,
	})
}

func (h *CheckoutHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.payments.VerifyAndCommit(ctx, services.VerifyPaymentCommand{
		UserID:          actor.ID,
		Provider:        strings.TrimSpace(req.Provider),
		ProviderOrderID: strings.TrimSpace(req.ProviderOrderID),
		PaymentID:       strings.TrimSpace(req.PaymentID),
		Signature:       strings.TrimSpace(req.Signature),
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutInvalidShipping):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_shipping", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_empty", "no resolved checkout to commit", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "payment could not be verified", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment provider is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "checkout failed", http.StatusInternalServerError))
	}
}
