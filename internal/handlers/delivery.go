package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/platform/auth"
	"github.com/devki-mart/api/internal/platform/httpx"
	"github.com/devki-mart/api/internal/services"
)

// DeliveryHandlers exposes the fulfilment queue for delivery agents and
// admins: listing assigned orders, advancing status and recording cash
// collection.
type DeliveryHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewDeliveryHandlers constructs handlers restricted to agent and admin roles.
func NewDeliveryHandlers(authn *auth.Authenticator, orders services.OrderService) *DeliveryHandlers {
	return &DeliveryHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /delivery endpoints onto the provided router.
func (h *DeliveryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAgent, auth.RoleAdmin))
	}
	r.Get("/orders", h.listQueue)
	r.Post("/orders/{orderID}/status", h.updateStatus)
	r.Post("/orders/{orderID}/paid", h.markPaid)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *DeliveryHandlers) listQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	pageReq, ok := paginationFromQuery(w, r)
	if !ok {
		return
	}

	page, err := h.orders.AgentQueue(ctx, services.AgentQueueCommand{
		Actor:      actor,
		Statuses:   statusesFromQuery(r),
		Pagination: pageReq,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	resp := orderListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		resp.Orders = append(resp.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *DeliveryHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	target := domain.OrderStatus(strings.TrimSpace(strings.ToLower(req.Status)))
	order, err := h.orders.TransitionStatus(ctx, services.TransitionStatusCommand{
		Actor:        actor,
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		TargetStatus: target,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *DeliveryHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	order, err := h.orders.MarkPaid(ctx, services.MarkPaidCommand{
		Actor:   actor,
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
