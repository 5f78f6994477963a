package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devki-mart/api/internal/platform/auth"
	"github.com/devki-mart/api/internal/services"
)

type stubCartService struct {
	getCartFunc    func(ctx context.Context, userID string) (services.Cart, error)
	addItemFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateItemFunc func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error)
	removeItemFunc func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getCartFunc != nil {
		return s.getCartFunc(ctx, userID)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addItemFunc != nil {
		return s.addItemFunc(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateItemFunc != nil {
		return s.updateItemFunc(ctx, cmd)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeItemFunc != nil {
		return s.removeItemFunc(ctx, cmd)
	}
	return services.Cart{}, nil
}

func newCartRouter(service services.CartService) chi.Router {
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func authedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))
}

func TestCartHandlersGetCartSuccess(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	service := &stubCartService{
		getCartFunc: func(ctx context.Context, userID string) (services.Cart, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.Cart{
				UserID: "user-7",
				Lines: []services.CartLine{
					{ID: "crt_1", ProductID: "prd_1", Quantity: 2, AddedAt: now},
				},
				UpdatedAt: now,
			}, nil
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/cart", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Cart.Lines) != 1 || resp.Cart.Lines[0].ID != "crt_1" {
		t.Fatalf("expected one line crt_1, got %+v", resp.Cart.Lines)
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	router := newCartRouter(&stubCartService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemSuccess(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			if cmd.ProductID != "prd_1" || cmd.Quantity != 3 {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.Cart{
				UserID: cmd.UserID,
				Lines:  []services.CartLine{{ID: "crt_1", ProductID: cmd.ProductID, Quantity: cmd.Quantity}},
			}, nil
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/cart/items", `{"productId":"prd_1","quantity":3}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersAddItemProductNotFound(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCatalogProductNotFound
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/cart/items", `{"productId":"missing","quantity":1}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateItemLineNotFound(t *testing.T) {
	service := &stubCartService{
		updateItemFunc: func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
			if cmd.LineID != "crt_missing" {
				t.Fatalf("unexpected line id %q", cmd.LineID)
			}
			return services.Cart{}, services.ErrCartLineNotFound
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPatch, "/cart/items/crt_missing", `{"quantity":2}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemInvalidBody(t *testing.T) {
	router := newCartRouter(&stubCartService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/cart/items", `{not json`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveItemSuccess(t *testing.T) {
	removed := false
	service := &stubCartService{
		removeItemFunc: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			removed = true
			if cmd.LineID != "crt_1" {
				t.Fatalf("unexpected line id %q", cmd.LineID)
			}
			return services.Cart{UserID: cmd.UserID}, nil
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodDelete, "/cart/items/crt_1", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !removed {
		t.Fatalf("expected RemoveItem to be invoked")
	}
}
