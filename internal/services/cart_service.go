package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/devki-mart/api/internal/repositories"
)

const cartLineIDPrefix = "crt_"

// CartServiceDeps wires the dependencies required by the cart service.
type CartServiceDeps struct {
	Carts   repositories.CartRepository
	Catalog repositories.CatalogRepository
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
	IDGen   func() string
}

type cartService struct {
	carts   repositories.CartRepository
	catalog repositories.CatalogRepository
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
	idGen   func() string
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
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
		idGen = func() string { return cartLineIDPrefix + ulid.Make().String() }
	}

	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		idGen:  idGen,
	}, nil
}

// GetCart returns the user's cart, empty when none exists yet.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return Cart{}, translateCartError(err)
	}
	return cart, nil
}

// AddItem validates the product (and variant, when given) against the catalog
// before appending or merging the line.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" || cmd.Quantity <= 0 {
		return Cart{}, ErrCartInvalidInput
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Cart{}, ErrCatalogProductNotFound
		}
		return Cart{}, translateCartError(err)
	}
	if !product.Active {
		return Cart{}, ErrCatalogProductNotFound
	}

	var variantID *string
	if cmd.VariantID != nil && strings.TrimSpace(*cmd.VariantID) != "" {
		vid := strings.TrimSpace(*cmd.VariantID)
		variant, err := s.catalog.GetVariant(ctx, productID, vid)
		if err != nil {
			if repositories.IsNotFound(err) {
				return Cart{}, ErrCatalogProductNotFound
			}
			return Cart{}, translateCartError(err)
		}
		if !variant.Active {
			return Cart{}, ErrCatalogProductNotFound
		}
		variantID = &vid
	} else if product.HasVariants {
		// A variant product cannot be added without choosing one.
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.carts.UpsertLine(ctx, uid, CartLine{
		ID:        s.idGen(),
		ProductID: productID,
		VariantID: variantID,
		Quantity:  cmd.Quantity,
		AddedAt:   s.now(),
	})
	if err != nil {
		return Cart{}, translateCartError(err)
	}

	s.logger(ctx, "cart.item_added", map[string]any{
		"user_id":    uid,
		"product_id": productID,
		"qty":        cmd.Quantity,
	})
	return cart, nil
}

// UpdateItemQuantity sets a line's quantity; zero removes the line.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	lineID := strings.TrimSpace(cmd.LineID)
	if uid == "" || lineID == "" || cmd.Quantity < 0 {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.carts.UpdateLineQuantity(ctx, uid, lineID, cmd.Quantity)
	if err != nil {
		return Cart{}, translateCartError(err)
	}
	return cart, nil
}

// RemoveItem drops a line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	lineID := strings.TrimSpace(cmd.LineID)
	if uid == "" || lineID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.carts.RemoveLine(ctx, uid, lineID)
	if err != nil {
		return Cart{}, translateCartError(err)
	}
	return cart, nil
}

func translateCartError(err error) error {
	if err == nil {
		return nil
	}
	if repositories.IsNotFound(err) {
		return ErrCartLineNotFound
	}
	if repositories.IsUnavailable(err) {
		return ErrCheckoutUnavailable
	}
	return err
}
