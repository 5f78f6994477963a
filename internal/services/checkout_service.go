package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/notifications"
	"github.com/devki-mart/api/internal/repositories"
)

const orderIDPrefix = "ord_"

// ShippingRules carries the injected destination constraints: serviceable
// postal codes and the phone number shape. An empty pincode list accepts any
// destination.
type ShippingRules struct {
	AllowedPincodes []string
	PhoneLength     int
	PhoneLeading    string
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts         repositories.CartRepository
	Catalog       repositories.CatalogRepository
	Orders        repositories.OrderRepository
	Counters      repositories.CounterRepository
	Assignment    AssignmentStrategy
	Notifier      notifications.Notifier
	Shipping      ShippingRules
	Currency      string
	NumberPrefix  string
	OperatorEmail string
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
	IDGen         func() string
}

type checkoutService struct {
	carts     repositories.CartRepository
	catalog   repositories.CatalogRepository
	shipping  ShippingRules
	currency  string
	committer *orderCommitter
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
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
		idGen = func() string { return orderIDPrefix + ulid.Make().String() }
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = "DM"
	}
	shipping := deps.Shipping
	if shipping.PhoneLength <= 0 {
		shipping.PhoneLength = 10
	}
	if shipping.PhoneLeading == "" {
		shipping.PhoneLeading = "6789"
	}

	now := func() time.Time { return clock().UTC() }
	return &checkoutService{
		carts:    deps.Carts,
		catalog:  deps.Catalog,
		shipping: shipping,
		currency: currency,
		committer: &orderCommitter{
			orders:        deps.Orders,
			counters:      deps.Counters,
			assignment:    deps.Assignment,
			notifier:      deps.Notifier,
			numberPrefix:  prefix,
			operatorEmail: strings.TrimSpace(deps.OperatorEmail),
			now:           now,
			idGen:         idGen,
			logger:        logger,
		},
		now:    now,
		logger: logger,
	}, nil
}

// SetBuyNow stores a single-item purchase that bypasses the cart. While
// present it takes precedence over cart lines at checkout.
func (s *checkoutService) SetBuyNow(ctx context.Context, cmd BuyNowCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" {
		return Cart{}, ErrCheckoutInvalidInput
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return Cart{}, translateCheckoutError(err)
	}
	if !product.Active {
		return Cart{}, ErrCheckoutProductNotFound
	}

	var variantID *string
	if cmd.VariantID != nil && strings.TrimSpace(*cmd.VariantID) != "" {
		vid := strings.TrimSpace(*cmd.VariantID)
		variant, err := s.catalog.GetVariant(ctx, productID, vid)
		if err != nil {
			return Cart{}, translateCheckoutError(err)
		}
		if !variant.Active {
			return Cart{}, ErrCheckoutProductNotFound
		}
		variantID = &vid
	} else if product.HasVariants {
		return Cart{}, ErrCheckoutInvalidInput
	}

	cart, err := s.carts.SetBuyNow(ctx, uid, &domain.BuyNowSelection{
		ProductID: productID,
		VariantID: variantID,
		SetAt:     s.now(),
	})
	if err != nil {
		return Cart{}, translateCheckoutError(err)
	}
	return cart, nil
}

// ResolveCheckout normalises the cart or buy-now selection into a priced,
// stock-checked intent and persists it on the cart document. Nothing is
// committed to inventory yet.
func (s *checkoutService) ResolveCheckout(ctx context.Context, cmd ResolveCheckoutCommand) (CheckoutIntent, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CheckoutIntent{}, ErrCheckoutInvalidInput
	}
	shipping, err := s.validateShipping(cmd.Shipping)
	if err != nil {
		return CheckoutIntent{}, err
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return CheckoutIntent{}, translateCheckoutError(err)
	}

	source := domain.CheckoutSourceCart
	var sourceLines []domain.CartLine
	if cart.BuyNow != nil {
		source = domain.CheckoutSourceBuyNow
		sourceLines = []domain.CartLine{{
			ProductID: cart.BuyNow.ProductID,
			VariantID: cart.BuyNow.VariantID,
			Quantity:  1,
		}}
	} else {
		sourceLines = cart.Lines
	}
	if len(sourceLines) == 0 {
		return CheckoutIntent{}, ErrCheckoutEmpty
	}

	intent := CheckoutIntent{
		Source:    source,
		Shipping:  shipping,
		Currency:  s.currency,
		CreatedAt: s.now(),
	}
	for _, line := range sourceLines {
		resolved, err := s.resolveLine(ctx, line)
		if err != nil {
			return CheckoutIntent{}, err
		}
		intent.Lines = append(intent.Lines, resolved)
		intent.Total += resolved.Total()
	}

	if _, err := s.carts.SaveCheckout(ctx, uid, &intent); err != nil {
		return CheckoutIntent{}, translateCheckoutError(err)
	}
	s.logger(ctx, "checkout.resolved", map[string]any{
		"user_id": uid,
		"source":  string(source),
		"lines":   len(intent.Lines),
		"total":   intent.Total,
	})
	return intent, nil
}

// CommitCashOrder turns the resolved checkout into a cash-on-delivery order.
func (s *checkoutService) CommitCashOrder(ctx context.Context, cmd CommitCashOrderCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, ErrCheckoutInvalidInput
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return Order{}, translateCheckoutError(err)
	}
	if cart.Checkout == nil {
		return Order{}, ErrCheckoutEmpty
	}

	order, _, err := s.committer.commit(ctx, commitParams{
		userID: uid,
		intent: *cart.Checkout,
		method: domain.PaymentMethodCOD,
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *checkoutService) resolveLine(ctx context.Context, line domain.CartLine) (domain.ResolvedLine, error) {
	product, err := s.catalog.GetProduct(ctx, line.ProductID)
	if err != nil {
		return domain.ResolvedLine{}, translateCheckoutError(err)
	}
	if !product.Active {
		return domain.ResolvedLine{}, ErrCheckoutProductNotFound
	}
	if line.Quantity <= 0 {
		return domain.ResolvedLine{}, ErrCheckoutInvalidInput
	}

	resolved := domain.ResolvedLine{
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  line.Quantity,
		UnitPrice: product.Price,
	}
	stock := product.Stock
	if line.VariantID != nil && *line.VariantID != "" {
		variant, err := s.catalog.GetVariant(ctx, line.ProductID, *line.VariantID)
		if err != nil {
			return domain.ResolvedLine{}, translateCheckoutError(err)
		}
		if !variant.Active {
			return domain.ResolvedLine{}, ErrCheckoutProductNotFound
		}
		resolved.VariantID = line.VariantID
		resolved.SKU = variant.SKU
		resolved.Options = variant.Options
		resolved.UnitPrice = variant.EffectivePrice(product)
		stock = variant.Stock
	} else if product.HasVariants {
		return domain.ResolvedLine{}, ErrCheckoutInvalidInput
	}

	// Advisory check only; the create transaction re-checks atomically.
	if stock < line.Quantity {
		return domain.ResolvedLine{}, ErrCheckoutInsufficientStock
	}
	return resolved, nil
}

func (s *checkoutService) validateShipping(shipping ShippingInfo) (ShippingInfo, error) {
	out := ShippingInfo{
		FullName:   strings.TrimSpace(shipping.FullName),
		Address:    strings.TrimSpace(shipping.Address),
		City:       strings.TrimSpace(shipping.City),
		PostalCode: strings.TrimSpace(shipping.PostalCode),
		Phone:      strings.TrimSpace(shipping.Phone),
	}
	if out.FullName == "" || out.Address == "" || out.PostalCode == "" || out.Phone == "" {
		return ShippingInfo{}, ErrCheckoutInvalidShipping
	}

	if len(s.shipping.AllowedPincodes) > 0 {
		serviceable := false
		for _, pin := range s.shipping.AllowedPincodes {
			if out.PostalCode == pin {
				serviceable = true
				break
			}
		}
		if !serviceable {
			return ShippingInfo{}, ErrCheckoutInvalidShipping
		}
	}

	if len(out.Phone) != s.shipping.PhoneLength {
		return ShippingInfo{}, ErrCheckoutInvalidShipping
	}
	for _, r := range out.Phone {
		if r < '0' || r > '9' {
			return ShippingInfo{}, ErrCheckoutInvalidShipping
		}
	}
	if !strings.ContainsRune(s.shipping.PhoneLeading, rune(out.Phone[0])) {
		return ShippingInfo{}, ErrCheckoutInvalidShipping
	}
	return out, nil
}
