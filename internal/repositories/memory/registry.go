// Package memory provides a mutex-guarded in-process implementation of the
// repository contracts. It backs service tests and local development when no
// Firestore project is configured. A single registry lock serialises compound
// operations, giving order creation the same atomicity the Firestore
// transaction provides.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/devki-mart/api/internal/domain"
	"github.com/devki-mart/api/internal/repositories"
)

// Registry is an in-memory repositories.Registry.
type Registry struct {
	mu          sync.Mutex
	products    map[string]domain.Product
	variants    map[string]map[string]domain.ProductVariant
	carts       map[string]domain.Cart
	orders      map[string]domain.Order
	paymentRefs map[string]string
	agents      map[string]domain.DeliveryAgent
	counters    map[string]int64
	orderSeq    []string
}

// NewRegistry constructs an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		products:    make(map[string]domain.Product),
		variants:    make(map[string]map[string]domain.ProductVariant),
		carts:       make(map[string]domain.Cart),
		orders:      make(map[string]domain.Order),
		paymentRefs: make(map[string]string),
		agents:      make(map[string]domain.DeliveryAgent),
		counters:    make(map[string]int64),
	}
}

var _ repositories.Registry = (*Registry)(nil)

// Close is a no-op for the in-memory registry.
func (r *Registry) Close(ctx context.Context) error { return nil }

// Catalog returns the product repository.
func (r *Registry) Catalog() repositories.CatalogRepository { return (*catalogRepo)(r) }

// Carts returns the cart repository.
func (r *Registry) Carts() repositories.CartRepository { return (*cartRepo)(r) }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return (*orderRepo)(r) }

// Agents returns the delivery agent repository.
func (r *Registry) Agents() repositories.AgentRepository { return (*agentRepo)(r) }

// Counters returns the sequence counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return (*counterRepo)(r) }

// Catalog --------------------------------------------------------------------

type catalogRepo Registry

func (r *catalogRepo) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("catalog.getProduct", fmt.Sprintf("product %s not found", productID))
	}
	return product, nil
}

func (r *catalogRepo) GetProductBySlug(ctx context.Context, slug string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(slug))
	for _, product := range r.products {
		if product.Slug == needle {
			return product, nil
		}
	}
	return domain.Product{}, repositories.NewNotFoundError("catalog.getProductBySlug", fmt.Sprintf("product slug %s not found", needle))
}

func (r *catalogRepo) GetVariant(ctx context.Context, productID, variantID string) (domain.ProductVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	variant, ok := r.variants[productID][variantID]
	if !ok {
		return domain.ProductVariant{}, repositories.NewNotFoundError("catalog.getVariant", fmt.Sprintf("variant %s/%s not found", productID, variantID))
	}
	return variant, nil
}

func (r *catalogRepo) ListVariants(ctx context.Context, productID string) ([]domain.ProductVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var variants []domain.ProductVariant
	for _, variant := range r.variants[productID] {
		variants = append(variants, variant)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].SKU < variants[j].SKU })
	return variants, nil
}

func (r *catalogRepo) ListProducts(ctx context.Context, filter repositories.ProductFilter) (domain.CursorPage[domain.Product], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var products []domain.Product
	for _, product := range r.products {
		if filter.ActiveOnly && !product.Active {
			continue
		}
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Slug < products[j].Slug })

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	start := 0
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		for i, product := range products {
			if product.Slug == token {
				start = i + 1
				break
			}
		}
	}
	if start > len(products) {
		start = len(products)
	}
	end := start + pageSize
	if end > len(products) {
		end = len(products)
	}
	page := domain.CursorPage[domain.Product]{Items: products[start:end]}
	if end < len(products) && end > start {
		page.NextPageToken = products[end-1].Slug
	}
	return page, nil
}

func (r *catalogRepo) UpsertProduct(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("catalog repository: product id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	product.Slug = strings.ToLower(strings.TrimSpace(product.Slug))
	r.products[product.ID] = product
	return nil
}

func (r *catalogRepo) UpsertVariant(ctx context.Context, variant domain.ProductVariant) error {
	if strings.TrimSpace(variant.ProductID) == "" || strings.TrimSpace(variant.ID) == "" {
		return errors.New("catalog repository: product id and variant id are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.variants[variant.ProductID] == nil {
		r.variants[variant.ProductID] = make(map[string]domain.ProductVariant)
	}
	r.variants[variant.ProductID][variant.ID] = variant
	return nil
}

// Carts ----------------------------------------------------------------------

type cartRepo Registry

func (r *cartRepo) Get(ctx context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cartLocked(userID), nil
}

func (r *cartRepo) cartLocked(userID string) domain.Cart {
	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}
	}
	return cloneCart(cart)
}

func (r *cartRepo) UpsertLine(ctx context.Context, userID string, line domain.CartLine) (domain.Cart, error) {
	if strings.TrimSpace(line.ProductID) == "" {
		return domain.Cart{}, errors.New("cart repository: line product id is required")
	}
	if line.Quantity <= 0 {
		return domain.Cart{}, errors.New("cart repository: line quantity must be > 0")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cart := r.cartLocked(userID)
	merged := false
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == line.ProductID && equalVariant(cart.Lines[i].VariantID, line.VariantID) {
			cart.Lines[i].Quantity += line.Quantity
			merged = true
			break
		}
	}
	if !merged {
		if line.AddedAt.IsZero() {
			line.AddedAt = time.Now().UTC()
		}
		cart.Lines = append(cart.Lines, line)
	}
	return r.storeCartLocked(cart), nil
}

func (r *cartRepo) UpdateLineQuantity(ctx context.Context, userID, lineID string, quantity int) (domain.Cart, error) {
	if quantity < 0 {
		return domain.Cart{}, errors.New("cart repository: quantity must be >= 0")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cart := r.cartLocked(userID)
	for i := range cart.Lines {
		if cart.Lines[i].ID != lineID {
			continue
		}
		if quantity == 0 {
			cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
		} else {
			cart.Lines[i].Quantity = quantity
		}
		return r.storeCartLocked(cart), nil
	}
	return domain.Cart{}, repositories.NewNotFoundError("carts.updateLineQuantity", fmt.Sprintf("cart line %s not found", lineID))
}

func (r *cartRepo) RemoveLine(ctx context.Context, userID, lineID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart := r.cartLocked(userID)
	for i := range cart.Lines {
		if cart.Lines[i].ID == lineID {
			cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
			return r.storeCartLocked(cart), nil
		}
	}
	return domain.Cart{}, repositories.NewNotFoundError("carts.removeLine", fmt.Sprintf("cart line %s not found", lineID))
}

func (r *cartRepo) SetBuyNow(ctx context.Context, userID string, selection *domain.BuyNowSelection) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart := r.cartLocked(userID)
	if selection == nil {
		cart.BuyNow = nil
	} else {
		stored := *selection
		if stored.SetAt.IsZero() {
			stored.SetAt = time.Now().UTC()
		}
		cart.BuyNow = &stored
	}
	return r.storeCartLocked(cart), nil
}

func (r *cartRepo) SaveCheckout(ctx context.Context, userID string, intent *domain.CheckoutIntent) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart := r.cartLocked(userID)
	cart.Checkout = intent
	return r.storeCartLocked(cart), nil
}

func (r *cartRepo) storeCartLocked(cart domain.Cart) domain.Cart {
	cart.UpdatedAt = time.Now().UTC()
	r.carts[cart.UserID] = cloneCart(cart)
	return cart
}

// Orders ---------------------------------------------------------------------

type orderRepo Registry

func (r *orderRepo) Create(ctx context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return repositories.OrderCreateResult{}, errors.New("order create: order id is required")
	}
	if strings.TrimSpace(order.UserID) == "" {
		return repositories.OrderCreateResult{}, errors.New("order create: user id is required")
	}
	if len(order.Lines) == 0 {
		return repositories.OrderCreateResult{}, errors.New("order create: at least one line is required")
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ProviderOrderID != nil && *order.ProviderOrderID != "" {
		if existingID, claimed := r.paymentRefs[*order.ProviderOrderID]; claimed {
			return repositories.OrderCreateResult{Order: cloneOrder(r.orders[existingID]), Existing: true}, nil
		}
	}

	if req.ReserveStock {
		// Validate every line before touching any stock so a failure leaves
		// nothing half-reserved.
		for _, line := range order.Lines {
			if line.Quantity <= 0 {
				return repositories.OrderCreateResult{}, repositories.NewInventoryError(repositories.InventoryErrorUnknown, line.SKU, fmt.Sprintf("order create: quantity for %s must be > 0", line.ProductID), nil)
			}
			available, err := r.stockLocked(line)
			if err != nil {
				return repositories.OrderCreateResult{}, err
			}
			if available < line.Quantity {
				return repositories.OrderCreateResult{}, repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, line.SKU, fmt.Sprintf("insufficient stock for %s", line.SKU), nil)
			}
		}
		for _, line := range order.Lines {
			r.adjustStockLocked(line, -line.Quantity)
		}
	}

	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = domain.OrderStatusPendingPickup
	}
	r.orders[order.ID] = cloneOrder(order)
	r.orderSeq = append(r.orderSeq, order.ID)
	if order.ProviderOrderID != nil && *order.ProviderOrderID != "" {
		r.paymentRefs[*order.ProviderOrderID] = order.ID
	}

	if req.ClearCart || req.ClearBuyNow {
		cart, ok := r.carts[order.UserID]
		if ok {
			if req.ClearCart {
				cart.Lines = nil
			}
			if req.ClearBuyNow {
				cart.BuyNow = nil
			}
			cart.Checkout = nil
			cart.UpdatedAt = now
			r.carts[order.UserID] = cart
		}
	}

	return repositories.OrderCreateResult{Order: order}, nil
}

func (r *orderRepo) stockLocked(line domain.OrderLine) (int, error) {
	if line.VariantID != nil && *line.VariantID != "" {
		variant, ok := r.variants[line.ProductID][*line.VariantID]
		if !ok {
			return 0, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, line.SKU, fmt.Sprintf("variant %s/%s not found", line.ProductID, *line.VariantID), nil)
		}
		return variant.Stock, nil
	}
	product, ok := r.products[line.ProductID]
	if !ok {
		return 0, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, line.SKU, fmt.Sprintf("product %s not found", line.ProductID), nil)
	}
	return product.Stock, nil
}

func (r *orderRepo) adjustStockLocked(line domain.OrderLine, delta int) {
	if line.VariantID != nil && *line.VariantID != "" {
		if variant, ok := r.variants[line.ProductID][*line.VariantID]; ok {
			variant.Stock += delta
			r.variants[line.ProductID][*line.VariantID] = variant
		}
		return
	}
	if product, ok := r.products[line.ProductID]; ok {
		product.Stock += delta
		r.products[line.ProductID] = product
	}
}

func (r *orderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.findById", fmt.Sprintf("order %s not found", orderID))
	}
	return cloneOrder(order), nil
}

func (r *orderRepo) FindByProviderOrderID(ctx context.Context, providerOrderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orderID, ok := r.paymentRefs[providerOrderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.findByProviderOrderId", fmt.Sprintf("provider order %s not found", providerOrderID))
	}
	return cloneOrder(r.orders[orderID]), nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	match := func(order domain.Order) bool {
		if order.UserID != userID {
			return false
		}
		return statusMatch(order.Status, filter.Statuses)
	}
	return r.pageLocked(match, filter.Pagination), nil
}

func (r *orderRepo) ListQueue(ctx context.Context, filter repositories.QueueFilter) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agentID := strings.TrimSpace(filter.AgentID)
	match := func(order domain.Order) bool {
		if !statusMatch(order.Status, filter.Statuses) {
			return false
		}
		assigned := ""
		if order.AssignedAgentID != nil {
			assigned = *order.AssignedAgentID
		}
		switch {
		case agentID != "" && filter.IncludeUnassigned:
			return assigned == agentID || assigned == ""
		case agentID != "":
			return assigned == agentID
		case filter.IncludeUnassigned:
			return assigned == ""
		default:
			return true
		}
	}
	return r.pageLocked(match, filter.Pagination), nil
}

func (r *orderRepo) pageLocked(match func(domain.Order) bool, page domain.Pagination) domain.CursorPage[domain.Order] {
	var matched []domain.Order
	// orderSeq preserves insertion order; newest first mirrors the
	// createdAt-descending listing of the Firestore backend.
	for i := len(r.orderSeq) - 1; i >= 0; i-- {
		order, ok := r.orders[r.orderSeq[i]]
		if !ok || !match(order) {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}

	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	start := 0
	if token := strings.TrimSpace(page.PageToken); token != "" {
		for i, order := range matched {
			if order.ID == token {
				start = i + 1
				break
			}
		}
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	result := domain.CursorPage[domain.Order]{Items: matched[start:end]}
	if end < len(matched) && end > start {
		result.NextPageToken = matched[end-1].ID
	}
	return result
}

func (r *orderRepo) UpdateStatus(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[req.OrderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.updateStatus", fmt.Sprintf("order %s not found", req.OrderID))
	}
	if !order.Status.CanTransitionTo(req.Status) {
		return domain.Order{}, repositories.NewConflictError("orders.updateStatus", fmt.Sprintf("order %s cannot move from %s to %s", req.OrderID, order.Status, req.Status))
	}

	if req.RestockLines {
		for _, line := range order.Lines {
			r.adjustStockLocked(line, line.Quantity)
		}
	}

	order.Status = req.Status
	order.UpdatedAt = now
	switch req.Status {
	case domain.OrderStatusOutForDelivery:
		order.OutForDeliveryAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	if req.RefundID != nil && *req.RefundID != "" {
		order.ProviderRefundID = req.RefundID
	}
	r.orders[req.OrderID] = cloneOrder(order)
	return order, nil
}

func (r *orderRepo) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (domain.Order, error) {
	when := paidAt.UTC()
	if when.IsZero() {
		when = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.markPaid", fmt.Sprintf("order %s not found", orderID))
	}
	if !order.Paid {
		order.Paid = true
		order.PaidAt = &when
		order.UpdatedAt = when
		r.orders[orderID] = cloneOrder(order)
	}
	return cloneOrder(order), nil
}

// Agents ---------------------------------------------------------------------

type agentRepo Registry

func (r *agentRepo) Get(ctx context.Context, agentID string) (domain.DeliveryAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return domain.DeliveryAgent{}, repositories.NewNotFoundError("agents.get", fmt.Sprintf("agent %s not found", agentID))
	}
	return agent, nil
}

func (r *agentRepo) ListActive(ctx context.Context) ([]domain.DeliveryAgent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var agents []domain.DeliveryAgent
	for _, agent := range r.agents {
		if agent.Active {
			agents = append(agents, agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

func (r *agentRepo) Upsert(ctx context.Context, agent domain.DeliveryAgent) error {
	if strings.TrimSpace(agent.ID) == "" {
		return errors.New("agent repository: agent id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = agent
	return nil
}

// Counters -------------------------------------------------------------------

type counterRepo Registry

func (r *counterRepo) Next(ctx context.Context, counterID string) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[id]++
	return r.counters[id], nil
}

// Helpers --------------------------------------------------------------------

func equalVariant(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	if cart.Lines != nil {
		dup.Lines = make([]domain.CartLine, len(cart.Lines))
		copy(dup.Lines, cart.Lines)
	}
	if cart.BuyNow != nil {
		buyNow := *cart.BuyNow
		dup.BuyNow = &buyNow
	}
	if cart.Checkout != nil {
		checkout := *cart.Checkout
		if cart.Checkout.Lines != nil {
			checkout.Lines = make([]domain.ResolvedLine, len(cart.Checkout.Lines))
			copy(checkout.Lines, cart.Checkout.Lines)
		}
		dup.Checkout = &checkout
	}
	return dup
}

func cloneOrder(order domain.Order) domain.Order {
	dup := order
	if order.Lines != nil {
		dup.Lines = make([]domain.OrderLine, len(order.Lines))
		copy(dup.Lines, order.Lines)
	}
	return dup
}

func statusMatch(status domain.OrderStatus, statuses []domain.OrderStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
