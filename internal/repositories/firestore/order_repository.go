package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/devki-mart/api/internal/domain"
	pfirestore "github.com/devki-mart/api/internal/platform/firestore"
	"github.com/devki-mart/api/internal/platform/pagination"
	"github.com/devki-mart/api/internal/repositories"
)

const (
	ordersCollection      = "orders"
	paymentRefsCollection = "paymentRefs"
)

// OrderRepository persists orders in Firestore. Order creation, stock
// reservation and the payment-reference claim commit in one transaction, so
// a replayed payment callback can never mint a second order or decrement
// stock twice. The Firestore client requires every transactional read to
// happen before the first write; Create and UpdateStatus are structured
// around that rule.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Create inserts the order together with its side effects. When the order's
// provider order id has already been claimed, the previously created order is
// returned with Existing set and nothing is written.
func (r *OrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
	if r == nil || r.provider == nil {
		return repositories.OrderCreateResult{}, errors.New("order repository not initialised")
	}
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
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = domain.OrderStatusPendingPickup
	}

	var result repositories.OrderCreateResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		// Reads, all of them, before any write.
		var paymentRef *firestore.DocumentRef
		if order.ProviderOrderID != nil && *order.ProviderOrderID != "" {
			paymentRef = client.Collection(paymentRefsCollection).Doc(*order.ProviderOrderID)
			refSnap, err := tx.Get(paymentRef)
			if err == nil {
				var refDoc paymentRefDocument
				if err := refSnap.DataTo(&refDoc); err != nil {
					return fmt.Errorf("decode payment ref %s: %w", refSnap.Ref.ID, err)
				}
				existingSnap, err := tx.Get(client.Collection(ordersCollection).Doc(refDoc.OrderID))
				if err != nil {
					return err
				}
				var existingDoc orderDocument
				if err := existingSnap.DataTo(&existingDoc); err != nil {
					return fmt.Errorf("decode order %s: %w", existingSnap.Ref.ID, err)
				}
				result = repositories.OrderCreateResult{
					Order:    existingDoc.toDomain(existingSnap.Ref.ID),
					Existing: true,
				}
				return nil
			}
			if status.Code(err) != codes.NotFound {
				return err
			}
		}

		var stockWrites []func() error
		if req.ReserveStock {
			for _, line := range order.Lines {
				line := line
				if line.Quantity <= 0 {
					return repositories.NewInventoryError(repositories.InventoryErrorUnknown, line.SKU, fmt.Sprintf("order create: quantity for %s must be > 0", line.ProductID), nil)
				}
				if line.VariantID != nil && *line.VariantID != "" {
					ref := client.Collection(productsCollection).Doc(line.ProductID).Collection(variantsCollection).Doc(*line.VariantID)
					snap, err := tx.Get(ref)
					if err != nil {
						if status.Code(err) == codes.NotFound {
							return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, line.SKU, fmt.Sprintf("variant %s/%s not found", line.ProductID, *line.VariantID), err)
						}
						return err
					}
					var doc variantDocument
					if err := snap.DataTo(&doc); err != nil {
						return fmt.Errorf("decode variant %s: %w", snap.Ref.ID, err)
					}
					if doc.Stock < line.Quantity {
						return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, line.SKU, fmt.Sprintf("insufficient stock for %s", line.SKU), nil)
					}
					doc.Stock -= line.Quantity
					doc.UpdatedAt = now
					stockWrites = append(stockWrites, func() error { return tx.Set(ref, doc) })
				} else {
					ref := client.Collection(productsCollection).Doc(line.ProductID)
					snap, err := tx.Get(ref)
					if err != nil {
						if status.Code(err) == codes.NotFound {
							return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, line.SKU, fmt.Sprintf("product %s not found", line.ProductID), err)
						}
						return err
					}
					var doc productDocument
					if err := snap.DataTo(&doc); err != nil {
						return fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
					}
					if doc.Stock < line.Quantity {
						return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, line.SKU, fmt.Sprintf("insufficient stock for %s", line.ProductID), nil)
					}
					doc.Stock -= line.Quantity
					doc.UpdatedAt = now
					stockWrites = append(stockWrites, func() error { return tx.Set(ref, doc) })
				}
			}
		}

		var cartRef *firestore.DocumentRef
		var cartDoc *cartDocument
		if req.ClearCart || req.ClearBuyNow {
			cartRef = client.Collection(cartsCollection).Doc(order.UserID)
			snap, err := tx.Get(cartRef)
			switch status.Code(err) {
			case codes.NotFound:
				cartRef = nil
			case codes.OK:
				var doc cartDocument
				if err := snap.DataTo(&doc); err != nil {
					return fmt.Errorf("decode cart %s: %w", order.UserID, err)
				}
				cartDoc = &doc
			default:
				return err
			}
		}

		// Writes.
		for _, write := range stockWrites {
			if err := write(); err != nil {
				return err
			}
		}

		orderRef := client.Collection(ordersCollection).Doc(order.ID)
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}

		if paymentRef != nil {
			refDoc := paymentRefDocument{OrderID: order.ID, CreatedAt: now}
			if err := tx.Create(paymentRef, refDoc); err != nil {
				if status.Code(err) == codes.AlreadyExists {
					return repositories.NewConflictError("orders.create", fmt.Sprintf("provider order %s already claimed", *order.ProviderOrderID))
				}
				return err
			}
		}

		if cartRef != nil && cartDoc != nil {
			if req.ClearCart {
				cartDoc.Lines = nil
			}
			if req.ClearBuyNow {
				cartDoc.BuyNow = nil
			}
			cartDoc.Checkout = nil
			cartDoc.UpdatedAt = now
			if err := tx.Set(cartRef, *cartDoc); err != nil {
				return err
			}
		}

		result = repositories.OrderCreateResult{Order: order}
		return nil
	})
	if err != nil {
		return repositories.OrderCreateResult{}, wrapOrderError("orders.create", err)
	}
	return result, nil
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findById", err)
	}
	snap, err := client.Collection(ordersCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findById", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// FindByProviderOrderID resolves an order through the payment reference
// claimed at creation time.
func (r *OrderRepository) FindByProviderOrderID(ctx context.Context, providerOrderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	pid := strings.TrimSpace(providerOrderID)
	if pid == "" {
		return domain.Order{}, errors.New("order repository: provider order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByProviderOrderId", err)
	}
	refSnap, err := client.Collection(paymentRefsCollection).Doc(pid).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByProviderOrderId", err)
	}
	var refDoc paymentRefDocument
	if err := refSnap.DataTo(&refDoc); err != nil {
		return domain.Order{}, fmt.Errorf("decode payment ref %s: %w", pid, err)
	}
	return r.FindByID(ctx, refDoc.OrderID)
}

// ListByUser pages a customer's order history, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.listByUser", err)
	}

	query := client.Collection(ordersCollection).Query.Where("userId", "==", uid)
	if len(filter.Statuses) > 0 {
		query = query.Where("status", "in", statusStrings(filter.Statuses))
	}
	return r.pageOrders(ctx, "orders.listByUser", query, filter.Pagination)
}

// ListQueue pages the fulfilment queue for operators. AgentID narrows to one
// agent's assignments, optionally widened with unassigned orders.
func (r *OrderRepository) ListQueue(ctx context.Context, filter repositories.QueueFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.listQueue", err)
	}

	query := client.Collection(ordersCollection).Query
	if agentID := strings.TrimSpace(filter.AgentID); agentID != "" {
		if filter.IncludeUnassigned {
			query = query.WhereEntity(firestore.OrFilter{
				Filters: []firestore.EntityFilter{
					firestore.PropertyFilter{Path: "assignedAgentId", Operator: "==", Value: agentID},
					firestore.PropertyFilter{Path: "assignedAgentId", Operator: "==", Value: ""},
				},
			})
		} else {
			query = query.Where("assignedAgentId", "==", agentID)
		}
	} else if filter.IncludeUnassigned {
		query = query.Where("assignedAgentId", "==", "")
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status", "in", statusStrings(filter.Statuses))
	}
	return r.pageOrders(ctx, "orders.listQueue", query, filter.Pagination)
}

// UpdateStatus transitions the order, applying refund bookkeeping and
// restocking in the same transaction. Illegal transitions surface as
// conflicts so racing operators cannot double-advance an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		orderRef := client.Collection(ordersCollection).Doc(id)
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}
		order := doc.toDomain(snap.Ref.ID)

		if !order.Status.CanTransitionTo(req.Status) {
			return repositories.NewConflictError("orders.updateStatus", fmt.Sprintf("order %s cannot move from %s to %s", id, order.Status, req.Status))
		}

		var restocks []func() error
		if req.RestockLines {
			for _, line := range order.Lines {
				line := line
				if line.VariantID != nil && *line.VariantID != "" {
					ref := client.Collection(productsCollection).Doc(line.ProductID).Collection(variantsCollection).Doc(*line.VariantID)
					vsnap, err := tx.Get(ref)
					if err != nil {
						if status.Code(err) == codes.NotFound {
							continue
						}
						return err
					}
					var vdoc variantDocument
					if err := vsnap.DataTo(&vdoc); err != nil {
						return fmt.Errorf("decode variant %s: %w", vsnap.Ref.ID, err)
					}
					vdoc.Stock += line.Quantity
					vdoc.UpdatedAt = now
					restocks = append(restocks, func() error { return tx.Set(ref, vdoc) })
				} else {
					ref := client.Collection(productsCollection).Doc(line.ProductID)
					psnap, err := tx.Get(ref)
					if err != nil {
						if status.Code(err) == codes.NotFound {
							continue
						}
						return err
					}
					var pdoc productDocument
					if err := psnap.DataTo(&pdoc); err != nil {
						return fmt.Errorf("decode product %s: %w", psnap.Ref.ID, err)
					}
					pdoc.Stock += line.Quantity
					pdoc.UpdatedAt = now
					restocks = append(restocks, func() error { return tx.Set(ref, pdoc) })
				}
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

		for _, restock := range restocks {
			if err := restock(); err != nil {
				return err
			}
		}
		if err := tx.Set(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateStatus", err)
	}
	return updated, nil
}

// MarkPaid flips the payment flag, recording when the money arrived.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	when := paidAt.UTC()
	if when.IsZero() {
		when = time.Now().UTC()
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		orderRef := client.Collection(ordersCollection).Doc(id)
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}
		order := doc.toDomain(snap.Ref.ID)
		if order.Paid {
			updated = order
			return nil
		}
		order.Paid = true
		order.PaidAt = &when
		order.UpdatedAt = when
		if err := tx.Set(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.markPaid", err)
	}
	return updated, nil
}

func (r *OrderRepository) pageOrders(ctx context.Context, op string, query firestore.Query, page domain.Pagination) (domain.CursorPage[domain.Order], error) {
	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(page.PageToken); token != "" {
		createdAt, id, err := decodeOrderCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError(op, err)
		}
		query = query.StartAfter(createdAt, id)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError(op, err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError(op, err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	return pfirestore.WrapError(op, err)
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	Number            string              `firestore:"number"`
	UserID            string              `firestore:"userId"`
	Lines             []orderLineDocument `firestore:"lines"`
	Shipping          shippingDocument    `firestore:"shipping"`
	PaymentMethod     string              `firestore:"paymentMethod"`
	Paid              bool                `firestore:"paid"`
	Status            string              `firestore:"status"`
	AssignedAgentID   string              `firestore:"assignedAgentId"`
	Total             int64               `firestore:"total"`
	Currency          string              `firestore:"currency"`
	ProviderOrderID   *string             `firestore:"providerOrderId,omitempty"`
	ProviderPaymentID *string             `firestore:"providerPaymentId,omitempty"`
	ProviderRefundID  *string             `firestore:"providerRefundId,omitempty"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
	PaidAt            *time.Time          `firestore:"paidAt,omitempty"`
	OutForDeliveryAt  *time.Time          `firestore:"outForDeliveryAt,omitempty"`
	DeliveredAt       *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt       *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderLineDocument struct {
	ProductID string            `firestore:"productId"`
	VariantID *string           `firestore:"variantId,omitempty"`
	Name      string            `firestore:"name"`
	SKU       string            `firestore:"sku,omitempty"`
	Options   map[string]string `firestore:"options,omitempty"`
	Quantity  int               `firestore:"qty"`
	UnitPrice int64             `firestore:"unitPrice"`
	Total     int64             `firestore:"total"`
}

type paymentRefDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:            strings.TrimSpace(order.Number),
		UserID:            strings.TrimSpace(order.UserID),
		Shipping:          newShippingDocument(order.Shipping),
		PaymentMethod:     string(order.PaymentMethod),
		Paid:              order.Paid,
		Status:            string(order.Status),
		Total:             order.Total,
		Currency:          strings.ToUpper(strings.TrimSpace(order.Currency)),
		ProviderOrderID:   order.ProviderOrderID,
		ProviderPaymentID: order.ProviderPaymentID,
		ProviderRefundID:  order.ProviderRefundID,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
		PaidAt:            order.PaidAt,
		OutForDeliveryAt:  order.OutForDeliveryAt,
		DeliveredAt:       order.DeliveredAt,
		CancelledAt:       order.CancelledAt,
	}
	if order.AssignedAgentID != nil {
		doc.AssignedAgentID = strings.TrimSpace(*order.AssignedAgentID)
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.Name,
			SKU:       line.SKU,
			Options:   cloneStringMap(line.Options),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:                id,
		Number:            d.Number,
		UserID:            d.UserID,
		Shipping:          d.Shipping.toDomain(),
		PaymentMethod:     domain.PaymentMethod(d.PaymentMethod),
		Paid:              d.Paid,
		Status:            domain.OrderStatus(d.Status),
		Total:             d.Total,
		Currency:          d.Currency,
		ProviderOrderID:   d.ProviderOrderID,
		ProviderPaymentID: d.ProviderPaymentID,
		ProviderRefundID:  d.ProviderRefundID,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		PaidAt:            d.PaidAt,
		OutForDeliveryAt:  d.OutForDeliveryAt,
		DeliveredAt:       d.DeliveredAt,
		CancelledAt:       d.CancelledAt,
	}
	if agent := strings.TrimSpace(d.AssignedAgentID); agent != "" {
		order.AssignedAgentID = &agent
	}
	for _, line := range d.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.Name,
			SKU:       line.SKU,
			Options:   cloneStringMap(line.Options),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	return order
}

// decodeOrderCursor unpacks a page token into the (createdAt, id) pair the
// order queries sort on.
func decodeOrderCursor(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawCreatedAt, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: createdAt", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreatedAt)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: createdAt: %v", pagination.ErrInvalidPageToken, err)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: id", pagination.ErrInvalidPageToken)
	}
	return createdAt, id, nil
}
