package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/devki-mart/api/internal/domain"
	pfirestore "github.com/devki-mart/api/internal/platform/firestore"
	"github.com/devki-mart/api/internal/repositories"
)

const cartsCollection = "carts"

// CartRepository keeps the entire cart for a user in a single document keyed
// by the user id: regular lines, the buy-now selection and the latest resolved
// checkout intent. Mutations run in a transaction so concurrent edits from two
// sessions of the same user cannot clobber each other.
type CartRepository struct {
	provider *pfirestore.Provider
	clock    func() time.Time
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{provider: provider, clock: time.Now}, nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// Get loads the cart for a user. A user without a cart document gets an
// empty cart, not an error.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.get", err)
	}
	snap, err := client.Collection(cartsCollection).Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Cart{UserID: uid}, nil
		}
		return domain.Cart{}, pfirestore.WrapError("carts.get", err)
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", uid, err)
	}
	return doc.toDomain(uid), nil
}

// UpsertLine adds a line to the cart, merging quantities when the same
// product and variant is already present.
func (r *CartRepository) UpsertLine(ctx context.Context, userID string, line domain.CartLine) (domain.Cart, error) {
	if strings.TrimSpace(line.ProductID) == "" {
		return domain.Cart{}, errors.New("cart repository: line product id is required")
	}
	if line.Quantity <= 0 {
		return domain.Cart{}, errors.New("cart repository: line quantity must be > 0")
	}
	return r.mutate(ctx, "carts.upsertLine", userID, func(cart *domain.Cart, now time.Time) error {
		for i := range cart.Lines {
			if cart.Lines[i].ProductID == line.ProductID && equalVariant(cart.Lines[i].VariantID, line.VariantID) {
				cart.Lines[i].Quantity += line.Quantity
				return nil
			}
		}
		added := line
		if added.AddedAt.IsZero() {
			added.AddedAt = now
		}
		cart.Lines = append(cart.Lines, added)
		return nil
	})
}

// UpdateLineQuantity sets the quantity of an existing line. Zero removes the
// line.
func (r *CartRepository) UpdateLineQuantity(ctx context.Context, userID, lineID string, quantity int) (domain.Cart, error) {
	if quantity < 0 {
		return domain.Cart{}, errors.New("cart repository: quantity must be >= 0")
	}
	lid := strings.TrimSpace(lineID)
	if lid == "" {
		return domain.Cart{}, errors.New("cart repository: line id is required")
	}
	return r.mutate(ctx, "carts.updateLineQuantity", userID, func(cart *domain.Cart, now time.Time) error {
		for i := range cart.Lines {
			if cart.Lines[i].ID != lid {
				continue
			}
			if quantity == 0 {
				cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
			} else {
				cart.Lines[i].Quantity = quantity
			}
			return nil
		}
		return repositories.NewNotFoundError("carts.updateLineQuantity", fmt.Sprintf("cart line %s not found", lid))
	})
}

// RemoveLine deletes a line from the cart.
func (r *CartRepository) RemoveLine(ctx context.Context, userID, lineID string) (domain.Cart, error) {
	lid := strings.TrimSpace(lineID)
	if lid == "" {
		return domain.Cart{}, errors.New("cart repository: line id is required")
	}
	return r.mutate(ctx, "carts.removeLine", userID, func(cart *domain.Cart, now time.Time) error {
		for i := range cart.Lines {
			if cart.Lines[i].ID == lid {
				cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
				return nil
			}
		}
		return repositories.NewNotFoundError("carts.removeLine", fmt.Sprintf("cart line %s not found", lid))
	})
}

// SetBuyNow stores, or with nil clears, the transient buy-now selection.
func (r *CartRepository) SetBuyNow(ctx context.Context, userID string, selection *domain.BuyNowSelection) (domain.Cart, error) {
	if selection != nil && strings.TrimSpace(selection.ProductID) == "" {
		return domain.Cart{}, errors.New("cart repository: buy-now product id is required")
	}
	return r.mutate(ctx, "carts.setBuyNow", userID, func(cart *domain.Cart, now time.Time) error {
		if selection == nil {
			cart.BuyNow = nil
			return nil
		}
		stored := *selection
		if stored.SetAt.IsZero() {
			stored.SetAt = now
		}
		cart.BuyNow = &stored
		return nil
	})
}

// SaveCheckout stores, or with nil clears, the resolved checkout intent.
func (r *CartRepository) SaveCheckout(ctx context.Context, userID string, intent *domain.CheckoutIntent) (domain.Cart, error) {
	return r.mutate(ctx, "carts.saveCheckout", userID, func(cart *domain.Cart, now time.Time) error {
		cart.Checkout = intent
		return nil
	})
}

func (r *CartRepository) mutate(ctx context.Context, op, userID string, fn func(cart *domain.Cart, now time.Time) error) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := r.clock().UTC()
	var updated domain.Cart

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		ref := client.Collection(cartsCollection).Doc(uid)

		cart := domain.Cart{UserID: uid}
		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			// fresh cart
		case codes.OK:
			var doc cartDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode cart %s: %w", uid, err)
			}
			cart = doc.toDomain(uid)
		default:
			return err
		}

		if err := fn(&cart, now); err != nil {
			return err
		}
		cart.UpdatedAt = now

		if err := tx.Set(ref, newCartDocument(cart)); err != nil {
			return err
		}
		updated = cart
		return nil
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			return domain.Cart{}, err
		}
		return domain.Cart{}, pfirestore.WrapError(op, err)
	}
	return updated, nil
}

func equalVariant(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Document mapping ----------------------------------------------------------

type cartDocument struct {
	Lines     []cartLineDocument `firestore:"lines,omitempty"`
	BuyNow    *buyNowDocument    `firestore:"buyNow,omitempty"`
	Checkout  *checkoutDocument  `firestore:"checkout,omitempty"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ID        string    `firestore:"id"`
	ProductID string    `firestore:"productId"`
	VariantID *string   `firestore:"variantId,omitempty"`
	Quantity  int       `firestore:"qty"`
	AddedAt   time.Time `firestore:"addedAt"`
}

type buyNowDocument struct {
	ProductID string    `firestore:"productId"`
	VariantID *string   `firestore:"variantId,omitempty"`
	SetAt     time.Time `firestore:"setAt"`
}

type checkoutDocument struct {
	Source          string                 `firestore:"source"`
	Lines           []resolvedLineDocument `firestore:"lines"`
	Shipping        shippingDocument       `firestore:"shipping"`
	Total           int64                  `firestore:"total"`
	Currency        string                 `firestore:"currency"`
	Provider        string                 `firestore:"provider,omitempty"`
	ProviderOrderID string                 `firestore:"providerOrderId,omitempty"`
	CreatedAt       time.Time              `firestore:"createdAt"`
}

type resolvedLineDocument struct {
	ProductID string            `firestore:"productId"`
	VariantID *string           `firestore:"variantId,omitempty"`
	Name      string            `firestore:"name"`
	SKU       string            `firestore:"sku,omitempty"`
	Options   map[string]string `firestore:"options,omitempty"`
	Quantity  int               `firestore:"qty"`
	UnitPrice int64             `firestore:"unitPrice"`
}

type shippingDocument struct {
	FullName   string `firestore:"fullName"`
	Address    string `firestore:"address"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Phone      string `firestore:"phone"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{UpdatedAt: cart.UpdatedAt.UTC()}
	for _, line := range cart.Lines {
		doc.Lines = append(doc.Lines, cartLineDocument{
			ID:        line.ID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			AddedAt:   line.AddedAt.UTC(),
		})
	}
	if cart.BuyNow != nil {
		doc.BuyNow = &buyNowDocument{
			ProductID: cart.BuyNow.ProductID,
			VariantID: cart.BuyNow.VariantID,
			SetAt:     cart.BuyNow.SetAt.UTC(),
		}
	}
	if cart.Checkout != nil {
		checkout := newCheckoutDocument(*cart.Checkout)
		doc.Checkout = &checkout
	}
	return doc
}

func newCheckoutDocument(intent domain.CheckoutIntent) checkoutDocument {
	doc := checkoutDocument{
		Source:          string(intent.Source),
		Shipping:        newShippingDocument(intent.Shipping),
		Total:           intent.Total,
		Currency:        strings.ToUpper(strings.TrimSpace(intent.Currency)),
		Provider:        intent.Provider,
		ProviderOrderID: intent.ProviderOrderID,
		CreatedAt:       intent.CreatedAt.UTC(),
	}
	for _, line := range intent.Lines {
		doc.Lines = append(doc.Lines, resolvedLineDocument{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.Name,
			SKU:       line.SKU,
			Options:   cloneStringMap(line.Options),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return doc
}

func newShippingDocument(shipping domain.ShippingInfo) shippingDocument {
	return shippingDocument{
		FullName:   strings.TrimSpace(shipping.FullName),
		Address:    strings.TrimSpace(shipping.Address),
		City:       strings.TrimSpace(shipping.City),
		PostalCode: strings.TrimSpace(shipping.PostalCode),
		Phone:      strings.TrimSpace(shipping.Phone),
	}
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	cart := domain.Cart{UserID: userID, UpdatedAt: d.UpdatedAt}
	for _, line := range d.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:        line.ID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			AddedAt:   line.AddedAt,
		})
	}
	if d.BuyNow != nil {
		cart.BuyNow = &domain.BuyNowSelection{
			ProductID: d.BuyNow.ProductID,
			VariantID: d.BuyNow.VariantID,
			SetAt:     d.BuyNow.SetAt,
		}
	}
	if d.Checkout != nil {
		intent := d.Checkout.toDomain()
		cart.Checkout = &intent
	}
	return cart
}

func (d checkoutDocument) toDomain() domain.CheckoutIntent {
	intent := domain.CheckoutIntent{
		Source:          domain.CheckoutSource(d.Source),
		Shipping:        d.Shipping.toDomain(),
		Total:           d.Total,
		Currency:        d.Currency,
		Provider:        d.Provider,
		ProviderOrderID: d.ProviderOrderID,
		CreatedAt:       d.CreatedAt,
	}
	for _, line := range d.Lines {
		intent.Lines = append(intent.Lines, domain.ResolvedLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.Name,
			SKU:       line.SKU,
			Options:   cloneStringMap(line.Options),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return intent
}

func (d shippingDocument) toDomain() domain.ShippingInfo {
	return domain.ShippingInfo{
		FullName:   d.FullName,
		Address:    d.Address,
		City:       d.City,
		PostalCode: d.PostalCode,
		Phone:      d.Phone,
	}
}
