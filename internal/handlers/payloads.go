package handlers

import (
	domain "github.com/devki-mart/api/internal/domain"
)

type productPayload struct {
	ID              string `json:"id"`
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
	Price           int64  `json:"price"`
	Currency        string `json:"currency"`
	Stock           int    `json:"stock"`
	HasVariants     bool   `json:"hasVariants"`
	Active          bool   `json:"active"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

type variantPayload struct {
	ID      string            `json:"id"`
	SKU     string            `json:"sku"`
	Options map[string]string `json:"options,omitempty"`
	Price   *int64            `json:"price,omitempty"`
	Stock   int               `json:"stock"`
	Active  bool              `json:"active"`
}

type cartLinePayload struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Quantity  int     `json:"quantity"`
	AddedAt   string  `json:"addedAt,omitempty"`
}

type buyNowPayload struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	SetAt     string  `json:"setAt,omitempty"`
}

type shippingPayload struct {
	FullName   string `json:"fullName"`
	Address    string `json:"address"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
}

type resolvedLinePayload struct {
	ProductID string            `json:"productId"`
	VariantID *string           `json:"variantId,omitempty"`
	Name      string            `json:"name"`
	SKU       string            `json:"sku,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
	Quantity  int               `json:"quantity"`
	UnitPrice int64             `json:"unitPrice"`
	Total     int64             `json:"total"`
}

type checkoutPayload struct {
	Source          string                `json:"source"`
	Lines           []resolvedLinePayload `json:"lines"`
	Shipping        shippingPayload       `json:"shipping"`
	Total           int64                 `json:"total"`
	Currency        string                `json:"currency"`
	Provider        string                `json:"provider,omitempty"`
	ProviderOrderID string                `json:"providerOrderId,omitempty"`
	CreatedAt       string                `json:"createdAt,omitempty"`
}

type cartPayload struct {
	Lines     []cartLinePayload `json:"lines"`
	BuyNow    *buyNowPayload    `json:"buyNow,omitempty"`
	Checkout  *checkoutPayload  `json:"checkout,omitempty"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type orderLinePayload struct {
	ProductID string            `json:"productId"`
	VariantID *string           `json:"variantId,omitempty"`
	Name      string            `json:"name"`
	SKU       string            `json:"sku,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
	Quantity  int               `json:"quantity"`
	UnitPrice int64             `json:"unitPrice"`
	Total     int64             `json:"total"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	Number            string             `json:"number"`
	Status            string             `json:"status"`
	PaymentMethod     string             `json:"paymentMethod"`
	Paid              bool               `json:"paid"`
	Lines             []orderLinePayload `json:"lines"`
	Shipping          shippingPayload    `json:"shipping"`
	Total             int64              `json:"total"`
	Currency          string             `json:"currency"`
	AssignedAgentID   *string            `json:"assignedAgentId,omitempty"`
	ProviderOrderID   *string            `json:"providerOrderId,omitempty"`
	ProviderPaymentID *string            `json:"providerPaymentId,omitempty"`
	ProviderRefundID  *string            `json:"providerRefundId,omitempty"`
	CreatedAt         string             `json:"createdAt,omitempty"`
	PaidAt            string             `json:"paidAt,omitempty"`
	OutForDeliveryAt  string             `json:"outForDeliveryAt,omitempty"`
	DeliveredAt       string             `json:"deliveredAt,omitempty"`
	CancelledAt       string             `json:"cancelledAt,omitempty"`
}

type agentPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Active bool   `json:"active"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:              product.ID,
		Slug:            product.Slug,
		Name:            product.Name,
		Description:     product.Description,
		DescriptionHTML: product.DescriptionHTML,
		Price:           product.Price,
		Currency:        product.Currency,
		Stock:           product.Stock,
		HasVariants:     product.HasVariants,
		Active:          product.Active,
		CreatedAt:       formatTime(product.CreatedAt),
		UpdatedAt:       formatTime(product.UpdatedAt),
	}
}

func buildVariantPayload(variant domain.ProductVariant) variantPayload {
	return variantPayload{
		ID:      variant.ID,
		SKU:     variant.SKU,
		Options: variant.Options,
		Price:   variant.Price,
		Stock:   variant.Stock,
		Active:  variant.Active,
	}
}

func buildShippingPayload(shipping domain.ShippingInfo) shippingPayload {
	return shippingPayload{
		FullName:   shipping.FullName,
		Address:    shipping.Address,
		City:       shipping.City,
		PostalCode: shipping.PostalCode,
		Phone:      shipping.Phone,
	}
}

func buildCheckoutPayload(intent domain.CheckoutIntent) checkoutPayload {
	payload := checkoutPayload{
		Source:          string(intent.Source),
		Shipping:        buildShippingPayload(intent.Shipping),
		Total:           intent.Total,
		Currency:        intent.Currency,
		Provider:        intent.Provider,
		ProviderOrderID: intent.ProviderOrderID,
		CreatedAt:       formatTime(intent.CreatedAt),
	}
	for _, line := range intent.Lines {
		payload.Lines = append(payload.Lines, resolvedLinePayload{
			ProductID: line.ProductID,
			VariantID: cloneStringPointer(line.VariantID),
			Name:      line.Name,
			SKU:       line.SKU,
			Options:   line.Options,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total(),
		})
	}
	return payload
}

func buildCartPayload(cart domain.Cart) cartPayload {
	payload := cartPayload{
		Lines:     make([]cartLinePayload, 0, len(cart.Lines)),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	for _, line := range cart.Lines {
		payload.Lines = append(payload.Lines, cartLinePayload{
			ID:        line.ID,
			ProductID: line.ProductID,
			VariantID: cloneStringPointer(line.VariantID),
			Quantity:  line.Quantity,
			AddedAt:   formatTime(line.AddedAt),
		})
	}
	if cart.BuyNow != nil {
		payload.BuyNow = &buyNowPayload{
			ProductID: cart.BuyNow.ProductID,
			VariantID: cloneStringPointer(cart.BuyNow.VariantID),
			SetAt:     formatTime(cart.BuyNow.SetAt),
		}
	}
	if cart.Checkout != nil {
		checkout := buildCheckoutPayload(*cart.Checkout)
		payload.Checkout = &checkout
	}
	return payload
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:                order.ID,
		Number:            order.Number,
		Status:            string(order.Status),
		PaymentMethod:     string(order.PaymentMethod),
		Paid:              order.Paid,
		Shipping:          buildShippingPayload(order.Shipping),
		Total:             order.Total,
		Currency:          order.Currency,
		AssignedAgentID:   cloneStringPointer(order.AssignedAgentID),
		ProviderOrderID:   cloneStringPointer(order.ProviderOrderID),
		ProviderPaymentID: cloneStringPointer(order.ProviderPaymentID),
		ProviderRefundID:  cloneStringPointer(order.ProviderRefundID),
		CreatedAt:         formatTime(order.CreatedAt),
		PaidAt:            formatTimePointer(order.PaidAt),
		OutForDeliveryAt:  formatTimePointer(order.OutForDeliveryAt),
		DeliveredAt:       formatTimePointer(order.DeliveredAt),
		CancelledAt:       formatTimePointer(order.CancelledAt),
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ProductID: line.ProductID,
			VariantID: cloneStringPointer(line.VariantID),
			Name:      line.Name,
			SKU:       line.SKU,
			Options:   line.Options,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	return payload
}

func buildAgentPayload(agent domain.DeliveryAgent) agentPayload {
	return agentPayload{
		ID:     agent.ID,
		Name:   agent.Name,
		Email:  agent.Email,
		Phone:  agent.Phone,
		Active: agent.Active,
	}
}
