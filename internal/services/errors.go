package services

import "errors"

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutInvalidShipping indicates the shipping destination failed validation.
	ErrCheckoutInvalidShipping = errors.New("checkout: invalid shipping")
	// ErrCheckoutEmpty indicates there is nothing to check out for the user.
	ErrCheckoutEmpty = errors.New("checkout: nothing to check out")
	// ErrCheckoutProductNotFound indicates a cart or buy-now line references a missing product or variant.
	ErrCheckoutProductNotFound = errors.New("checkout: product not found")
	// ErrCheckoutInsufficientStock indicates stock could not cover every resolved line.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")

	// ErrPaymentVerificationFailed indicates the callback signature or amount did not verify.
	ErrPaymentVerificationFailed = errors.New("payment: verification failed")
	// ErrPaymentUnavailable indicates the payment provider could not be reached; the caller may retry.
	ErrPaymentUnavailable = errors.New("payment: provider unavailable")

	// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller lacks rights over the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidTransition indicates the requested status change is not legal from the current status.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderNotCancellable indicates the order has progressed past the point of cancellation.
	ErrOrderNotCancellable = errors.New("order: not cancellable")
	// ErrRefundFailed indicates the provider refund failed and the cancellation was aborted.
	ErrRefundFailed = errors.New("order: refund failed")

	// ErrCatalogInvalidInput indicates invalid catalog write parameters.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogProductNotFound indicates the requested product does not exist.
	ErrCatalogProductNotFound = errors.New("catalog: product not found")

	// ErrCartInvalidInput indicates invalid cart mutation parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartLineNotFound indicates the referenced cart line does not exist.
	ErrCartLineNotFound = errors.New("cart: line not found")
)
