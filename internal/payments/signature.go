package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignCallback computes the hex HMAC-SHA256 over "<orderID>|<paymentID>"
// with the provider's signing secret. This matches the signature format the
// payment widget posts back after the customer authorises a payment.
func SignCallback(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyCallbackSignature(secret string, req SignatureRequest) error {
	orderID := strings.TrimSpace(req.OrderID)
	paymentID := strings.TrimSpace(req.PaymentID)
	signature := strings.TrimSpace(req.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrSignatureMismatch
	}

	expected := SignCallback(secret, orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}
