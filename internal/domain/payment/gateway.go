// Package payment models mobile money push payments and the port the
// gateway adapter implements.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Gateway Errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidPhoneNumber     = errors.New("payment: invalid phone number")
	ErrInvalidAmount          = errors.New("payment: invalid payment amount")
	ErrInvalidAccountRef      = errors.New("payment: invalid account reference")
	ErrGatewayUnavailable     = errors.New("payment: gateway temporarily unavailable")
	ErrGatewayRequestFailed   = errors.New("payment: gateway request failed")
	ErrGatewayInvalidResponse = errors.New("payment: invalid gateway response")
	ErrGatewayAuthFailed      = errors.New("payment: gateway authentication failed")
	ErrInvalidCallback        = errors.New("payment: invalid callback payload")
)

// Gateway result codes with a dedicated status
const (
	ResultCodeSuccess   = 0
	ResultCodeCancelled = 1032
	ResultCodeExpired   = 1037
)

// STKPushRequest asks the gateway to prompt a phone for payment
type STKPushRequest struct {
	// PhoneNumber is the payer in any common Kenyan format
	PhoneNumber string
	// Amount in whole KES; the gateway rejects fractions
	Amount decimal.Decimal
	// AccountReference is the invoice number or billing account reference
	AccountReference string
	// Description is shown on the payer's handset
	Description string
}

// Validate validates the push request
func (r *STKPushRequest) Validate() error {
	if r.PhoneNumber == "" {
		return ErrInvalidPhoneNumber
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if r.AccountReference == "" {
		return ErrInvalidAccountRef
	}
	return nil
}

// STKPushResponse is the gateway's acknowledgement of a push
type STKPushResponse struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
	// PhoneNumber is the normalised MSISDN the push was sent to
	PhoneNumber string
}

// CallbackResult is a parsed asynchronous gateway result
type CallbackResult struct {
	MerchantRequestID  string
	CheckoutRequestID  string
	ResultCode         int
	ResultDesc         string
	Amount             decimal.Decimal
	MpesaReceiptNumber string
	TransactionDate    *time.Time
	PhoneNumber        string
}

// IsSuccess reports whether the payer completed the payment
func (c *CallbackResult) IsSuccess() bool {
	return c.ResultCode == ResultCodeSuccess
}

// Gateway is the port implemented by the mobile money adapter
type Gateway interface {
	// InitiateSTKPush authenticates and sends a push prompt
	InitiateSTKPush(ctx context.Context, req *STKPushRequest) (*STKPushResponse, error)

	// ParseCallback decodes a callback body
	ParseCallback(payload []byte) (*CallbackResult, error)
}
