package payment

import (
	"errors"
	"strings"
)

// Daraja environments
const (
	MpesaEnvSandbox    = "sandbox"
	MpesaEnvProduction = "production"

	mpesaSandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	mpesaProductionBaseURL = "https://api.safaricom.co.ke"

	// paybill transaction type for STK pushes
	mpesaPayBillOnline = "CustomerPayBillOnline"
)

// MpesaConfig contains configuration for the Daraja STK push API
type MpesaConfig struct {
	// Environment is sandbox or production
	Environment string
	// BaseURL overrides the environment's API host
	BaseURL string
	// ConsumerKey and ConsumerSecret are the app's OAuth client credentials
	ConsumerKey    string
	ConsumerSecret string
	// ShortCode is the paybill number receiving payments
	ShortCode string
	// Passkey is the Lipa na M-Pesa online passkey
	Passkey string
	// CallbackURL receives the asynchronous result
	CallbackURL string
	// CountryCode is the default region for phone numbers without a prefix
	CountryCode string
}

// Errors for configuration validation
var (
	ErrMpesaMissingConsumerKey    = errors.New("mpesa: missing consumer key")
	ErrMpesaMissingConsumerSecret = errors.New("mpesa: missing consumer secret")
	ErrMpesaMissingShortCode      = errors.New("mpesa: missing short code")
	ErrMpesaMissingPasskey        = errors.New("mpesa: missing passkey")
	ErrMpesaMissingCallbackURL    = errors.New("mpesa: missing callback URL")
	ErrMpesaInvalidEnvironment    = errors.New("mpesa: environment must be sandbox or production")
)

// Validate validates the configuration
func (c *MpesaConfig) Validate() error {
	if c.ConsumerKey == "" {
		return ErrMpesaMissingConsumerKey
	}
	if c.ConsumerSecret == "" {
		return ErrMpesaMissingConsumerSecret
	}
	if c.ShortCode == "" {
		return ErrMpesaMissingShortCode
	}
	if c.Passkey == "" {
		return ErrMpesaMissingPasskey
	}
	if c.CallbackURL == "" {
		return ErrMpesaMissingCallbackURL
	}
	switch c.Environment {
	case "", MpesaEnvSandbox, MpesaEnvProduction:
	default:
		return ErrMpesaInvalidEnvironment
	}
	return nil
}

// APIBaseURL returns the explicit base URL or the environment default
func (c *MpesaConfig) APIBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Environment == MpesaEnvProduction {
		return mpesaProductionBaseURL
	}
	return mpesaSandboxBaseURL
}

func (c *MpesaConfig) region() string {
	if c.CountryCode == "" {
		return "KE"
	}
	return strings.ToUpper(c.CountryCode)
}
