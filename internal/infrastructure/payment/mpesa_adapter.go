package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"

	"github.com/propledger/backend/internal/domain/payment"
)

const (
	mpesaTokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	mpesaSTKPath   = "/mpesa/stkpush/v1/processrequest"

	mpesaTimestampLayout = "20060102150405"
	mpesaDescMaxLen      = 13

	// tokens are refreshed this long before the gateway expires them
	mpesaTokenSkew = time.Minute
)

// Daraja timestamps are East Africa Time
var eat = time.FixedZone("EAT", 3*60*60)

// MpesaAdapter implements payment.Gateway for Safaricom Daraja STK push
type MpesaAdapter struct {
	config     *MpesaConfig
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// MpesaOption customises an MpesaAdapter
type MpesaOption func(*MpesaAdapter)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) MpesaOption {
	return func(a *MpesaAdapter) { a.httpClient = c }
}

// WithClock replaces the clock used for timestamps and token expiry
func WithClock(now func() time.Time) MpesaOption {
	return func(a *MpesaAdapter) { a.now = now }
}

// NewMpesaAdapter creates a new M-Pesa adapter
func NewMpesaAdapter(config *MpesaConfig, opts ...MpesaOption) (*MpesaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &MpesaAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// InitiateSTKPush sends a payment prompt to the payer's handset
func (a *MpesaAdapter) InitiateSTKPush(ctx context.Context, req *payment.STKPushRequest) (*payment.STKPushResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	msisdn, err := a.NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := a.now().In(eat).Format(mpesaTimestampLayout)
	body := mpesaSTKPushRequest{
		BusinessShortCode: a.config.ShortCode,
		Password:          a.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   mpesaPayBillOnline,
		Amount:            wholeShillings(req.Amount),
		PartyA:            msisdn,
		PartyB:            a.config.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       a.config.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   truncate(req.Description, mpesaDescMaxLen),
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("mpesa: failed to marshal request: %w", err)
	}

	respBody, status, err := a.doRequest(ctx, http.MethodPost, mpesaSTKPath, bodyBytes, "Bearer "+token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		a.resetToken()
		return nil, fmt.Errorf("%w: access token rejected", payment.ErrGatewayAuthFailed)
	}
	if status >= 400 {
		return nil, requestFailed(respBody, status)
	}

	var resp mpesaSTKPushResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrGatewayInvalidResponse, err)
	}
	if resp.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: %s - %s", payment.ErrGatewayRequestFailed, resp.ResponseCode, resp.ResponseDescription)
	}
	if resp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", payment.ErrGatewayInvalidResponse)
	}

	return &payment.STKPushResponse{
		MerchantRequestID:   resp.MerchantRequestID,
		CheckoutRequestID:   resp.CheckoutRequestID,
		ResponseCode:        resp.ResponseCode,
		ResponseDescription: resp.ResponseDescription,
		CustomerMessage:     resp.CustomerMessage,
		PhoneNumber:         msisdn,
	}, nil
}

// ParseCallback decodes the Body.stkCallback envelope
func (a *MpesaAdapter) ParseCallback(payload []byte) (*payment.CallbackResult, error) {
	var env mpesaCallbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrInvalidCallback, err)
	}
	cb := env.Body.STKCallback
	if cb == nil || cb.CheckoutRequestID == "" || cb.ResultCode == nil {
		return nil, fmt.Errorf("%w: missing stkCallback fields", payment.ErrInvalidCallback)
	}

	result := &payment.CallbackResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        *cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata == nil {
		return result, nil
	}

	for _, item := range cb.CallbackMetadata.Item {
		raw := itemString(item.Value)
		switch item.Name {
		case "Amount":
			if amount, err := decimal.NewFromString(raw); err == nil {
				result.Amount = amount
			}
		case "MpesaReceiptNumber":
			result.MpesaReceiptNumber = raw
		case "TransactionDate":
			if at, err := time.ParseInLocation(mpesaTimestampLayout, raw, eat); err == nil {
				result.TransactionDate = &at
			}
		case "PhoneNumber":
			result.PhoneNumber = raw
		}
	}
	return result, nil
}

// NormalizePhone converts a Kenyan number in any common format to the
// 2547XXXXXXXX MSISDN form the gateway expects
func (a *MpesaAdapter) NormalizePhone(phone string) (string, error) {
	num, err := libphonenumber.Parse(strings.TrimSpace(phone), a.config.region())
	if err != nil {
		return "", fmt.Errorf("%w: %v", payment.ErrInvalidPhoneNumber, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %s", payment.ErrInvalidPhoneNumber, phone)
	}
	if int(num.GetCountryCode()) != libphonenumber.GetCountryCodeForRegion(a.config.region()) {
		return "", fmt.Errorf("%w: %s is not a local number", payment.ErrInvalidPhoneNumber, phone)
	}
	switch libphonenumber.GetNumberType(num) {
	case libphonenumber.MOBILE, libphonenumber.FIXED_LINE_OR_MOBILE:
	default:
		return "", fmt.Errorf("%w: %s is not a mobile number", payment.ErrInvalidPhoneNumber, phone)
	}
	return strings.TrimPrefix(libphonenumber.Format(num, libphonenumber.E164), "+"), nil
}

// accessToken returns the cached OAuth token, fetching a new one when it
// is missing or about to expire
func (a *MpesaAdapter) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.token != "" && now.Before(a.tokenExpiry) {
		return a.token, nil
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(a.config.ConsumerKey + ":" + a.config.ConsumerSecret))
	respBody, status, err := a.doRequest(ctx, http.MethodGet, mpesaTokenPath, nil, "Basic "+credentials)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("%w: HTTP %d", payment.ErrGatewayAuthFailed, status)
	}

	var resp mpesaTokenResponse
	if err := json.Unmarshal(respBody, &resp); err != nil || resp.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed token response", payment.ErrGatewayAuthFailed)
	}
	ttl, err := strconv.Atoi(resp.ExpiresIn.String())
	if err != nil || ttl <= 0 {
		ttl = 3599
	}

	a.token = resp.AccessToken
	a.tokenExpiry = now.Add(time.Duration(ttl)*time.Second - mpesaTokenSkew)
	return a.token, nil
}

func (a *MpesaAdapter) resetToken() {
	a.mu.Lock()
	a.token = ""
	a.tokenExpiry = time.Time{}
	a.mu.Unlock()
}

// password is base64(shortcode + passkey + timestamp)
func (a *MpesaAdapter) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(a.config.ShortCode + a.config.Passkey + timestamp))
}

// doRequest performs an HTTP request to the Daraja API
func (a *MpesaAdapter) doRequest(ctx context.Context, method, path string, body []byte, auth string) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.APIBaseURL()+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("mpesa: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", auth)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", payment.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("mpesa: failed to read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, fmt.Errorf("%w: HTTP %d", payment.ErrGatewayUnavailable, resp.StatusCode)
	}
	return respBody, resp.StatusCode, nil
}

func requestFailed(body []byte, status int) error {
	var errResp mpesaErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.ErrorCode != "" {
		return fmt.Errorf("%w: %s - %s", payment.ErrGatewayRequestFailed, errResp.ErrorCode, errResp.ErrorMessage)
	}
	return fmt.Errorf("%w: HTTP %d", payment.ErrGatewayRequestFailed, status)
}

// wholeShillings rounds up to the next shilling
func wholeShillings(amount decimal.Decimal) int64 {
	return amount.Ceil().IntPart()
}

// itemString renders a metadata value without JSON quoting. Large numbers
// such as phone numbers and dates keep every digit.
func itemString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ payment.Gateway = (*MpesaAdapter)(nil)
