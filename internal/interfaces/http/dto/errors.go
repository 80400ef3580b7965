package dto

import "net/http"

// API error codes. Every code in this block has an entry in registry.
const (
	ErrCodeUnknown             = "ERR_UNKNOWN"
	ErrCodeInternal            = "ERR_INTERNAL"
	ErrCodeValidation          = "ERR_VALIDATION"
	ErrCodeBadRequest          = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput        = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON         = "ERR_INVALID_JSON"
	ErrCodeInvalidPeriod       = "ERR_INVALID_PERIOD"
	ErrCodeInvalidRate         = "ERR_INVALID_RATE"
	ErrCodeFixedLeasePeriod    = "ERR_FIXED_LEASE_PERIOD"
	ErrCodeUnauthorized        = "ERR_UNAUTHORIZED"
	ErrCodeForbidden           = "ERR_FORBIDDEN"
	ErrCodeTokenExpired        = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid        = "ERR_TOKEN_INVALID"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeAlreadyDisbursed    = "ERR_ALREADY_DISBURSED"
	ErrCodeAlreadyProcessed    = "ERR_ALREADY_PROCESSED"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeRateLimited         = "ERR_RATE_LIMITED"
	ErrCodeGateway             = "ERR_GATEWAY"
)

// codeInfo is the HTTP status of an API code and the domain codes that
// translate to it
type codeInfo struct {
	status int
	domain []string
}

var registry = map[string]codeInfo{
	ErrCodeUnknown:             {http.StatusInternalServerError, nil},
	ErrCodeInternal:            {http.StatusInternalServerError, []string{"INTERNAL_ERROR"}},
	ErrCodeValidation:          {http.StatusBadRequest, []string{"VALIDATION_ERROR"}},
	ErrCodeBadRequest:          {http.StatusBadRequest, []string{"BAD_REQUEST"}},
	ErrCodeInvalidInput:        {http.StatusBadRequest, []string{"INVALID_INPUT", "INVALID_INVOICE_NUMBER", "INVALID_ROLE"}},
	ErrCodeInvalidJSON:         {http.StatusBadRequest, nil},
	ErrCodeInvalidPeriod:       {http.StatusBadRequest, []string{"INVALID_PERIOD"}},
	ErrCodeInvalidRate:         {http.StatusBadRequest, []string{"INVALID_RATE"}},
	ErrCodeFixedLeasePeriod:    {http.StatusBadRequest, []string{"FIXED_LEASE_PERIOD"}},
	ErrCodeUnauthorized:        {http.StatusUnauthorized, []string{"UNAUTHORIZED"}},
	ErrCodeForbidden:           {http.StatusForbidden, []string{"FORBIDDEN"}},
	ErrCodeTokenExpired:        {http.StatusUnauthorized, nil},
	ErrCodeTokenInvalid:        {http.StatusUnauthorized, nil},
	ErrCodeNotFound:            {http.StatusNotFound, []string{"NOT_FOUND"}},
	ErrCodeAlreadyExists:       {http.StatusConflict, []string{"ALREADY_EXISTS"}},
	ErrCodeConflict:            {http.StatusConflict, []string{"CONFLICT"}},
	ErrCodeConcurrencyConflict: {http.StatusConflict, []string{"CONCURRENCY_CONFLICT"}},
	ErrCodeAlreadyDisbursed:    {http.StatusConflict, []string{"ALREADY_DISBURSED"}},
	ErrCodeAlreadyProcessed:    {http.StatusConflict, []string{"ALREADY_PROCESSED"}},
	ErrCodeInvalidState:        {http.StatusUnprocessableEntity, []string{"INVALID_STATE"}},
	ErrCodeRateLimited:         {http.StatusTooManyRequests, nil},
	ErrCodeGateway:             {http.StatusBadGateway, []string{"GATEWAY_ERROR"}},
}

// fromDomain indexes registry by domain code
var fromDomain = func() map[string]string {
	m := make(map[string]string)
	for api, info := range registry {
		for _, d := range info.domain {
			m[d] = api
		}
	}
	return m
}()

// StatusOf returns the HTTP status of an API code, 500 when unknown
func StatusOf(code string) int {
	if info, ok := registry[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// APICode translates a domain error code. API codes and unknown codes pass
// through unchanged.
func APICode(code string) string {
	if api, ok := fromDomain[code]; ok {
		return api
	}
	return code
}
