package dto

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusOf(ErrCodeFixedLeasePeriod))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(ErrCodeTokenExpired))
	assert.Equal(t, http.StatusConflict, StatusOf(ErrCodeAlreadyDisbursed))
	assert.Equal(t, http.StatusConflict, StatusOf(ErrCodeConcurrencyConflict))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(ErrCodeInvalidState))
	assert.Equal(t, http.StatusTooManyRequests, StatusOf(ErrCodeRateLimited))
	assert.Equal(t, http.StatusBadGateway, StatusOf(ErrCodeGateway))
	assert.Equal(t, http.StatusInternalServerError, StatusOf("SOMETHING_ELSE"))
}

func TestAPICode(t *testing.T) {
	tests := map[string]string{
		"NOT_FOUND":              ErrCodeNotFound,
		"INVALID_INVOICE_NUMBER": ErrCodeInvalidInput,
		"INVALID_ROLE":           ErrCodeInvalidInput,
		"FIXED_LEASE_PERIOD":     ErrCodeFixedLeasePeriod,
		"ALREADY_PROCESSED":      ErrCodeAlreadyProcessed,
		"GATEWAY_ERROR":          ErrCodeGateway,
		ErrCodeNotFound:          ErrCodeNotFound,
		"CUSTOM_ERROR":           "CUSTOM_ERROR",
	}
	for in, want := range tests {
		assert.Equal(t, want, APICode(in), in)
	}
}

func TestRegistry_DomainCodesAreUnique(t *testing.T) {
	seen := map[string]string{}
	for api, info := range registry {
		assert.True(t, strings.HasPrefix(api, "ERR_"), api)
		assert.NotZero(t, info.status, api)
		for _, d := range info.domain {
			prev, dup := seen[d]
			assert.False(t, dup, "%s maps to both %s and %s", d, prev, api)
			seen[d] = api
		}
	}
}

func TestFail(t *testing.T) {
	before := time.Now()
	resp := Fail("ALREADY_DISBURSED", "Invoice has already been disbursed", "req-1")

	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeAlreadyDisbursed, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	assert.False(t, resp.Error.Timestamp.Before(before))

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"success":false`)
	assert.NotContains(t, string(data), `"data"`)
}

func TestInvalid(t *testing.T) {
	resp := Invalid("Validation failed", "req-2", []ValidationDetail{
		{Field: "invoice_id", Message: "is required"},
		{Field: "amount", Message: "must be positive"},
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Len(t, resp.Error.Details, 2)
	assert.Equal(t, "invoice_id", resp.Error.Details[0].Field)
}

func TestPage(t *testing.T) {
	tests := []struct {
		total     int64
		pageSize  int
		wantPages int
		wantSize  int
	}{
		{100, 10, 10, 10},
		{101, 10, 11, 10},
		{0, 10, 0, 10},
		{9, 10, 1, 10},
		{100, 0, 5, DefaultPageSize},
		{100, -1, 5, DefaultPageSize},
	}
	for _, tt := range tests {
		resp := Page([]string{}, tt.total, 1, tt.pageSize)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, tt.wantPages, resp.Meta.TotalPages)
		assert.Equal(t, tt.wantSize, resp.Meta.PageSize)
	}
}
