package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	paymentapp "github.com/propledger/backend/internal/application/payment"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DefaultStreamHeartbeat is the interval between keep-alive comments on a status stream
const DefaultStreamHeartbeat = 15 * time.Second

// maxCallbackBytes bounds a gateway callback body
const maxCallbackBytes = 64 << 10

// MpesaService drives STK push payments
type MpesaService interface {
	Initiate(ctx context.Context, p identity.Principal, cmd paymentapp.InitiateCommand) (*paymentapp.InitiateResult, error)
	HandleCallback(ctx context.Context, body []byte) (*paymentapp.CallbackAck, error)
	Watch(ctx context.Context, p identity.Principal, checkoutRequestID string) (*paymentapp.WatchResult, error)
}

// InitiateRequest is the body of POST /payments/mpesa/stk
type InitiateRequest struct {
	TransactionType payment.TransactionType `json:"transaction_type" binding:"required,oneof=tenant_payment billing_invoice"`
	InvoiceID       uuid.UUID               `json:"invoice_id" binding:"required"`
	PhoneNumber     string                  `json:"phone_number" binding:"required,max=20"`
}

// PaymentHandler handles the M-Pesa push, callback and status stream
type PaymentHandler struct {
	BaseHandler
	service   MpesaService
	heartbeat time.Duration
}

// NewPaymentHandler creates a new PaymentHandler. A non-positive heartbeat
// uses DefaultStreamHeartbeat.
func NewPaymentHandler(service MpesaService, heartbeat time.Duration) *PaymentHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultStreamHeartbeat
	}
	return &PaymentHandler{service: service, heartbeat: heartbeat}
}

// Initiate sends an STK push for a tenant or billing invoice
func (h *PaymentHandler) Initiate(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	var req InitiateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.service.Initiate(c.Request.Context(), p, paymentapp.InitiateCommand{
		Type:        req.TransactionType,
		InvoiceID:   req.InvoiceID,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Callback receives the gateway webhook. It is unauthenticated. Failures
// answer with an error status so the gateway retries; duplicates are acked
// with success false.
func (h *PaymentHandler) Callback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBytes))
	if err != nil {
		h.BadRequest(c, "Unreadable callback body")
		return
	}

	ack, err := h.service.HandleCallback(c.Request.Context(), body)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

type watchOutcome struct {
	result *paymentapp.WatchResult
	err    error
}

// streamError is the data of an error event on an open stream
type streamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stream follows a transaction over server-sent events and ends with
// exactly one terminal event: success, failed or timeout. Lookup failures
// before the first byte is written are reported as a normal JSON error.
func (h *PaymentHandler) Stream(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}
	checkoutID := c.Param("checkoutId")
	if checkoutID == "" {
		h.BadRequest(c, "Invalid checkoutId")
		return
	}

	ctx := c.Request.Context()
	done := make(chan watchOutcome, 1)
	go func() {
		r, err := h.service.Watch(ctx, p, checkoutID)
		done <- watchOutcome{result: r, err: err}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	log := logger.L(ctx).With(zap.String("checkout_request_id", checkoutID))
	started := false
	for {
		select {
		case <-ctx.Done():
			log.Debug("status stream client disconnected")
			return
		case out := <-done:
			if out.err != nil {
				if !started {
					h.HandleError(c, out.err)
					return
				}
				log.Warn("status stream failed", zap.Error(out.err))
				code, message := errorCode(out.err)
				writeEvent(c, "error", checkoutID, streamError{Code: code, Message: message})
				return
			}
			if !started {
				startStream(c)
			}
			writeEvent(c, string(out.result.Outcome), checkoutID, out.result)
			log.Info("status stream finished", zap.String("outcome", string(out.result.Outcome)))
			return
		case <-ticker.C:
			if !started {
				startStream(c)
				started = true
			}
			fmt.Fprintf(c.Writer, ": heartbeat %d\n\n", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

func startStream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
}

func writeEvent(c *gin.Context, event, id string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(c.Writer, "event: %s\nid: %s\ndata: %s\n\n", event, id, data)
	c.Writer.Flush()
}
