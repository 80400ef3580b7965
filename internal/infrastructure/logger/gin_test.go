package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGinMiddleware_LevelsByStatus(t *testing.T) {
	log, logs := observed()
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ginRequestIDKey, "req-7"); c.Next() }, GinMiddleware(log))
	r.GET("/invoices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/invoices/42?page=2", "/missing", "/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)

	first := entries[0].ContextMap()
	assert.Equal(t, "req-7", first["request_id"])
	assert.Equal(t, "/invoices/:id", first["route"])
	assert.Equal(t, "page=2", first["query"])
	assert.EqualValues(t, http.StatusOK, first["status"])
}

func TestGinMiddleware_HandlersShareTheRequestLogger(t *testing.T) {
	log, logs := observed()
	r := gin.New()
	r.Use(GinMiddleware(log))
	r.POST("/jobs/reminders", func(c *gin.Context) {
		ctx := WithPrincipal(c.Request.Context(), "admin-1", "admin")
		c.Request = c.Request.WithContext(ctx)
		L(ctx).Info("reminders triggered")
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/jobs/reminders", nil))

	require.Equal(t, 2, logs.Len())
	for _, e := range logs.All() {
		assert.Equal(t, "admin-1", e.ContextMap()["user_id"], e.Message)
		assert.Equal(t, "/jobs/reminders", e.ContextMap()["path"], e.Message)
	}
}

func TestRecovery(t *testing.T) {
	log, logs := observed()
	r := gin.New()
	r.Use(Recovery(log))
	r.GET("/panic", func(*gin.Context) { panic("nil invoice") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_INTERNAL")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "nil invoice", logs.All()[0].ContextMap()["panic"])
}

func TestRecovery_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
