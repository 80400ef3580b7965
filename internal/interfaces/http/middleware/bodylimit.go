package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propledger/backend/internal/interfaces/http/dto"
)

// BodyLimit caps request bodies at limit bytes. Declared lengths above the
// cap are refused up front with 413. Chunked bodies fail on read instead.
func BodyLimit(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			resp := dto.Fail(dto.ErrCodeBadRequest, "Request body exceeds maximum allowed size", GetRequestID(c))
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
