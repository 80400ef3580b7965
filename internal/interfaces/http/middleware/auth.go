package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/infrastructure/auth"
	"github.com/propledger/backend/internal/infrastructure/logger"
	"github.com/propledger/backend/internal/interfaces/http/dto"
)

// Auth context keys
const (
	PrincipalKey  = "principal"
	ClaimsKey     = "jwt_claims"
	UserIDKey     = "user_id"
	RoleKey       = "role"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

var errMissingBearer = errors.New("missing bearer token")

// TokenVerifier validates a bearer token
type TokenVerifier interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Authenticate resolves the bearer token into an identity.Principal and
// rejects the request with 401 when it is missing or invalid.
func Authenticate(verifier TokenVerifier, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if !strings.HasPrefix(header, BearerPrefix) {
			unauthorized(c, log, errMissingBearer, "Missing bearer token")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		if token == "" {
			unauthorized(c, log, auth.ErrInvalidToken, "Missing bearer token")
			return
		}

		claims, err := verifier.ValidateToken(token)
		if err != nil {
			unauthorized(c, log, err, "Token validation failed")
			return
		}
		principal, err := claims.Principal()
		if err != nil {
			unauthorized(c, log, err, "Token carries an invalid identity")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(PrincipalKey, principal)
		c.Set(UserIDKey, principal.UserID.String())
		c.Set(RoleKey, string(principal.Role))

		ctx := logger.WithPrincipal(c.Request.Context(), principal.UserID.String(), string(principal.Role))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func unauthorized(c *gin.Context, log *zap.Logger, err error, reason string) {
	log.Debug("authentication failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("reason", reason),
		zap.Error(err),
	)

	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidClaims),
		errors.Is(err, auth.ErrMissingUserID),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrTokenNotYetValid):
		code, message = dto.ErrCodeTokenInvalid, "Invalid token"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Fail(code, message, GetRequestID(c)))
}

// GetPrincipal returns the caller resolved by Authenticate
func GetPrincipal(c *gin.Context) (identity.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return identity.Principal{}, false
	}
	p, ok := v.(identity.Principal)
	return p, ok
}

// GetClaims returns the raw token claims
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
