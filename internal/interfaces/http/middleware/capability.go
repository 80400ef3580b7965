package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/interfaces/http/dto"
)

// Authorizer checks role capabilities
type Authorizer interface {
	Allows(role identity.Role, c identity.Capability) bool
}

// CapabilityGuard builds RequireCapability handlers against one table
type CapabilityGuard struct {
	table  Authorizer
	logger *zap.Logger
}

// NewCapabilityGuard creates a guard. A nil table uses the default grants.
func NewCapabilityGuard(table Authorizer, logger *zap.Logger) *CapabilityGuard {
	if table == nil {
		table = identity.NewDefaultCapabilityTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapabilityGuard{table: table, logger: logger}
}

// Require aborts with 403 unless the caller's role holds action on resource.
// Property scope is enforced by the application services.
func (g *CapabilityGuard) Require(action identity.Action, resource identity.Resource) gin.HandlerFunc {
	want := identity.Can(action, resource)
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.Fail(dto.ErrCodeUnauthorized, "Authentication required", GetRequestID(c)))
			return
		}
		if !g.table.Allows(p.Role, want) {
			g.logger.Info("capability denied",
				zap.String("user_id", p.UserID.String()),
				zap.String("role", string(p.Role)),
				zap.String("capability", want.Code()),
			)
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.Fail(dto.ErrCodeForbidden, "You are not allowed to "+string(action)+" "+string(resource), GetRequestID(c)))
			return
		}
		c.Next()
	}
}
