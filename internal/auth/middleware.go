package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

const claimsKey = "auth_claims"

// DefaultAllowList holds the paths that never get the single session check.
var DefaultAllowList = []string{
	"/api/v1/users/login",
	"/api/v1/users/register",
	"/api/v1/users/forgot-password",
	"/api/v1/users/reset-password-confirm",
	"/admin",
	"/api/v1/payments/create",
}

type Guard struct {
	svc       *Service
	limiter   *ActivityLimiter
	allowList []string
	log       zerolog.Logger
}

func NewGuard(svc *Service, limiter *ActivityLimiter, allowList []string) *Guard {
	return &Guard{
		svc:       svc,
		limiter:   limiter,
		allowList: allowList,
		log:       logger.Get(),
	}
}

func (g *Guard) allowed(path string) bool {
	path = strings.TrimSuffix(path, "/")
	for _, p := range g.allowList {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// Middleware resolves the bearer token of every request. For a valid
// single-device token outside the allow list it requires the token id to be
// the user's registered session and coalesces the activity update.
// Requests without a usable token pass through unauthenticated.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := g.svc.tokens.Parse(token, TokenAccess)
		if err != nil {
			c.Next()
			return
		}
		SetClaims(c, claims)

		if g.allowed(c.Request.URL.Path) {
			c.Next()
			return
		}

		if err := g.svc.Authorize(c.Request.Context(), claims); err != nil {
			if apperrors.KindOf(err) == apperrors.KindSessionExpired {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperrors.ErrSessionExpired.Error()})
				return
			}
			g.log.Error().Err(err).Int64("user_id", claims.UserID).Msg("Failed to check session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		if !claims.AllowsMultipleDevices() && (g.limiter == nil || g.limiter.Allow(c.Request.Context(), claims.ID)) {
			g.svc.Touch(c.Request.Context(), claims.ID)
		}

		c.Next()
	}
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ClaimsFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication credentials were not provided."})
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return requireRole(model.UserTypeAdmin)
}

// RequireStudent keeps exam taking to student accounts.
func RequireStudent() gin.HandlerFunc {
	return requireRole(model.UserTypeStudent)
}

func requireRole(role model.UserType) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication credentials were not provided."})
			return
		}
		if claims.UserType != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to perform this action."})
			return
		}
		c.Next()
	}
}

func SetClaims(c *gin.Context, claims *Claims) {
	c.Set(claimsKey, claims)
}

func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
