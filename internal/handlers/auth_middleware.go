package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/english-practice-service/internal/config"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/services"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
)

const casdoorProvider = "casdoor"

// AuthMiddleware accepts tokens issued by the login endpoint and, when
// configured, tokens issued by Casdoor. Casdoor users are provisioned on
// first sight.
type AuthMiddleware struct {
	auth   services.AuthService
	client *casdoorsdk.Client
	logger utils.Logger
}

func NewAuthMiddleware(auth services.AuthService, cfg config.CasdoorConfig, logger utils.Logger) *AuthMiddleware {
	am := &AuthMiddleware{auth: auth, logger: logger}
	if cfg.Enabled() {
		am.client = casdoorsdk.NewClient(
			cfg.Endpoint,
			cfg.ClientID,
			cfg.ClientSecret,
			cfg.Cert,
			cfg.Organization,
			cfg.Application,
		)
	}
	return am
}

// Authenticate returns a Gin middleware that rejects requests without a
// valid bearer token.
func (am *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "authorization header missing"})
			return
		}

		tokenParts := strings.Fields(authHeader)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "invalid authorization header format"})
			return
		}

		profile, err := am.resolve(c.Request.Context(), tokenParts[1])
		if err != nil {
			utils.GetLogger(c, am.logger).Debug("Token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "invalid token",
				Details: err.Error(),
			})
			return
		}

		c.Set("user_id", profile.Username)
		c.Set("user", profile)
		c.Set("user_role", profile.Role)
		c.Next()
	}
}

// resolve maps a token to the current profile of its user, so deleted
// accounts and role changes take effect before the token expires.
func (am *AuthMiddleware) resolve(ctx context.Context, token string) (*models.Profile, error) {
	claims, err := am.auth.ParseToken(token)
	if err == nil {
		return am.auth.Me(ctx, claims.Subject)
	}
	if am.client == nil {
		return nil, err
	}

	casdoorClaims, casdoorErr := am.client.ParseJwtToken(token)
	if casdoorErr != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidToken, casdoorErr)
	}

	user, err := am.auth.ProvisionExternalUser(ctx, services.ExternalIdentity{
		Provider: casdoorProvider,
		Username: casdoorClaims.User.Name,
		Name:     casdoorClaims.User.DisplayName,
		Email:    casdoorClaims.User.Email,
		Role:     mapCasdoorRole(casdoorClaims.User.Type),
	})
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// RequireRoleMiddleware checks if user has required role. Admins always pass.
func (am *AuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Message: "user role not found in context"})
			return
		}

		role, ok := userRole.(models.UserRole)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Message: "invalid user role format"})
			return
		}

		for _, requiredRole := range requiredRoles {
			if role == requiredRole || role == models.RoleAdmin {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Message: fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
		})
	}
}

// mapCasdoorRole maps a Casdoor user type to a role
func mapCasdoorRole(casdoorType string) models.UserRole {
	switch strings.ToLower(casdoorType) {
	case "admin", "administrator":
		return models.RoleAdmin
	case "teacher", "instructor", "educator":
		return models.RoleTeacher
	default:
		return models.RoleStudent
	}
}
