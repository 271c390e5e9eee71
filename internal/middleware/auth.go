package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"transit/internal/service"
)

const (
	// ActorKey is the gin context key holding the authenticated user ID.
	ActorKey = "actor_id"

	userIDClaim = "user_id"
)

// AuthMiddleware verifies HS256 bearer tokens.
type AuthMiddleware struct {
	secret []byte
	issuer string
	log    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. An empty issuer skips
// the issuer check.
func NewAuthMiddleware(secret, issuer string, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(secret),
		issuer: issuer,
		log:    log,
	}
}

// Handler rejects requests without a valid token and stores the token's
// user ID on the request context for auditing.
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		userID, err := m.parse(tokenString)
		if err != nil {
			m.log.Warn("rejected token",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(ActorKey, userID)
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), userID))
		c.Next()
	}
}

func (m *AuthMiddleware) parse(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	userID, ok := claims[userIDClaim].(string)
	if !ok || userID == "" {
		userID, err = claims.GetSubject()
		if err != nil || userID == "" {
			return "", errors.New("token has no user id")
		}
	}
	// Audit rows reference the actor as a UUID.
	if err := uuid.Validate(userID); err != nil {
		return "", fmt.Errorf("token user id: %w", err)
	}
	return userID, nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
