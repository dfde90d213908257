package middleware

import (
	"net/http"
	"strings"

	"sentinal-media/internal/services"
	"sentinal-media/internal/transport/httpdto"
	sentinal_errors "sentinal-media/pkg/errors"
	"sentinal-media/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenVerifier checks HS256 bearer tokens issued by the identity service.
// The subject claim carries the uploader id.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify returns the uploader id carried by tokenString.
func (v *TokenVerifier) Verify(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, sentinal_errors.ErrUnauthorized
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, sentinal_errors.ErrUnauthorized
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return uuid.Nil, sentinal_errors.ErrUnauthorized
	}

	uploaderID, err := uuid.Parse(claims.Subject)
	if err != nil || uploaderID == uuid.Nil {
		return uuid.Nil, sentinal_errors.ErrUnauthorized
	}
	return uploaderID, nil
}

func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		uploaderID, err := verifier.Verify(extractBearer(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", sentinal_errors.CodeUnauthorized))
			c.Abort()
			return
		}

		ctx := services.WithUploaderContext(c.Request.Context(), uploaderID)
		ctx = logger.WithUserID(ctx, uploaderID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
