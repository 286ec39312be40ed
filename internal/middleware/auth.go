package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"facetalk-backend/internal/config"
)

const (
	UserIDKey    = "user_id"
	AnonymousKey = "is_anonymous"
)

var (
	errMissingHeader = errors.New("missing authorization header")
	errHeaderFormat  = errors.New("invalid authorization header format")
	errTokenFormat   = errors.New("JWT token must have 3 parts separated by dots")
	errMissingSub    = errors.New("missing user id in token")
)

type identity struct {
	userID    string
	anonymous bool
}

// AuthMiddleware requires a valid Supabase access token. Both anonymous and
// registered sessions are accepted.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := authenticate(cfg.SupabaseJWTSecret, c.GetHeader("Authorization"))
		if err != nil {
			unauthorized(c, err)
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// OptionalAuth identifies the caller when an Authorization header is sent
// and lets unauthenticated requests through. A header that is present but
// invalid is still rejected.
func OptionalAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		id, err := authenticate(cfg.SupabaseJWTSecret, c.GetHeader("Authorization"))
		if err != nil {
			unauthorized(c, err)
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// RequireRegistered rejects anonymous sessions. It must run after
// AuthMiddleware.
func RequireRegistered() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok || IsAnonymous(c) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "registered account required",
				"message": "sign in with a registered account to continue",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, if any.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func IsAnonymous(c *gin.Context) bool {
	return c.GetBool(AnonymousKey)
}

func setIdentity(c *gin.Context, id identity) {
	c.Set(UserIDKey, id.userID)
	c.Set(AnonymousKey, id.anonymous)
}

func unauthorized(c *gin.Context, err error) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "message": err.Error()})
	c.Abort()
}

func authenticate(secret, authHeader string) (identity, error) {
	if authHeader == "" {
		return identity{}, errMissingHeader
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return identity{}, errHeaderFormat
	}
	userID, anonymous, err := VerifyToken(secret, parts[1])
	if err != nil {
		return identity{}, err
	}
	return identity{userID: userID, anonymous: anonymous}, nil
}

// VerifyToken checks a Supabase access token without the "Bearer " prefix
// and returns its subject and is_anonymous claim.
func VerifyToken(secret, tokenString string) (userID string, anonymous bool, err error) {
	tokenString = strings.TrimSpace(tokenString)

	// Some clients URL-encode the token.
	if decoded, err := url.QueryUnescape(tokenString); err == nil {
		tokenString = decoded
	}
	if len(strings.Split(tokenString, ".")) != 3 {
		return "", false, errTokenFormat
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		if secret == "" {
			return nil, jwt.ErrSignatureInvalid
		}
		// Supabase JWT secret is used directly as the signing key
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", false, errors.New("token signature is invalid - check JWT secret")
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", false, errors.New("token has expired")
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", false, errors.New("token is malformed - ensure you're using a valid Supabase JWT token")
		}
		return "", false, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", false, errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", false, errMissingSub
	}
	anonymous, _ = claims["is_anonymous"].(bool)

	return sub, anonymous, nil
}
