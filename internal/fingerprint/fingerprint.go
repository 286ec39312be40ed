// Package fingerprint identifies the caller's browser in two ways: a random
// profile id kept in a long-lived cookie, which owns task registries, and a
// device id hashed from request signals, which gates the free credits.
package fingerprint

import (
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	CookieName = "ft_profile_id"
	// CookieMaxAge is one year in seconds.
	CookieMaxAge = 365 * 24 * 60 * 60

	// ClientHintsHeader carries browser-side signals: screen, timezone,
	// hardware concurrency and platform.
	ClientHintsHeader = "X-Client-Hints"

	DeviceIDKey  = "device_id"
	ProfileIDKey = "profile_id"

	idLength = 32
)

// Compute hashes the normalised request signals with BLAKE2b-256 and returns
// the first 32 hex characters.
func Compute(r *http.Request) string {
	signals := []string{
		normalise(r.UserAgent()),
		normalise(r.Header.Get("Accept-Language")),
		normalise(r.Header.Get(ClientHintsHeader)),
	}
	sum := blake2b.Sum256([]byte(strings.Join(signals, "\n")))
	return hex.EncodeToString(sum[:])[:idLength]
}

func normalise(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NewProfileID returns a random id in the same 32 hex character shape.
func NewProfileID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Valid reports whether id has the shape Compute and NewProfileID produce.
func Valid(id string) bool {
	if len(id) != idLength {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Middleware computes the device id for every request and resolves the
// profile id, reusing a well-formed cookie and issuing a new one otherwise.
// The device id is never read from the client.
func Middleware(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		profileID, err := c.Cookie(CookieName)
		if err != nil || !Valid(profileID) {
			profileID = NewProfileID()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CookieName, profileID, CookieMaxAge, "/", "", secure, true)
		}
		c.Set(ProfileIDKey, profileID)
		c.Set(DeviceIDKey, Compute(c.Request))
		c.Next()
	}
}

// DeviceID returns the signal hash computed by Middleware.
func DeviceID(c *gin.Context) string {
	return c.GetString(DeviceIDKey)
}

// ProfileID returns the cookie id resolved by Middleware.
func ProfileID(c *gin.Context) string {
	return c.GetString(ProfileIDKey)
}
