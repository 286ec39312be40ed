package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"facetalk-backend/internal/config"
	"facetalk-backend/internal/models"
	"facetalk-backend/internal/replicate"
	"facetalk-backend/internal/telemetry"
)

const tokenHelpURL = "https://replicate.com/account/api-tokens"

// requireToken answers 500 with remediation steps when the Replicate token
// is missing or malformed.
func requireToken(c *gin.Context, cfg *config.Config) bool {
	switch err := cfg.TokenError(); {
	case err == nil:
		return true
	case errors.Is(err, config.ErrTokenMissing):
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "REPLICATE_API_TOKEN is not set",
			Message: "Set REPLICATE_API_TOKEN in the server environment (or .env) to a token from " + tokenHelpURL + " and restart the server.",
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Invalid REPLICATE_API_TOKEN format",
			Message: "Replicate tokens start with \"" + config.ReplicateTokenPrefix + "\". Copy a fresh token from " + tokenHelpURL + " into REPLICATE_API_TOKEN and restart the server.",
		})
	}
	return false
}

// respondUpstreamError relays a failed Replicate call. The vendor's status
// is kept; authentication and rate limiting get friendlier text.
func respondUpstreamError(c *gin.Context, op string, err error) {
	var apiErr *replicate.APIError
	switch {
	case errors.As(err, &apiErr):
		telemetry.UpstreamErrors.WithLabelValues(op, telemetry.StatusClass(apiErr.StatusCode)).Inc()
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "Invalid Replicate API token",
				Message: "Replicate rejected the configured token. Check REPLICATE_API_TOKEN at " + tokenHelpURL + ".",
			})
		case http.StatusTooManyRequests:
			c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:     "Rate limited by Replicate, please retry shortly",
				Message:   apiErr.Detail,
				Retryable: true,
			})
		default:
			c.JSON(apiErr.StatusCode, models.ErrorResponse{
				Error:     "Replicate request failed",
				Message:   apiErr.Detail,
				Retryable: replicate.IsRetryable(err),
			})
		}
	case errors.Is(err, replicate.ErrTimeout):
		telemetry.UpstreamErrors.WithLabelValues(op, "timeout").Inc()
		c.JSON(http.StatusGatewayTimeout, models.ErrorResponse{
			Error:     "Replicate did not respond in time",
			Message:   err.Error(),
			Retryable: true,
		})
	default:
		telemetry.UpstreamErrors.WithLabelValues(op, "network").Inc()
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:     "Could not reach Replicate",
			Message:   err.Error(),
			Retryable: replicate.IsRetryable(err),
		})
	}
}
