package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"facetalk-backend/internal/config"
	"facetalk-backend/internal/models"
	"facetalk-backend/internal/replicate"
	"facetalk-backend/internal/telemetry"
)

// Replicate prediction ids are lowercase base32; mixed case is allowed here.
var predictionIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// PredictionReader reads a Replicate job.
type PredictionReader interface {
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

type StatusHandler struct {
	config *config.Config
	client PredictionReader
}

func NewStatusHandler(cfg *config.Config, client PredictionReader) *StatusHandler {
	return &StatusHandler{
		config: cfg,
		client: client,
	}
}

// CheckPrediction godoc
// @Summary     Read a prediction
// @Description Returns the Replicate prediction record unmodified. A timeout answers 408 with retryable=true.
// @Tags        generation
// @Produce     json
// @Security    Bearer
// @Param       id query string true "Prediction id (letters and digits)"
// @Success     200 {object} map[string]interface{}
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     408 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Router      /check-prediction [get]
func (h *StatusHandler) CheckPrediction(c *gin.Context) {
	if !requireToken(c, h.config) {
		return
	}

	id := c.Query("id")
	if id == "" {
		badRequest(c, "Prediction id is required")
		return
	}
	if !predictionIDPattern.MatchString(id) {
		badRequest(c, "Invalid prediction id")
		return
	}

	prediction, err := h.client.GetPrediction(c.Request.Context(), id)
	if err == nil {
		c.Data(http.StatusOK, "application/json; charset=utf-8", prediction.Raw)
		return
	}

	var apiErr *replicate.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		telemetry.UpstreamErrors.WithLabelValues("status", "4xx").Inc()
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "Prediction not found or expired",
			Message: apiErr.Detail,
		})
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
		telemetry.UpstreamErrors.WithLabelValues("status", "429").Inc()
		c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
			Error:     "Rate limited",
			Message:   "Too many status checks, please slow down",
			Retryable: true,
		})
	case errors.Is(err, replicate.ErrTimeout):
		telemetry.UpstreamErrors.WithLabelValues("status", "timeout").Inc()
		c.JSON(http.StatusRequestTimeout, models.ErrorResponse{
			Error:     "Status check timed out",
			Message:   "Replicate did not answer within 15 seconds",
			Retryable: true,
		})
	default:
		respondUpstreamError(c, "status", err)
	}
}
