package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"facetalk-backend/internal/credits"
	"facetalk-backend/internal/fingerprint"
	"facetalk-backend/internal/middleware"
	"facetalk-backend/internal/models"
	"facetalk-backend/internal/telemetry"
)

// TaskTransferer re-keys an owner's task registry.
type TaskTransferer interface {
	Transfer(ctx context.Context, from, to string) error
}

type CreditsHandler struct {
	credits   *credits.Service
	jwtSecret string
	tasks     TaskTransferer
	logger    zerolog.Logger
}

// NewCreditsHandler builds the handler. jwtSecret verifies the anonymous
// session presented on upgrade; taskStore may be nil.
func NewCreditsHandler(creditService *credits.Service, jwtSecret string, taskStore TaskTransferer, logger zerolog.Logger) *CreditsHandler {
	return &CreditsHandler{
		credits:   creditService,
		jwtSecret: jwtSecret,
		tasks:     taskStore,
		logger:    logger.With().Str("component", "credits_handler").Logger(),
	}
}

func planResponse(p *models.UserPlan) models.PlanResponse {
	return models.PlanResponse{
		UserID:      p.UserID,
		Plan:        p.Plan,
		PointsLeft:  p.PointsLeft,
		StartDate:   p.StartDate,
		IsAnonymous: p.IsAnonymous,
	}
}

// GetCredits godoc
// @Summary     Current plan and balance
// @Description Creates the plan on first use (free credits only for devices that never claimed them) and applies the monthly refresh of paid plans.
// @Tags        credits
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.PlanResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /credits [get]
func (h *CreditsHandler) GetCredits(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	plan, err := h.credits.EnsurePlan(c.Request.Context(), userID, fingerprint.DeviceID(c), middleware.IsAnonymous(c))
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load plan")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load plan", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, planResponse(plan))
}

// Deduct godoc
// @Summary     Charge a feature
// @Description Atomically deducts the feature cost. Fails with 402 when the balance is below the cost.
// @Tags        credits
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.DeductRequest true "Feature to charge"
// @Success     200 {object} models.DeductResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     402 {object} models.ErrorResponse
// @Router      /credits/deduct [post]
func (h *CreditsHandler) Deduct(c *gin.Context) {
	var req models.DeductRequest
	if !bindJSON(c, &req) {
		return
	}
	kind, ok := models.ParseGenerationKind(req.Feature)
	if !ok {
		badRequest(c, "unknown feature")
		return
	}

	ctx := c.Request.Context()
	userID, _ := middleware.UserID(c)
	if _, err := h.credits.EnsurePlan(ctx, userID, fingerprint.DeviceID(c), middleware.IsAnonymous(c)); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load plan", Message: err.Error()})
		return
	}

	left, err := h.credits.Deduct(ctx, userID, kind)
	if err != nil {
		respondDeductError(c, kind, err)
		return
	}
	telemetry.CreditsDeducted.WithLabelValues(string(kind)).Inc()

	cost, _ := credits.Cost(kind)
	c.JSON(http.StatusOK, models.DeductResponse{Feature: string(kind), Cost: cost, PointsLeft: left})
}

// UpgradeAccount godoc
// @Summary     Claim an anonymous account
// @Description Moves an anonymous user's plan, history and tasks onto the signed-in registered account, which must not have a plan yet. The anonymous session's access token proves ownership.
// @Tags        credits
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.UpgradeAccountRequest true "Anonymous user id and access token"
// @Success     200 {object} models.PlanResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /account/upgrade [post]
func (h *CreditsHandler) UpgradeAccount(c *gin.Context) {
	var req models.UpgradeAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.AnonymousUserID == "" {
		badRequest(c, "anonymous_user_id is required")
		return
	}

	if err := h.verifyAnonymousSession(req); err != nil {
		h.logger.Warn().Err(err).Str("anonymous_user_id", req.AnonymousUserID).Msg("upgrade rejected")
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "anonymous session not verified", Message: err.Error()})
		return
	}

	ctx := c.Request.Context()
	userID, _ := middleware.UserID(c)
	plan, err := h.credits.UpgradeAnonymous(ctx, req.AnonymousUserID, userID)
	switch {
	case errors.Is(err, credits.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "anonymous account not found"})
		return
	case errors.Is(err, credits.ErrAlreadyHasPlan):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "account already has a plan"})
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to upgrade account")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to upgrade account", Message: err.Error()})
		return
	}

	// The ledger move already committed; a registry that fails to move
	// expires on its own.
	if h.tasks != nil {
		if err := h.tasks.Transfer(ctx, req.AnonymousUserID, userID); err != nil {
			h.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to transfer tasks")
		}
	}
	c.JSON(http.StatusOK, planResponse(plan))
}

var (
	errAnonymousTokenMissing = errors.New("anonymous_token is required")
	errNotAnonymousSession   = errors.New("token is not an anonymous session")
	errSessionMismatch       = errors.New("token does not belong to anonymous_user_id")
)

// verifyAnonymousSession checks that the caller holds a valid access token
// for the anonymous account being claimed.
func (h *CreditsHandler) verifyAnonymousSession(req models.UpgradeAccountRequest) error {
	if req.AnonymousToken == "" {
		return errAnonymousTokenMissing
	}
	subject, anonymous, err := middleware.VerifyToken(h.jwtSecret, req.AnonymousToken)
	if err != nil {
		return err
	}
	if !anonymous {
		return errNotAnonymousSession
	}
	if subject != req.AnonymousUserID {
		return errSessionMismatch
	}
	return nil
}

// Generations godoc
// @Summary     Generation history
// @Tags        credits
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.GenerationsResponse
// @Router      /generations [get]
func (h *CreditsHandler) Generations(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	records, err := h.credits.Generations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to list generations", Message: err.Error()})
		return
	}

	resp := models.GenerationsResponse{Generations: make([]models.GenerationResponse, 0, len(records))}
	for _, r := range records {
		resp.Generations = append(resp.Generations, models.GenerationResponse{
			ID:        r.ID.String(),
			TaskID:    r.TaskID,
			Type:      string(r.Kind),
			Output:    r.Output,
			CreatedAt: r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Device godoc
// @Summary     Device id and free-credit eligibility
// @Tags        credits
// @Produce     json
// @Success     200 {object} models.DeviceResponse
// @Router      /device [get]
func (h *CreditsHandler) Device(c *gin.Context) {
	deviceID := fingerprint.DeviceID(c)
	eligible, err := h.credits.DeviceEligible(c.Request.Context(), deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to check device", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.DeviceResponse{DeviceID: deviceID, Eligible: eligible})
}
