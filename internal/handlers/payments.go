package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"facetalk-backend/internal/credits"
	"facetalk-backend/internal/models"
	"facetalk-backend/internal/telemetry"
)

const maxWebhookBodyBytes = 65536

type PaymentsHandler struct {
	webhookSecret string
	credits       *credits.Service
	logger        zerolog.Logger
}

func NewPaymentsHandler(webhookSecret string, creditService *credits.Service, logger zerolog.Logger) *PaymentsHandler {
	return &PaymentsHandler{
		webhookSecret: webhookSecret,
		credits:       creditService,
		logger:        logger.With().Str("component", "payments").Logger(),
	}
}

type WebhookAck struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   string `json:"ignored,omitempty"`
}

// StripeWebhook godoc
// @Summary     Stripe webhook
// @Description Applies a purchased plan on checkout.session.completed. Requests are verified with the Stripe-Signature header; a session is applied at most once.
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       Stripe-Signature header string true "Stripe signature"
// @Success     200 {object} WebhookAck
// @Failure     400 {object} models.ErrorResponse
// @Router      /webhooks/stripe [post]
func (h *PaymentsHandler) StripeWebhook(c *gin.Context) {
	if h.webhookSecret == "" {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "payments are not configured"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read request body", Message: err.Error()})
		return
	}

	// The endpoint's API version is set in the Stripe dashboard and can drift
	// from the SDK's; only the session fields read below matter.
	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                webhook.DefaultTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		h.logger.Warn().Err(err).Msg("rejected webhook")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid signature", Message: err.Error()})
		return
	}

	if event.Type != "checkout.session.completed" {
		c.JSON(http.StatusOK, WebhookAck{Received: true, Ignored: string(event.Type)})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid checkout session", Message: err.Error()})
		return
	}
	log := h.logger.With().Str("session_id", session.ID).Logger()

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.Info().Str("payment_status", string(session.PaymentStatus)).Msg("session not paid yet")
		c.JSON(http.StatusOK, WebhookAck{Received: true, Ignored: "unpaid"})
		return
	}

	userID := session.Metadata["user_id"]
	if userID == "" {
		userID = session.ClientReferenceID
	}
	plan := session.Metadata["plan"]
	if userID == "" || plan == "" {
		// Retrying cannot fix missing metadata, so acknowledge.
		log.Error().Msg("checkout session without user_id or plan metadata")
		c.JSON(http.StatusOK, WebhookAck{Received: true, Ignored: "missing metadata"})
		return
	}

	_, err = h.credits.ApplyPayment(c.Request.Context(), userID, plan, session.ID)
	switch {
	case errors.Is(err, credits.ErrDuplicatePayment):
		log.Info().Msg("duplicate checkout session")
		c.JSON(http.StatusOK, WebhookAck{Received: true, Duplicate: true})
		return
	case errors.Is(err, credits.ErrUnknownPlan):
		log.Error().Str("plan", plan).Msg("checkout session for unknown plan")
		c.JSON(http.StatusOK, WebhookAck{Received: true, Ignored: "unknown plan"})
		return
	case err != nil:
		log.Error().Err(err).Msg("failed to apply payment")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to apply payment", Message: err.Error()})
		return
	}

	telemetry.PaymentsApplied.WithLabelValues(plan).Inc()
	c.JSON(http.StatusOK, WebhookAck{Received: true})
}
