package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"facetalk-backend/internal/config"
	"facetalk-backend/internal/credits"
	"facetalk-backend/internal/fingerprint"
	"facetalk-backend/internal/middleware"
	"facetalk-backend/internal/models"
	"facetalk-backend/internal/replicate"
	"facetalk-backend/internal/services"
	"facetalk-backend/internal/tasks"
	"facetalk-backend/internal/telemetry"
)

const talkingPortraitModelType = "sonic"

// PredictionCreator starts a Replicate job.
type PredictionCreator interface {
	CreatePrediction(ctx context.Context, modelRef string, input map[string]any) (*replicate.Prediction, error)
}

// TaskTracker registers a submitted job and follows it to completion.
type TaskTracker interface {
	Track(ctx context.Context, owner services.Owner, kind models.GenerationKind, predictionID string, inputs map[string]any) (*tasks.Task, error)
}

type PredictionsHandler struct {
	config  *config.Config
	client  PredictionCreator
	credits *credits.Service
	tracker TaskTracker
	logger  zerolog.Logger
}

func NewPredictionsHandler(cfg *config.Config, client PredictionCreator, creditService *credits.Service, tracker TaskTracker, logger zerolog.Logger) *PredictionsHandler {
	return &PredictionsHandler{
		config:  cfg,
		client:  client,
		credits: creditService,
		tracker: tracker,
		logger:  logger.With().Str("component", "predictions").Logger(),
	}
}

// GenerateAnimation godoc
// @Summary     Animate a portrait
// @Description Drives a portrait image with the motion of a video. Returns the Replicate prediction record.
// @Tags        generation
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.GenerateAnimationRequest true "Image and driving video"
// @Success     200 {object} map[string]interface{}
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     402 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /generate-animation [post]
func (h *PredictionsHandler) GenerateAnimation(c *gin.Context) {
	if !requireToken(c, h.config) {
		return
	}

	var req models.GenerateAnimationRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Image == "" || req.Video == "" {
		badRequest(c, "Both image and video are required")
		return
	}
	if !validMedia(c, map[string]string{"image": req.Image, "video": req.Video}) {
		return
	}

	input := map[string]any{
		"face_image":    req.Image,
		"driving_video": req.Video,
	}
	h.submit(c, models.KindAnimation, h.config.ReplicateAnimationVersion, input, nil)
}

// TalkingPortrait godoc
// @Summary     Lip-sync a portrait to audio
// @Description Animates a portrait so it speaks the given audio. Adds estimated_processing_time (seconds) and model_type to the Replicate prediction record.
// @Tags        generation
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.TalkingPortraitRequest true "Image, audio and tuning options"
// @Success     200 {object} map[string]interface{}
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     402 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /talking-portrait [post]
func (h *PredictionsHandler) TalkingPortrait(c *gin.Context) {
	if !requireToken(c, h.config) {
		return
	}

	var req models.TalkingPortraitRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Image == "" || req.Audio == "" {
		badRequest(c, "Both image and audio are required")
		return
	}
	if !validMedia(c, map[string]string{"image": req.Image, "audio": req.Audio}) {
		return
	}

	input := map[string]any{
		"image": req.Image,
		"audio": req.Audio,
	}
	if req.Seed != nil {
		input["seed"] = *req.Seed
	}
	if req.DynamicScale != nil {
		input["dynamic_scale"] = *req.DynamicScale
	}
	if req.MinResolution != nil {
		input["min_resolution"] = *req.MinResolution
	}
	steps := defaultInferenceSteps
	if req.InferenceSteps != nil {
		steps = *req.InferenceSteps
		input["inference_steps"] = steps
	}
	if req.KeepResolution != nil {
		input["keep_resolution"] = *req.KeepResolution
	}

	extra := map[string]any{
		"estimated_processing_time": estimatedProcessingSeconds(steps),
		"model_type":                talkingPortraitModelType,
	}
	h.submit(c, models.KindTalkingPortrait, h.config.ReplicateTalkingPortraitVersion, input, extra)
}

// VoiceClone godoc
// @Summary     Clone a voice
// @Description Speaks the given text in the voice of a reference sample. Returns the Replicate prediction record.
// @Tags        generation
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.VoiceCloneRequest true "Text and voice sample"
// @Success     200 {object} map[string]interface{}
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     402 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /voice-clone [post]
func (h *PredictionsHandler) VoiceClone(c *gin.Context) {
	if !requireToken(c, h.config) {
		return
	}

	var req models.VoiceCloneRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" || req.VoiceSample == "" {
		badRequest(c, "Both text and voice_sample are required")
		return
	}
	if !validMedia(c, map[string]string{"voice_sample": req.VoiceSample}) {
		return
	}

	input := map[string]any{
		"text":            req.Text,
		"reference_audio": req.VoiceSample,
	}
	if req.PromptText != "" {
		input["prompt_text"] = req.PromptText
	}
	if req.ChunkLength != nil {
		input["chunk_length"] = *req.ChunkLength
	}
	h.submit(c, models.KindVoiceClone, h.config.ReplicateVoiceCloneVersion, input, nil)
}

// submit charges the caller, starts the job and begins tracking it. The
// charge is refunded when the job cannot be started.
func (h *PredictionsHandler) submit(c *gin.Context, kind models.GenerationKind, modelRef string, input, extra map[string]any) {
	ctx := c.Request.Context()
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	owner := services.Owner{Key: userID, UserID: userID}
	log := h.logger.With().Str("kind", string(kind)).Str("owner", owner.Key).Logger()

	if _, err := h.credits.EnsurePlan(ctx, userID, fingerprint.DeviceID(c), middleware.IsAnonymous(c)); err != nil {
		log.Error().Err(err).Msg("failed to load plan")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load plan", Message: err.Error()})
		return
	}
	if _, err := h.credits.Deduct(ctx, userID, kind); err != nil {
		respondDeductError(c, kind, err)
		return
	}
	telemetry.CreditsDeducted.WithLabelValues(string(kind)).Inc()

	prediction, err := h.client.CreatePrediction(ctx, modelRef, input)
	if err != nil {
		log.Warn().Err(err).Msg("failed to create prediction")
		if refundErr := h.credits.Refund(context.WithoutCancel(ctx), userID, kind); refundErr != nil {
			log.Error().Err(refundErr).Msg("failed to refund credits")
		}
		respondUpstreamError(c, "create", err)
		return
	}
	telemetry.PredictionsCreated.WithLabelValues(string(kind)).Inc()

	if _, err := h.tracker.Track(ctx, owner, kind, prediction.ID, summarizeInputs(input)); err != nil {
		log.Error().Err(err).Str("prediction_id", prediction.ID).Msg("failed to track prediction")
	}

	body := []byte(prediction.Raw)
	if len(extra) > 0 {
		var record map[string]any
		if err := json.Unmarshal(prediction.Raw, &record); err == nil {
			for k, v := range extra {
				record[k] = v
			}
			if merged, err := json.Marshal(record); err == nil {
				body = merged
			}
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func respondDeductError(c *gin.Context, kind models.GenerationKind, err error) {
	if errors.Is(err, credits.ErrInsufficientCredits) {
		telemetry.CreditsRejected.Inc()
		cost, _ := credits.Cost(kind)
		c.JSON(http.StatusPaymentRequired, models.ErrorResponse{
			Error:    "insufficient credits",
			Message:  fmt.Sprintf("This feature costs %d credits. Upgrade your plan to continue.", cost),
			Redirect: "/pricing",
		})
		return
	}
	if errors.Is(err, credits.ErrUnknownFeature) {
		badRequest(c, "unknown feature")
		return
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to deduct credits", Message: err.Error()})
}

const defaultInferenceSteps = 25

// estimatedProcessingSeconds scales with the diffusion step count, about
// five seconds per step with a one minute floor.
func estimatedProcessingSeconds(steps int) int {
	if steps <= 0 {
		steps = defaultInferenceSteps
	}
	return max(60, steps*5)
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return false
	}
	return true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msg})
}

// validMedia accepts data: URLs and http(s) URLs.
func validMedia(c *gin.Context, fields map[string]string) bool {
	for name, value := range fields {
		if strings.HasPrefix(value, "data:") || strings.HasPrefix(value, "https://") || strings.HasPrefix(value, "http://") {
			continue
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid " + name,
			Message: name + " must be a data: URL or an http(s) URL",
		})
		return false
	}
	return true
}

// summarizeInputs keeps task records small: data URLs are replaced by their
// media type and size.
func summarizeInputs(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "data:") {
			out[k] = v
			continue
		}
		mediaType, _, _ := strings.Cut(strings.TrimPrefix(s, "data:"), ";")
		if i := strings.IndexByte(mediaType, ','); i >= 0 {
			mediaType = mediaType[:i]
		}
		out[k] = fmt.Sprintf("data:%s (%d bytes)", mediaType, len(s))
	}
	return out
}
