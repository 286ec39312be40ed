package handlers_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetalk-backend/internal/config"
	"facetalk-backend/internal/credits"
	"facetalk-backend/internal/fingerprint"
	"facetalk-backend/internal/handlers"
	"facetalk-backend/internal/middleware"
	"facetalk-backend/internal/models"
	"facetalk-backend/internal/replicate"
)

type predictionsFixture struct {
	router  *gin.Engine
	client  *fakeReplicate
	tracker *fakeTracker
	credits *credits.Service
	auth    map[string]string
}

func newPredictionsFixture(t *testing.T, token string) *predictionsFixture {
	t.Helper()
	cfg := &config.Config{
		ReplicateAPIToken:               token,
		ReplicateAnimationVersion:       "fofr/live-portrait",
		ReplicateTalkingPortraitVersion: "zsxkib/sonic",
		ReplicateVoiceCloneVersion:      "jichengdu/fish-speech",
		SupabaseJWTSecret:               jwtSecret,
	}
	client := &fakeReplicate{prediction: rawPrediction(t, "pred-1", replicate.StatusStarting)}
	tracker := &fakeTracker{}
	creditService := credits.NewService(credits.NewMemoryRepository(), zerolog.Nop())

	h := handlers.NewPredictionsHandler(cfg, client, creditService, tracker, zerolog.Nop())
	router := gin.New()
	router.Use(fingerprint.Middleware(false), middleware.AuthMiddleware(cfg))
	router.POST("/generate-animation", h.GenerateAnimation)
	router.POST("/talking-portrait", h.TalkingPortrait)
	router.POST("/voice-clone", h.VoiceClone)

	return &predictionsFixture{
		router:  router,
		client:  client,
		tracker: tracker,
		credits: creditService,
		auth:    map[string]string{"Authorization": bearer(t, "anon-1", true)},
	}
}

const (
	imageURL = "data:image/png;base64,iVBORw0KGgo="
	videoURL = "https://example.com/driving.mp4"
	audioURL = "data:audio/wav;base64,UklGRg=="
)

func TestProxyEndpoints_TokenProblemsAnswer500(t *testing.T) {
	bodies := map[string]any{
		"/generate-animation": map[string]string{"image": imageURL, "video": videoURL},
		"/talking-portrait":   map[string]string{"image": imageURL, "audio": audioURL},
		"/voice-clone":        map[string]string{"text": "hello", "voice_sample": audioURL},
	}

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "missing", token: "", want: "REPLICATE_API_TOKEN is not set"},
		{name: "malformed", token: "abc123", want: "Invalid REPLICATE_API_TOKEN format"},
	}

	for _, tt := range tests {
		for path, body := range bodies {
			t.Run(tt.name+path, func(t *testing.T) {
				f := newPredictionsFixture(t, tt.token)
				w := doJSON(f.router, http.MethodPost, path, body, f.auth)

				assert.Equal(t, http.StatusInternalServerError, w.Code)
				resp := decode(t, w)
				assert.Equal(t, tt.want, resp["error"])
				assert.Contains(t, resp["message"], "replicate.com/account/api-tokens")
				assert.Empty(t, f.client.created)
			})
		}
	}
}

func TestProxyEndpoints_RequiredFields(t *testing.T) {
	tests := []struct {
		path string
		body map[string]string
		want string
	}{
		{"/generate-animation", map[string]string{"image": imageURL}, "Both image and video are required"},
		{"/generate-animation", map[string]string{"video": videoURL}, "Both image and video are required"},
		{"/talking-portrait", map[string]string{"image": imageURL}, "Both image and audio are required"},
		{"/voice-clone", map[string]string{"text": "  ", "voice_sample": audioURL}, "Both text and voice_sample are required"},
		{"/voice-clone", map[string]string{"text": "hi"}, "Both text and voice_sample are required"},
	}

	for _, tt := range tests {
		t.Run(tt.path+" "+tt.want, func(t *testing.T) {
			f := newPredictionsFixture(t, validToken)
			w := doJSON(f.router, http.MethodPost, tt.path, tt.body, f.auth)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decode(t, w)["error"])
			assert.Empty(t, f.client.created)
		})
	}
}

func TestGenerateAnimation_RejectsUnsupportedMedia(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	w := doJSON(f.router, http.MethodPost, "/generate-animation",
		map[string]string{"image": "/tmp/face.png", "video": videoURL}, f.auth)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid image", decode(t, w)["error"])
}

func TestGenerateAnimation_RelaysPredictionAndTracks(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	w := doJSON(f.router, http.MethodPost, "/generate-animation",
		map[string]string{"image": imageURL, "video": videoURL}, f.auth)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "pred-1", resp["id"])
	assert.Equal(t, "starting", resp["status"])

	require.Len(t, f.client.created, 1)
	assert.Equal(t, "fofr/live-portrait", f.client.refs[0])
	assert.Equal(t, imageURL, f.client.created[0]["face_image"])
	assert.Equal(t, videoURL, f.client.created[0]["driving_video"])

	require.Len(t, f.tracker.calls, 1)
	call := f.tracker.calls[0]
	assert.Equal(t, models.KindAnimation, call.kind)
	assert.Equal(t, "pred-1", call.id)
	assert.Equal(t, "anon-1", call.owner.Key)
	assert.Equal(t, "anon-1", call.owner.UserID)
}

func TestTalkingPortrait_AddsEstimateAndModelType(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	w := doJSON(f.router, http.MethodPost, "/talking-portrait", map[string]any{
		"image":           imageURL,
		"audio":           audioURL,
		"inference_steps": 20,
		"dynamic_scale":   1.2,
	}, f.auth)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "pred-1", resp["id"])
	assert.Equal(t, "sonic", resp["model_type"])
	assert.EqualValues(t, 100, resp["estimated_processing_time"])

	input := f.client.created[0]
	assert.Equal(t, imageURL, input["image"])
	assert.Equal(t, audioURL, input["audio"])
	assert.EqualValues(t, 20, input["inference_steps"])
	assert.EqualValues(t, 1.2, input["dynamic_scale"])
	assert.NotContains(t, input, "seed")
}

func TestTalkingPortrait_EstimateHasOneMinuteFloor(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	w := doJSON(f.router, http.MethodPost, "/talking-portrait", map[string]any{
		"image":           imageURL,
		"audio":           audioURL,
		"inference_steps": 4,
	}, f.auth)

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 60, decode(t, w)["estimated_processing_time"])
}

func TestVoiceClone_MapsInputs(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	w := doJSON(f.router, http.MethodPost, "/voice-clone", map[string]any{
		"text":         "hello there",
		"voice_sample": audioURL,
		"prompt_text":  "sample transcript",
		"chunk_length": 150,
	}, f.auth)

	require.Equal(t, http.StatusOK, w.Code)
	input := f.client.created[0]
	assert.Equal(t, "hello there", input["text"])
	assert.Equal(t, audioURL, input["reference_audio"])
	assert.Equal(t, "sample transcript", input["prompt_text"])
	assert.EqualValues(t, 150, input["chunk_length"])
}

func TestProxy_AuthenticatedCallerIsCharged(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	auth := map[string]string{"Authorization": bearer(t, "user-1", true)}

	w := doJSON(f.router, http.MethodPost, "/generate-animation",
		map[string]string{"image": imageURL, "video": videoURL}, auth)
	require.Equal(t, http.StatusOK, w.Code)

	plan, err := f.credits.EnsurePlan(t.Context(), "user-1", "", true)
	require.NoError(t, err)
	assert.Equal(t, 3, plan.PointsLeft)

	require.Len(t, f.tracker.calls, 1)
	assert.Equal(t, "user-1", f.tracker.calls[0].owner.Key)
	assert.Equal(t, "user-1", f.tracker.calls[0].owner.UserID)
}

func TestProxy_InsufficientCreditsAnswers402(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	auth := map[string]string{"Authorization": bearer(t, "user-1", true)}
	body := map[string]string{"image": imageURL, "audio": audioURL}

	w := doJSON(f.router, http.MethodPost, "/talking-portrait", body, auth)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(f.router, http.MethodPost, "/talking-portrait", body, auth)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "insufficient credits", resp["error"])
	assert.Equal(t, "/pricing", resp["redirect"])
	assert.Len(t, f.client.created, 1)
}

func TestProxy_UpstreamFailureRefunds(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	f.client.prediction = nil
	f.client.err = &replicate.APIError{StatusCode: http.StatusUnauthorized, Detail: "Unauthenticated"}
	auth := map[string]string{"Authorization": bearer(t, "user-1", true)}

	w := doJSON(f.router, http.MethodPost, "/voice-clone",
		map[string]string{"text": "hi", "voice_sample": audioURL}, auth)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid Replicate API token", decode(t, w)["error"])
	assert.Empty(t, f.tracker.calls)

	plan, err := f.credits.EnsurePlan(t.Context(), "user-1", "", true)
	require.NoError(t, err)
	assert.Equal(t, 5, plan.PointsLeft)
}

func TestProxy_UpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"rate limited", &replicate.APIError{StatusCode: 429, Detail: "slow down"}, http.StatusTooManyRequests, true},
		{"validation", &replicate.APIError{StatusCode: 422, Detail: "bad input"}, http.StatusUnprocessableEntity, false},
		{"server", &replicate.APIError{StatusCode: 503, Detail: "down"}, http.StatusServiceUnavailable, true},
		{"timeout", replicate.ErrTimeout, http.StatusGatewayTimeout, true},
		{"network", &replicate.TransportError{Err: assert.AnError}, http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPredictionsFixture(t, validToken)
			f.client.prediction = nil
			f.client.err = tt.err

			w := doJSON(f.router, http.MethodPost, "/generate-animation",
				map[string]string{"image": imageURL, "video": videoURL}, f.auth)

			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			if tt.retryable {
				assert.Equal(t, true, resp["retryable"])
			} else {
				assert.NotContains(t, resp, "retryable")
			}
		})
	}
}

func TestProxy_UnauthenticatedSubmissionIsRejected(t *testing.T) {
	bodies := map[string]any{
		"/generate-animation": map[string]string{"image": imageURL, "video": videoURL},
		"/talking-portrait":   map[string]string{"image": imageURL, "audio": audioURL},
		"/voice-clone":        map[string]string{"text": "hello", "voice_sample": audioURL},
	}

	for path, body := range bodies {
		t.Run(path, func(t *testing.T) {
			f := newPredictionsFixture(t, validToken)
			w := doJSON(f.router, http.MethodPost, path, body, nil)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Empty(t, f.client.created)
			assert.Empty(t, f.tracker.calls)
		})
	}
}

func TestProxy_AnonymousSessionIsChargedEveryCall(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	body := map[string]string{"text": "hello", "voice_sample": audioURL}

	for range 5 {
		w := doJSON(f.router, http.MethodPost, "/voice-clone", body, f.auth)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(f.router, http.MethodPost, "/voice-clone", body, f.auth)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Len(t, f.client.created, 5)
}

func TestProxy_InvalidBearerIsRejected(t *testing.T) {
	f := newPredictionsFixture(t, validToken)
	w := doJSON(f.router, http.MethodPost, "/generate-animation",
		map[string]string{"image": imageURL, "video": videoURL},
		map[string]string{"Authorization": "Bearer not-a-jwt"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.client.created)
}
