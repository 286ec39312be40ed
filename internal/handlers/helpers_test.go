package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"facetalk-backend/internal/models"
	"facetalk-backend/internal/replicate"
	"facetalk-backend/internal/services"
	"facetalk-backend/internal/tasks"
)

const (
	jwtSecret  = "test-secret"
	validToken = "r8_abcdefghijklmnop"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeReplicate answers every call with the configured prediction or error.
type fakeReplicate struct {
	mu         sync.Mutex
	prediction *replicate.Prediction
	err        error
	pingStatus int
	pingErr    error
	created    []map[string]any
	refs       []string
	reads      []string
}

func (f *fakeReplicate) CreatePrediction(ctx context.Context, modelRef string, input map[string]any) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, input)
	f.refs = append(f.refs, modelRef)
	return f.prediction, f.err
}

func (f *fakeReplicate) GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, id)
	return f.prediction, f.err
}

func (f *fakeReplicate) Ping(ctx context.Context) (int, error) {
	return f.pingStatus, f.pingErr
}

type trackCall struct {
	owner services.Owner
	kind  models.GenerationKind
	id    string
}

type fakeTracker struct {
	mu    sync.Mutex
	calls []trackCall
}

func (f *fakeTracker) Track(ctx context.Context, owner services.Owner, kind models.GenerationKind, predictionID string, inputs map[string]any) (*tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trackCall{owner: owner, kind: kind, id: predictionID})
	return &tasks.Task{ID: predictionID, Type: kind, Status: tasks.StatusPending}, nil
}

func rawPrediction(t *testing.T, id string, status replicate.Status) *replicate.Prediction {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"id": id, "status": status, "urls": map[string]string{"get": "https://api.replicate.com/v1/predictions/" + id}})
	require.NoError(t, err)
	return &replicate.Prediction{ID: id, Status: status, Raw: raw}
}

func newTaskStore(t *testing.T) *tasks.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return tasks.NewStore(client)
}

func accessToken(t *testing.T, sub string, anonymous bool) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          sub,
		"is_anonymous": anonymous,
		"exp":          time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func bearer(t *testing.T, sub string, anonymous bool) string {
	t.Helper()
	return "Bearer " + accessToken(t, sub, anonymous)
}

func doJSON(router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
