package handlers_test

import (
	"net/http"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetalk-backend/internal/config"
	"facetalk-backend/internal/fingerprint"
	"facetalk-backend/internal/handlers"
	"facetalk-backend/internal/middleware"
	"facetalk-backend/internal/models"
	"facetalk-backend/internal/tasks"
)

type recordingRemover struct {
	mu      sync.Mutex
	removed []string
}

func (r *recordingRemover) DeleteArchived(publicURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, publicURL)
	return nil
}

func newTasksRouter(t *testing.T) (*gin.Engine, *tasks.Store, *recordingRemover) {
	t.Helper()
	store := newTaskStore(t)
	remover := &recordingRemover{}
	h := handlers.NewTasksHandler(store, remover, zerolog.Nop())

	router := gin.New()
	router.Use(fingerprint.Middleware(false), middleware.OptionalAuth(&config.Config{SupabaseJWTSecret: jwtSecret}))
	router.GET("/tasks", h.ListTasks)
	router.GET("/tasks/:id", h.GetTask)
	router.DELETE("/tasks/:id", h.DeleteTask)
	router.GET("/history", h.History)
	router.GET("/last-result/:type", h.LastResult)
	return router, store, remover
}

func TestTasks_ListAndFilter(t *testing.T) {
	router, store, _ := newTasksRouter(t)
	ctx := t.Context()
	auth := map[string]string{"Authorization": bearer(t, "user-1", false)}

	_, err := store.Create(ctx, "user-1", models.KindAnimation, "a", nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "user-1", models.KindVoiceClone, "b", nil)
	require.NoError(t, err)
	_, err = store.Complete(ctx, "user-1", "b", "https://cdn.example.com/b.wav")
	require.NoError(t, err)
	_, err = store.Create(ctx, "someone-else", models.KindAnimation, "c", nil)
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/tasks", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["tasks"], 2)

	w = doJSON(router, http.MethodGet, "/tasks?filter=active", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	active := decode(t, w)["tasks"].([]any)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].(map[string]any)["id"])

	w = doJSON(router, http.MethodGet, "/tasks?filter=completed", nil, auth)
	completed := decode(t, w)["tasks"].([]any)
	require.Len(t, completed, 1)
	assert.Equal(t, "b", completed[0].(map[string]any)["id"])

	w = doJSON(router, http.MethodGet, "/tasks?filter=bogus", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTasks_AnonymousCallerSeesOnlyProfileTasks(t *testing.T) {
	router, _, _ := newTasksRouter(t)

	w := doJSON(router, http.MethodGet, "/tasks", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["tasks"])
	assert.Contains(t, w.Header().Get("Set-Cookie"), fingerprint.CookieName+"=")
}

func TestTasks_IdenticalBrowsersDoNotShareTasks(t *testing.T) {
	router, store, _ := newTasksRouter(t)

	w := doJSON(router, http.MethodGet, "/tasks", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	profileID := cookies[0].Value

	_, err := store.Create(t.Context(), profileID, models.KindAnimation, "mine", nil)
	require.NoError(t, err)

	// Same user agent and headers, no cookie: a different browser
	w = doJSON(router, http.MethodGet, "/tasks", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["tasks"])

	w = doJSON(router, http.MethodGet, "/tasks/mine", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	cookie := map[string]string{"Cookie": fingerprint.CookieName + "=" + profileID}
	w = doJSON(router, http.MethodGet, "/tasks", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["tasks"], 1)
}

func TestTasks_GetAndDelete(t *testing.T) {
	router, store, remover := newTasksRouter(t)
	ctx := t.Context()
	auth := map[string]string{"Authorization": bearer(t, "user-1", false)}

	_, err := store.Create(ctx, "user-1", models.KindTalkingPortrait, "p1", nil)
	require.NoError(t, err)
	_, err = store.Complete(ctx, "user-1", "p1", "https://storage.example.com/p1.mp4")
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/tasks/p1", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decode(t, w)["status"])

	w = doJSON(router, http.MethodDelete, "/tasks/p1", nil, auth)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"https://storage.example.com/p1.mp4"}, remover.removed)

	w = doJSON(router, http.MethodGet, "/tasks/p1", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodDelete, "/tasks/p1", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTasks_HistoryAndLastResult(t *testing.T) {
	router, store, _ := newTasksRouter(t)
	ctx := t.Context()
	auth := map[string]string{"Authorization": bearer(t, "user-1", false)}

	w := doJSON(router, http.MethodGet, "/last-result/voice-clone", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := store.Create(ctx, "user-1", models.KindVoiceClone, "v1", nil)
	require.NoError(t, err)
	_, err = store.Complete(ctx, "user-1", "v1", "https://cdn.example.com/v1.wav")
	require.NoError(t, err)

	w = doJSON(router, http.MethodGet, "/last-result/voice-clone", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://cdn.example.com/v1.wav", decode(t, w)["output"])

	w = doJSON(router, http.MethodGet, "/history", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode(t, w)["history"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "v1", history[0].(map[string]any)["taskId"])

	w = doJSON(router, http.MethodGet, "/last-result/unknown", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
