package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"facetalk-backend/internal/fingerprint"
	"facetalk-backend/internal/middleware"
	"facetalk-backend/internal/models"
	"facetalk-backend/internal/tasks"
)

// OutputRemover deletes an archived output.
type OutputRemover interface {
	DeleteArchived(publicURL string) error
}

type TasksHandler struct {
	store   *tasks.Store
	remover OutputRemover
	logger  zerolog.Logger
}

func NewTasksHandler(store *tasks.Store, remover OutputRemover, logger zerolog.Logger) *TasksHandler {
	return &TasksHandler{
		store:   store,
		remover: remover,
		logger:  logger.With().Str("component", "tasks").Logger(),
	}
}

// ownerKey is the user id when authenticated and the profile cookie id
// otherwise. The device fingerprint is shared by identical browsers and never
// owns tasks.
func ownerKey(c *gin.Context) string {
	if userID, ok := middleware.UserID(c); ok {
		return userID
	}
	return fingerprint.ProfileID(c)
}

type TasksResponse struct {
	Tasks []tasks.Task `json:"tasks"`
}

type HistoryResponse struct {
	History []tasks.Result `json:"history"`
}

// ListTasks godoc
// @Summary     List tasks
// @Description Lists the caller's generation tasks, newest first. Tasks idle for more than 24 hours are dropped.
// @Tags        tasks
// @Produce     json
// @Param       filter query string false "all, active or completed (includes failed)"
// @Success     200 {object} TasksResponse
// @Failure     400 {object} models.ErrorResponse
// @Router      /tasks [get]
func (h *TasksHandler) ListTasks(c *gin.Context) {
	filter, ok := tasks.ParseFilter(c.Query("filter"))
	if !ok {
		badRequest(c, "filter must be one of all, active, completed")
		return
	}

	list, err := h.store.List(c.Request.Context(), ownerKey(c), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list tasks")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to list tasks", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, TasksResponse{Tasks: list})
}

// GetTask godoc
// @Summary     Get a task
// @Tags        tasks
// @Produce     json
// @Param       id path string true "Task id"
// @Success     200 {object} tasks.Task
// @Failure     404 {object} models.ErrorResponse
// @Router      /tasks/{id} [get]
func (h *TasksHandler) GetTask(c *gin.Context) {
	task, err := h.store.Get(c.Request.Context(), ownerKey(c), c.Param("id"))
	if errors.Is(err, tasks.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "task not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to get task", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask godoc
// @Summary     Remove a task
// @Description Removes the task record and, for finished tasks, its archived output.
// @Tags        tasks
// @Param       id path string true "Task id"
// @Success     204
// @Failure     404 {object} models.ErrorResponse
// @Router      /tasks/{id} [delete]
func (h *TasksHandler) DeleteTask(c *gin.Context) {
	ctx := c.Request.Context()
	owner := ownerKey(c)
	id := c.Param("id")

	task, err := h.store.Get(ctx, owner, id)
	if err != nil && !errors.Is(err, tasks.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to get task", Message: err.Error()})
		return
	}

	if err := h.store.Remove(ctx, owner, id); err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to remove task", Message: err.Error()})
		return
	}

	if task != nil && task.Output != "" && h.remover != nil {
		if err := h.remover.DeleteArchived(task.Output); err != nil {
			h.logger.Warn().Err(err).Str("task_id", id).Msg("failed to delete archived output")
		}
	}
	c.Status(http.StatusNoContent)
}

// History godoc
// @Summary     Recent generations
// @Description Up to 10 finished generations, newest first.
// @Tags        tasks
// @Produce     json
// @Success     200 {object} HistoryResponse
// @Router      /history [get]
func (h *TasksHandler) History(c *gin.Context) {
	history, err := h.store.History(c.Request.Context(), ownerKey(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to read history", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{History: history})
}

// LastResult godoc
// @Summary     Last result of a kind
// @Tags        tasks
// @Produce     json
// @Param       type path string true "animation, voice_clone or talking_portrait"
// @Success     200 {object} tasks.Result
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /last-result/{type} [get]
func (h *TasksHandler) LastResult(c *gin.Context) {
	kind, ok := models.ParseGenerationKind(c.Param("type"))
	if !ok {
		badRequest(c, "unknown generation type")
		return
	}

	result, err := h.store.LastResult(c.Request.Context(), ownerKey(c), kind)
	if errors.Is(err, tasks.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "no result yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to read last result", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
