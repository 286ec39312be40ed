package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"facetalk-backend/internal/config"
	"facetalk-backend/internal/models"
	"facetalk-backend/internal/replicate"
)

// ReplicatePinger performs an authenticated round trip to Replicate.
type ReplicatePinger interface {
	Ping(ctx context.Context) (int, error)
}

// PingFunc checks one dependency. A nil PingFunc means not configured.
type PingFunc func(ctx context.Context) error

const dependencyTimeout = 3 * time.Second

type EnvHandler struct {
	config    *config.Config
	replicate ReplicatePinger
	database  PingFunc
	supabase  PingFunc
	redis     PingFunc
}

func NewEnvHandler(cfg *config.Config, replicateClient ReplicatePinger, database, supabase, redis PingFunc) *EnvHandler {
	return &EnvHandler{
		config:    cfg,
		replicate: replicateClient,
		database:  database,
		supabase:  supabase,
		redis:     redis,
	}
}

// CheckEnv godoc
// @Summary     Diagnose configuration
// @Description Reports whether the Replicate token is present and well-formed, whether Replicate accepts it, and whether the database, Supabase and Redis answer.
// @Tags        diagnostics
// @Produce     json
// @Success     200 {object} models.EnvCheckResponse
// @Router      /check-env [get]
func (h *EnvHandler) CheckEnv(c *gin.Context) {
	ctx := c.Request.Context()
	token := h.config.ReplicateAPIToken
	tokenErr := config.ValidateReplicateToken(token)

	resp := models.EnvCheckResponse{
		HasToken:         token != "",
		TokenFormatValid: tokenErr == nil,
		TokenPreview:     tokenPreview(token),
	}

	if tokenErr != nil {
		resp.ConnectionTest = models.ConnectionTest{Error: tokenErr.Error()}
	} else {
		status, err := h.replicate.Ping(ctx)
		resp.ConnectionTest = models.ConnectionTest{OK: err == nil, Status: status}
		if err != nil {
			resp.ConnectionTest.Error = connectionError(err)
		}
	}

	resp.Database = check(ctx, h.database)
	resp.Supabase = check(ctx, h.supabase)
	resp.Redis = check(ctx, h.redis)

	c.JSON(http.StatusOK, resp)
}

func check(ctx context.Context, ping PingFunc) models.DependencyStatus {
	if ping == nil {
		return models.DependencyStatus{}
	}
	ctx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return models.DependencyStatus{Configured: true, Error: err.Error()}
	}
	return models.DependencyStatus{Configured: true, OK: true}
}

func connectionError(err error) string {
	var apiErr *replicate.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized:
		return "Invalid Replicate API token"
	case errors.Is(err, replicate.ErrTimeout):
		return "Connection to Replicate timed out"
	}
	return err.Error()
}

// tokenPreview shows enough of the token to recognise it.
func tokenPreview(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) <= 10:
		return strings.Repeat("*", len(token))
	}
	return token[:6] + "..." + token[len(token)-4:]
}
