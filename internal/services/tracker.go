package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"facetalk-backend/internal/models"
	"facetalk-backend/internal/poller"
	"facetalk-backend/internal/replicate"
	"facetalk-backend/internal/tasks"
	"facetalk-backend/internal/telemetry"
)

// PredictionSource reads prediction state and fetches finished outputs.
type PredictionSource interface {
	poller.StatusFetcher
	DownloadFile(ctx context.Context, url string) ([]byte, string, error)
}

// Archiver copies an output to durable storage and returns its new URL.
type Archiver interface {
	Archive(owner string, kind models.GenerationKind, taskID string, data []byte, contentType string) (string, error)
}

// GenerationRecorder appends a finished generation to a user's history.
type GenerationRecorder interface {
	RecordGeneration(ctx context.Context, userID, taskID string, kind models.GenerationKind, output string) error
}

// Owner identifies whose task registry a job belongs to. Key is the user id
// when authenticated and the profile id otherwise.
type Owner struct {
	Key    string
	UserID string
}

// Tracker runs one polling goroutine per submitted prediction and is the
// only writer of that task's record after creation.
type Tracker struct {
	source      PredictionSource
	store       *tasks.Store
	archiver    Archiver
	recorder    GenerationRecorder
	maxAttempts int
	intervalFor func(models.GenerationKind) time.Duration
	logger      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type TrackerOption func(*Tracker)

// WithArchiver copies finished outputs to durable storage.
func WithArchiver(a Archiver) TrackerOption {
	return func(t *Tracker) { t.archiver = a }
}

// WithRecorder writes finished generations of authenticated users.
func WithRecorder(r GenerationRecorder) TrackerOption {
	return func(t *Tracker) { t.recorder = r }
}

func WithMaxAttempts(n int) TrackerOption {
	return func(t *Tracker) { t.maxAttempts = n }
}

// WithIntervals overrides the per-kind polling interval.
func WithIntervals(f func(models.GenerationKind) time.Duration) TrackerOption {
	return func(t *Tracker) { t.intervalFor = f }
}

func NewTracker(source PredictionSource, store *tasks.Store, logger zerolog.Logger, opts ...TrackerOption) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		source:      source,
		store:       store,
		maxAttempts: poller.DefaultMaxAttempts,
		intervalFor: poller.IntervalFor,
		logger:      logger.With().Str("component", "tracker").Logger(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track registers the prediction as a pending task and polls it in the
// background until it reaches a terminal state.
func (t *Tracker) Track(ctx context.Context, owner Owner, kind models.GenerationKind, predictionID string, inputs map[string]any) (*tasks.Task, error) {
	task, err := t.store.Create(ctx, owner.Key, kind, predictionID, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to register task: %w", err)
	}

	t.wg.Add(1)
	telemetry.TrackedInFlight.Inc()
	go func() {
		defer t.wg.Done()
		defer telemetry.TrackedInFlight.Dec()
		t.run(owner, kind, task.ID)
	}()
	return task, nil
}

// Shutdown stops every polling loop and waits for them to exit or for ctx
// to end.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.cancel()
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every tracked prediction has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) run(owner Owner, kind models.GenerationKind, id string) {
	log := t.logger.With().Str("prediction_id", id).Str("kind", string(kind)).Logger()
	start := time.Now()
	ctx := t.ctx

	prediction, err := poller.Poll(ctx, t.source, id, poller.Options{
		Interval:    t.intervalFor(kind),
		MaxAttempts: t.maxAttempts,
		OnUpdate: func(attempt int, p *replicate.Prediction) {
			if p.Status.Terminal() {
				return
			}
			if _, err := t.store.UpdateProgress(ctx, owner.Key, id, progressText(attempt, p)); err != nil {
				log.Warn().Err(err).Msg("failed to update progress")
			}
		},
		OnRetry: func(attempt int, err error) {
			var apiErr *replicate.APIError
			status := 0
			if errors.As(err, &apiErr) {
				status = apiErr.StatusCode
			}
			telemetry.UpstreamErrors.WithLabelValues("status", telemetry.StatusClass(status)).Inc()
			log.Debug().Err(err).Int("attempt", attempt).Msg("status check failed, retrying")
			progress := fmt.Sprintf("Connection issue, retrying (attempt %d)", attempt)
			if _, err := t.store.UpdateProgress(ctx, owner.Key, id, progress); err != nil {
				log.Warn().Err(err).Msg("failed to update progress")
			}
		},
	})

	if errors.Is(err, context.Canceled) {
		log.Info().Msg("tracking stopped by shutdown")
		return
	}
	telemetry.PollDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome, msg := failureOutcome(err)
		telemetry.PredictionsFinished.WithLabelValues(string(kind), outcome).Inc()
		log.Warn().Err(err).Str("outcome", outcome).Msg("prediction did not succeed")
		if _, err := t.store.Fail(ctx, owner.Key, id, msg); err != nil {
			log.Error().Err(err).Msg("failed to record task failure")
		}
		return
	}

	output := prediction.OutputURL()
	if output == "" {
		telemetry.PredictionsFinished.WithLabelValues(string(kind), "empty").Inc()
		if _, err := t.store.Fail(ctx, owner.Key, id, "prediction succeeded without output"); err != nil {
			log.Error().Err(err).Msg("failed to record task failure")
		}
		return
	}
	output = t.archive(ctx, log, owner, kind, id, output)

	telemetry.PredictionsFinished.WithLabelValues(string(kind), "succeeded").Inc()
	if _, err := t.store.Complete(ctx, owner.Key, id, output); err != nil {
		if errors.Is(err, tasks.ErrHistoryNotRecorded) {
			log.Error().Err(err).Msg("task completed but history was not recorded")
		} else {
			log.Error().Err(err).Msg("failed to record task completion")
		}
	}

	if t.recorder != nil && owner.UserID != "" {
		if err := t.recorder.RecordGeneration(ctx, owner.UserID, id, kind, output); err != nil {
			log.Warn().Err(err).Msg("failed to record generation history")
		}
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("prediction completed")
}

// archive returns the durable URL for output, or output itself when
// archiving is disabled or fails.
func (t *Tracker) archive(ctx context.Context, log zerolog.Logger, owner Owner, kind models.GenerationKind, id, output string) string {
	if t.archiver == nil {
		return output
	}
	data, contentType, err := t.source.DownloadFile(ctx, output)
	if err != nil {
		log.Warn().Err(err).Msg("failed to download output for archiving")
		return output
	}
	archived, err := t.archiver.Archive(owner.Key, kind, id, data, contentType)
	if err != nil {
		log.Warn().Err(err).Msg("failed to archive output")
		return output
	}
	return archived
}

func progressText(attempt int, p *replicate.Prediction) string {
	switch p.Status {
	case replicate.StatusStarting:
		return fmt.Sprintf("Starting (check %d)", attempt)
	case replicate.StatusProcessing:
		return fmt.Sprintf("Processing (check %d)", attempt)
	}
	return fmt.Sprintf("%s (check %d)", p.Status, attempt)
}

func failureOutcome(err error) (string, string) {
	var predErr *poller.PredictionError
	switch {
	case errors.As(err, &predErr):
		return string(predErr.Status), predErr.Message
	case errors.Is(err, poller.ErrMaxAttempts):
		return "timeout", "Generation is taking longer than expected. Please try again later."
	}
	return "error", err.Error()
}
