// Package poller drives a Replicate prediction to a terminal state by
// repeatedly reading its status.
//
// Attempts within one Poll call are strictly sequential. Transient failures
// (5xx, 429, timeouts, network errors) are retried with a growing delay;
// terminal vendor states and other client errors end the loop at once.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"facetalk-backend/internal/models"
	"facetalk-backend/internal/replicate"
)

// DefaultMaxAttempts covers 30 minutes at the slowest interval.
const DefaultMaxAttempts = 180

// maxBackoffFactor caps how far consecutive transient failures stretch the
// interval.
const maxBackoffFactor = 4

// ErrMaxAttempts is returned when the prediction is still pending after the
// last allowed attempt.
var ErrMaxAttempts = errors.New("prediction did not finish within the maximum number of attempts")

// StatusFetcher reads the current state of a prediction.
type StatusFetcher interface {
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

// PredictionError reports a prediction that ended as failed or canceled.
// Its message is the vendor's error text verbatim.
type PredictionError struct {
	ID      string
	Status  replicate.Status
	Message string
}

func (e *PredictionError) Error() string {
	return e.Message
}

type Options struct {
	Interval    time.Duration
	MaxAttempts int

	// OnUpdate is called after every successful status read.
	OnUpdate func(attempt int, prediction *replicate.Prediction)
	// OnRetry is called after every transient failure.
	OnRetry func(attempt int, err error)
}

// IntervalFor returns the polling interval for a generation kind: short for
// fast jobs, long for slow ones.
func IntervalFor(kind models.GenerationKind) time.Duration {
	switch kind {
	case models.KindVoiceClone:
		return 2 * time.Second
	case models.KindAnimation:
		return 5 * time.Second
	case models.KindTalkingPortrait:
		return 10 * time.Second
	}
	return 5 * time.Second
}

// Poll reads the prediction until it succeeds, fails, is canceled, or
// MaxAttempts reads have been made. The returned prediction is the last
// state observed.
func Poll(ctx context.Context, fetcher StatusFetcher, id string, opts Options) (*replicate.Prediction, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var (
		last     *replicate.Prediction
		lastErr  error
		failures int
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		prediction, err := fetcher.GetPrediction(ctx, id)
		if err != nil {
			if !replicate.IsRetryable(err) {
				return last, err
			}
			lastErr = err
			failures++
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, err)
			}
		} else {
			last = prediction
			lastErr = nil
			failures = 0
			if opts.OnUpdate != nil {
				opts.OnUpdate(attempt, prediction)
			}

			switch prediction.Status {
			case replicate.StatusSucceeded:
				return prediction, nil
			case replicate.StatusFailed:
				msg := prediction.Error
				if msg == "" {
					msg = "prediction failed"
				}
				return prediction, &PredictionError{ID: id, Status: prediction.Status, Message: msg}
			case replicate.StatusCanceled:
				msg := prediction.Error
				if msg == "" {
					msg = "prediction was canceled"
				}
				return prediction, &PredictionError{ID: id, Status: prediction.Status, Message: msg}
			}
		}

		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, backoff(interval, failures)); err != nil {
			return last, err
		}
	}

	if lastErr != nil {
		return last, fmt.Errorf("%w after %d attempts: %v", ErrMaxAttempts, maxAttempts, lastErr)
	}
	return last, fmt.Errorf("%w after %d attempts", ErrMaxAttempts, maxAttempts)
}

func backoff(interval time.Duration, failures int) time.Duration {
	factor := 1
	for i := 0; i < failures && factor < maxBackoffFactor; i++ {
		factor *= 2
	}
	return interval * time.Duration(factor)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
