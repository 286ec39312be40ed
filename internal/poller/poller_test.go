package poller_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetalk-backend/internal/models"
	"facetalk-backend/internal/poller"
	"facetalk-backend/internal/replicate"
)

type step struct {
	prediction *replicate.Prediction
	err        error
}

// scriptedFetcher answers status reads from a fixed script and repeats the
// last step once the script runs out.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *scriptedFetcher) GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	return f.steps[i].prediction, f.steps[i].err
}

func succeeded(output string) *replicate.Prediction {
	raw, _ := json.Marshal(output)
	return &replicate.Prediction{ID: "job-1", Status: replicate.StatusSucceeded, Output: raw}
}

func status(s replicate.Status) *replicate.Prediction {
	return &replicate.Prediction{ID: "job-1", Status: s}
}

var fast = poller.Options{Interval: time.Millisecond, MaxAttempts: 10}

func TestPoll_ImmediateSuccess(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{prediction: succeeded("https://x/y.mp4")}}}

	prediction, err := poller.Poll(context.Background(), fetcher, "job-1", fast)

	require.NoError(t, err)
	assert.Equal(t, "https://x/y.mp4", prediction.OutputURL())
	assert.Equal(t, 1, fetcher.calls)
}

func TestPoll_FailedCarriesVendorMessage(t *testing.T) {
	failed := status(replicate.StatusFailed)
	failed.Error = "boom"
	fetcher := &scriptedFetcher{steps: []step{{prediction: failed}}}

	_, err := poller.Poll(context.Background(), fetcher, "job-1", fast)

	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	var predErr *poller.PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.Equal(t, replicate.StatusFailed, predErr.Status)
}

func TestPoll_Canceled(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{prediction: status(replicate.StatusCanceled)}}}

	_, err := poller.Poll(context.Background(), fetcher, "job-1", fast)

	assert.EqualError(t, err, "prediction was canceled")
}

func TestPoll_TransientServerErrorIsRetried(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{err: &replicate.APIError{StatusCode: 500, Detail: "internal"}},
		{prediction: succeeded("https://x/y.mp4")},
	}}
	var retries int
	opts := fast
	opts.OnRetry = func(attempt int, err error) { retries++ }

	prediction, err := poller.Poll(context.Background(), fetcher, "job-1", opts)

	require.NoError(t, err)
	assert.Equal(t, "https://x/y.mp4", prediction.OutputURL())
	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, 1, retries)
}

func TestPoll_TimeoutIsRetried(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{err: replicate.ErrTimeout},
		{prediction: status(replicate.StatusProcessing)},
		{prediction: succeeded("https://x/z.wav")},
	}}

	prediction, err := poller.Poll(context.Background(), fetcher, "job-1", fast)

	require.NoError(t, err)
	assert.Equal(t, "https://x/z.wav", prediction.OutputURL())
	assert.Equal(t, 3, fetcher.calls)
}

func TestPoll_ClientErrorIsNotRetried(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{err: &replicate.APIError{StatusCode: 404, Detail: "not found"}},
		{prediction: succeeded("https://x/y.mp4")},
	}}

	_, err := poller.Poll(context.Background(), fetcher, "job-1", fast)

	var apiErr *replicate.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, 1, fetcher.calls)
}

func TestPoll_MaxAttemptsExhausted(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{prediction: status(replicate.StatusProcessing)}}}
	var updates []int
	opts := poller.Options{
		Interval:    time.Millisecond,
		MaxAttempts: 3,
		OnUpdate:    func(attempt int, p *replicate.Prediction) { updates = append(updates, attempt) },
	}

	prediction, err := poller.Poll(context.Background(), fetcher, "job-1", opts)

	assert.True(t, errors.Is(err, poller.ErrMaxAttempts))
	assert.Equal(t, replicate.StatusProcessing, prediction.Status)
	assert.Equal(t, []int{1, 2, 3}, updates)
	assert.Equal(t, 3, fetcher.calls)
}

func TestPoll_ContextCanceledStopsLoop(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{prediction: status(replicate.StatusStarting)}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := poller.Poll(ctx, fetcher, "job-1", poller.Options{Interval: time.Hour, MaxAttempts: 5})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fetcher.calls)
}

func TestIntervalFor(t *testing.T) {
	assert.Less(t, poller.IntervalFor(models.KindVoiceClone), poller.IntervalFor(models.KindAnimation))
	assert.Less(t, poller.IntervalFor(models.KindAnimation), poller.IntervalFor(models.KindTalkingPortrait))
	assert.GreaterOrEqual(t, time.Duration(poller.DefaultMaxAttempts)*poller.IntervalFor(models.KindTalkingPortrait), 30*time.Minute)
}
