// Package tasks keeps the per-profile registry of submitted generation jobs
// and their observed progress.
//
// Records live in Redis, one hash per owner (a profile id or a user id) with
// one field per task. Writes to the same task are last-write-wins; the
// tracker goroutine that polls a job is its only writer after creation.
// Every read path drops records whose lastUpdated is more than 24 hours old.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"facetalk-backend/internal/models"
)

const (
	// Expiry is how long a task survives without being updated.
	Expiry = 24 * time.Hour
	// HistoryLimit bounds the per-owner generation history list.
	HistoryLimit = 10

	resultTTL = 30 * 24 * time.Hour
)

var (
	ErrNotFound = errors.New("task not found")
	// ErrHistoryNotRecorded means the task itself was saved as completed but
	// its history or last-result entry was not.
	ErrHistoryNotRecorded = errors.New("history not recorded")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Task struct {
	ID          string                `json:"id"`
	Type        models.GenerationKind `json:"type"`
	Status      Status                `json:"status"`
	Progress    string                `json:"progress"`
	StartTime   time.Time             `json:"startTime"`
	LastUpdated time.Time             `json:"lastUpdated"`
	Inputs      map[string]any        `json:"inputs,omitempty"`
	Output      string                `json:"output,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// Active reports whether the task has not reached a terminal state.
func (t *Task) Active() bool {
	return t.Status == StatusPending || t.Status == StatusProcessing
}

type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// ParseFilter maps a query value to a Filter, defaulting to FilterAll.
func ParseFilter(s string) (Filter, bool) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, true
	case FilterActive:
		return FilterActive, true
	case FilterCompleted:
		return FilterCompleted, true
	}
	return "", false
}

// Result is one finished generation, kept in the bounded history list and
// as the last result per kind.
type Result struct {
	TaskID    string                `json:"taskId"`
	Type      models.GenerationKind `json:"type"`
	Output    string                `json:"output"`
	CreatedAt time.Time             `json:"createdAt"`
}

type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		prefix: "facetalk:",
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) tasksKey(owner string) string {
	return s.prefix + "tasks:" + owner
}

func (s *Store) historyKey(owner string) string {
	return s.prefix + "history:" + owner
}

func (s *Store) lastKey(owner string, kind models.GenerationKind) string {
	return s.prefix + "last:" + owner + ":" + string(kind)
}

func (s *Store) expired(t *Task) bool {
	return s.now().Sub(t.LastUpdated) > Expiry
}

// Create registers a new pending task. An empty id gets a generated one, for
// flows that have no vendor job id.
func (s *Store) Create(ctx context.Context, owner string, kind models.GenerationKind, id string, inputs map[string]any) (*Task, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UTC()
	task := &Task{
		ID:          id,
		Type:        kind,
		Status:      StatusPending,
		Progress:    "Queued",
		StartTime:   now,
		LastUpdated: now,
		Inputs:      inputs,
	}
	if err := s.put(ctx, owner, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateProgress marks the task processing with a human-readable status.
func (s *Store) UpdateProgress(ctx context.Context, owner, id, progress string) (*Task, error) {
	return s.update(ctx, owner, id, func(t *Task) {
		t.Status = StatusProcessing
		t.Progress = progress
	})
}

// Complete finalizes the task with its output and records it in the
// owner's history and last-result cache.
func (s *Store) Complete(ctx context.Context, owner, id, output string) (*Task, error) {
	task, err := s.update(ctx, owner, id, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = "Completed"
		t.Output = output
		t.Error = ""
	})
	if err != nil {
		return nil, err
	}

	result := Result{TaskID: task.ID, Type: task.Type, Output: output, CreatedAt: task.LastUpdated}
	if err := s.pushResult(ctx, owner, result); err != nil {
		return task, fmt.Errorf("%w: %w", ErrHistoryNotRecorded, err)
	}
	return task, nil
}

// Fail finalizes the task with an error.
func (s *Store) Fail(ctx context.Context, owner, id, errMsg string) (*Task, error) {
	return s.update(ctx, owner, id, func(t *Task) {
		t.Status = StatusFailed
		t.Progress = "Failed"
		t.Error = errMsg
	})
}

func (s *Store) Remove(ctx context.Context, owner, id string) error {
	n, err := s.client.HDel(ctx, s.tasksKey(owner), id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove task: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, owner, id string) (*Task, error) {
	return s.load(ctx, owner, id)
}

// List returns the owner's tasks, newest first, after pruning expired ones.
// FilterCompleted includes failed tasks: both are finished.
func (s *Store) List(ctx context.Context, owner string, filter Filter) ([]Task, error) {
	key := s.tasksKey(owner)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	var stale []string
	out := make([]Task, 0, len(fields))
	for id, raw := range fields {
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil || s.expired(&task) {
			stale = append(stale, id)
			continue
		}
		switch filter {
		case FilterActive:
			if !task.Active() {
				continue
			}
		case FilterCompleted:
			if task.Active() {
				continue
			}
		}
		out = append(out, task)
	}

	if len(stale) > 0 {
		if err := s.client.HDel(ctx, key, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired tasks: %w", err)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// History returns up to HistoryLimit finished generations, newest first.
func (s *Store) History(ctx context.Context, owner string) ([]Result, error) {
	raws, err := s.client.LRange(ctx, s.historyKey(owner), 0, HistoryLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	out := make([]Result, 0, len(raws))
	for _, raw := range raws {
		var r Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// LastResult returns the most recent finished generation of a kind.
func (s *Store) LastResult(ctx context.Context, owner string, kind models.GenerationKind) (*Result, error) {
	raw, err := s.client.Get(ctx, s.lastKey(owner, kind)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last result: %w", err)
	}
	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("failed to decode last result: %w", err)
	}
	return &r, nil
}

// Transfer moves everything recorded for one owner onto another: tasks,
// history and last results. Entries already held by the target win on id
// clashes; the merged history keeps the newest HistoryLimit results. The
// source keys are deleted.
func (s *Store) Transfer(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}

	fields, err := s.client.HGetAll(ctx, s.tasksKey(from)).Result()
	if err != nil {
		return fmt.Errorf("failed to read tasks: %w", err)
	}
	history, err := s.mergedHistory(ctx, from, to)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	if len(fields) > 0 {
		for id, raw := range fields {
			pipe.HSetNX(ctx, s.tasksKey(to), id, raw)
		}
		pipe.Expire(ctx, s.tasksKey(to), Expiry)
	}
	if len(history) > 0 {
		pipe.Del(ctx, s.historyKey(to))
		pipe.RPush(ctx, s.historyKey(to), history...)
		pipe.Expire(ctx, s.historyKey(to), resultTTL)
	}
	for _, kind := range models.AllKinds {
		if err := s.queueLastResult(ctx, pipe, from, to, kind); err != nil {
			return err
		}
	}
	pipe.Del(ctx, s.tasksKey(from), s.historyKey(from))
	for _, kind := range models.AllKinds {
		pipe.Del(ctx, s.lastKey(from, kind))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to transfer tasks: %w", err)
	}
	return nil
}

// mergedHistory returns both owners' history, newest first, bounded to
// HistoryLimit and encoded for RPush. It is nil when the source has none.
func (s *Store) mergedHistory(ctx context.Context, from, to string) ([]any, error) {
	source, err := s.History(ctx, from)
	if err != nil {
		return nil, err
	}
	if len(source) == 0 {
		return nil, nil
	}
	target, err := s.History(ctx, to)
	if err != nil {
		return nil, err
	}

	merged := append(target, source...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if len(merged) > HistoryLimit {
		merged = merged[:HistoryLimit]
	}

	out := make([]any, 0, len(merged))
	for _, r := range merged {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		out = append(out, data)
	}
	return out, nil
}

// queueLastResult copies the source's last result of a kind when it is newer
// than the target's.
func (s *Store) queueLastResult(ctx context.Context, pipe redis.Pipeliner, from, to string, kind models.GenerationKind) error {
	source, err := s.LastResult(ctx, from, kind)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	target, err := s.LastResult(ctx, to, kind)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if target != nil && !source.CreatedAt.After(target.CreatedAt) {
		return nil
	}
	data, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	pipe.Set(ctx, s.lastKey(to, kind), data, resultTTL)
	return nil
}

func (s *Store) load(ctx context.Context, owner, id string) (*Task, error) {
	raw, err := s.client.HGet(ctx, s.tasksKey(owner), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil || s.expired(&task) {
		_ = s.client.HDel(ctx, s.tasksKey(owner), id).Err()
		return nil, ErrNotFound
	}
	return &task, nil
}

func (s *Store) update(ctx context.Context, owner, id string, mutate func(*Task)) (*Task, error) {
	task, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	mutate(task)
	task.LastUpdated = s.now().UTC()
	if err := s.put(ctx, owner, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Store) put(ctx context.Context, owner string, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	key := s.tasksKey(owner)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, task.ID, data)
	pipe.Expire(ctx, key, Expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (s *Store) pushResult(ctx context.Context, owner string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	historyKey := s.historyKey(owner)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, historyKey, data)
	pipe.LTrim(ctx, historyKey, 0, HistoryLimit-1)
	pipe.Expire(ctx, historyKey, resultTTL)
	pipe.Set(ctx, s.lastKey(owner, result.Type), data, resultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}
