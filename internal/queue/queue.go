// Package queue defines the background job port used for insight
// enrichment and push-notification intents, with an asynq (Redis) adapter
// and an in-process adapter.
package queue

import (
	"context"
	"errors"
	"time"
)

// Task is a background job: a stable type plus opaque payload bytes.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error asks the adapter to retry.
// Handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption controls enqueue behavior. Zero values mean "unspecified".
type EnqueueOption struct {
	Queue     string
	ProcessIn time.Duration
	MaxRetry  int
	// TaskID deduplicates: a second enqueue with a live TaskID returns
	// ErrDuplicateTask.
	TaskID    string
	Retention time.Duration
}

// ErrDuplicateTask is returned when a task with the same TaskID is queued.
var ErrDuplicateTask = errors.New("queue: duplicate task id")

// Client enqueues tasks.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs workers. Run blocks until ctx is cancelled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
}
