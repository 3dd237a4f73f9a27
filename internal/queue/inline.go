package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Inline is both Client and Server for single-process deployments: tasks
// run on a goroutine right after Enqueue. With Sync set they run on the
// caller's goroutine, which tests rely on.
type Inline struct {
	Sync bool

	mu       sync.Mutex
	handlers map[string]Handler
	seen     map[string]time.Time
	wg       sync.WaitGroup
	log      zerolog.Logger
}

var (
	_ Client = (*Inline)(nil)
	_ Server = (*Inline)(nil)
)

// NewInline returns an Inline queue.
func NewInline(log zerolog.Logger) *Inline {
	return &Inline{handlers: map[string]Handler{}, seen: map[string]time.Time{}, log: log}
}

func (q *Inline) Register(taskType string, h Handler) {
	q.mu.Lock()
	q.handlers[taskType] = h
	q.mu.Unlock()
}

func (q *Inline) Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (string, error) {
	id := uuid.NewString()
	var delay time.Duration
	if len(opts) > 0 {
		if opts[0].TaskID != "" {
			id = opts[0].TaskID
		}
		delay = opts[0].ProcessIn
	}
	q.mu.Lock()
	if _, dup := q.seen[id]; dup {
		q.mu.Unlock()
		return "", ErrDuplicateTask
	}
	q.seen[id] = time.Now()
	h := q.handlers[t.Type]
	q.mu.Unlock()
	if h == nil {
		return "", fmt.Errorf("queue: no handler for %q", t.Type)
	}

	run := func() {
		if err := h(context.WithoutCancel(ctx), t); err != nil {
			q.log.Error().Err(err).Str("task.type", t.Type).Str("task.id", id).Msg("task failed")
		}
	}
	if q.Sync {
		run()
		return id, nil
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		run()
	}()
	return id, nil
}

// Run waits for ctx and then for in-flight tasks.
func (q *Inline) Run(ctx context.Context) error {
	<-ctx.Done()
	q.wg.Wait()
	return nil
}

func (q *Inline) Close() error {
	q.wg.Wait()
	return nil
}
