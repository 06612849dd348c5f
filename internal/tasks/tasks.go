package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
)

const (
	KindScan   = "scan"
	KindFanout = "fanout"
)

// Task is one background job started on behalf of a user.
type Task struct {
	ID      uuid.UUID
	Kind    string
	Owner   int64
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the task function returns.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Registry runs long operations off the update handler so they can be
// listed and cancelled. Cancelling the base context stops every task.
type Registry struct {
	base context.Context
	log  logger.Logger

	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	wg    sync.WaitGroup
}

func NewRegistry(base context.Context, log logger.Logger) *Registry {
	return &Registry{
		base:  base,
		log:   log,
		tasks: make(map[uuid.UUID]*Task),
	}
}

// Go starts fn in its own goroutine with a cancellable child of the base
// context. The task is forgotten once fn returns.
func (r *Registry) Go(kind string, owner int64, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(r.base)
	t := &Task{
		ID:      uuid.New(),
		Kind:    kind,
		Owner:   owner,
		Started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	log := r.log.Data(logger.Data{"task_id": t.ID.String(), "kind": kind, "owner": owner})
	log.Info("task started")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(t.done)
		defer cancel()
		defer func() {
			r.mu.Lock()
			delete(r.tasks, t.ID)
			r.mu.Unlock()
		}()

		if err := fn(ctx); err != nil {
			log.Err(err).Warn("task finished with error")
			return
		}
		log.Info("task finished")
	}()

	return t
}

// CancelOwner cancels every running task started by owner and returns how
// many were signalled.
func (r *Registry) CancelOwner(owner int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tasks {
		if t.Owner == owner {
			t.cancel()
			n++
		}
	}
	return n
}

// Running lists live tasks, oldest first.
func (r *Registry) Running() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		res = append(res, Task{ID: t.ID, Kind: t.Kind, Owner: t.Owner, Started: t.Started})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Started.Before(res[j].Started) })
	return res
}

// Wait blocks until every task has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}
