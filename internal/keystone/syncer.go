package keystone

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goodpapers/goodpapers/internal/models"
)

const defaultQueueSize = 64

// Task is one unit of mirror work: a paper plus the activity update that
// accompanied its insert or status change.
type Task struct {
	Paper  models.Paper
	Update models.Update
}

// Syncer runs mirror tasks on a background worker so ingestion requests
// never wait on Keystone. Tasks are processed in order; a failed task is
// logged and dropped, never retried, and a full queue drops the newest task
// rather than blocking the caller.
type Syncer struct {
	client *Client
	tasks  chan Task
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewSyncer creates a Syncer with the given queue capacity (<= 0 selects 64)
// and starts its worker goroutine.
func NewSyncer(client *Client, queueSize int) *Syncer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &Syncer{
		client: client,
		tasks:  make(chan Task, queueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Enqueue schedules a paper and its update for mirroring. It never blocks:
// when the queue is full the task is dropped with a warning, matching the
// best-effort contract.
func (s *Syncer) Enqueue(task Task) {
	select {
	case s.tasks <- task:
	default:
		slog.Warn("keystone sync queue full, dropping task",
			"paper", task.Paper.Title,
			"message", task.Update.Message,
		)
	}
}

// Close stops accepting tasks and waits for the worker to drain the queue.
func (s *Syncer) Close() {
	s.closeOnce.Do(func() {
		close(s.tasks)
	})
	s.wg.Wait()
}

// run processes tasks until the queue is closed.
func (s *Syncer) run() {
	defer s.wg.Done()
	for task := range s.tasks {
		s.process(task)
	}
}

// process mirrors a single task. Errors are logged and swallowed: the
// primary-store write already succeeded and must stand regardless of the
// mirror's outcome.
func (s *Syncer) process(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	remoteID, err := s.client.SyncPaper(ctx, &task.Paper)
	if err != nil {
		slog.Error("failed to sync paper to keystone",
			"paper", task.Paper.Title,
			"error", err,
		)
		return
	}

	if err := s.client.SyncUpdate(ctx, &task.Update, remoteID); err != nil {
		slog.Error("failed to sync update to keystone",
			"paper", task.Paper.Title,
			"message", task.Update.Message,
			"error", err,
		)
		return
	}

	slog.Info("synced paper to keystone",
		"paper", task.Paper.Title,
		"remote_id", remoteID,
	)
}
