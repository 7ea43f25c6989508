package titler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/tasktalk/internal/storage"
)

// JobStore abstracts the job queue and the conversation access the worker
// needs.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetRecentMessages(ctx context.Context, conversationID, owner string, limit int) ([]storage.Message, error)
	RenameIfUntitled(ctx context.Context, id, owner, title string) (bool, error)
}

// Worker processes conversation_title jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	titler  Titler
	poll    time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, titler Titler, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		titler:  titler,
		poll:    pollInterval,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("title worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single conversation_title job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobConversationTitle})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("title job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var p storage.TitlePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if p.ConversationID == "" || p.Owner == "" {
		return errors.New("payload missing conversation_id or owner")
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	msgs, err := w.store.GetRecentMessages(ctx, p.ConversationID, p.Owner, 4)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}
	if len(msgs) == 0 {
		// Deleted since the job was queued.
		w.logger.Debug("conversation gone, skipping title", "conversation_id", p.ConversationID)
		return nil
	}

	title, err := w.titler.Title(ctx, msgs)
	if err != nil {
		return fmt.Errorf("generating title: %w", err)
	}
	renamed, err := w.store.RenameIfUntitled(ctx, p.ConversationID, p.Owner, title)
	if err != nil {
		return fmt.Errorf("renaming conversation: %w", err)
	}
	w.logger.Debug("conversation titled", "conversation_id", p.ConversationID, "renamed", renamed)
	return nil
}
