package jobs

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/cloo-solutions/sheetrag/internal/domain"
)

// RebuildChecker decides whether the workbook differs from the index
type RebuildChecker interface {
	NeedsRebuild(ctx context.Context, path string) (bool, string, error)
}

// RebuildQueue accepts rebuild requests
type RebuildQueue interface {
	Enqueue(ctx context.Context, trigger domain.IndexTrigger) (*domain.IndexJob, error)
}

// Watcher polls the workbook and queues a rebuild when its content changes.
// A change must be seen on two consecutive polls before it is acted on, so
// a file still being copied is not indexed half-written. A fingerprint that
// already triggered a rebuild is not retried until the content changes again.
type Watcher struct {
	checker  RebuildChecker
	queue    RebuildQueue
	workbook func() string

	seen      string
	triggered string
}

// NewWatcher creates a new Watcher instance
func NewWatcher(checker RebuildChecker, queue RebuildQueue, workbook func() string) *Watcher {
	return &Watcher{checker: checker, queue: queue, workbook: workbook}
}

// ProcessJobs implements the JobProcessor interface
func (w *Watcher) ProcessJobs(ctx context.Context) error {
	path := w.workbook()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	needs, fp, err := w.checker.NeedsRebuild(ctx, path)
	if err != nil {
		return err
	}
	if !needs {
		w.seen = fp
		w.triggered = ""
		return nil
	}
	if fp != w.seen {
		w.seen = fp
		return nil
	}
	if fp == w.triggered {
		return nil
	}

	if _, err := w.queue.Enqueue(ctx, domain.IndexTriggerWatcher); err != nil {
		if errors.Is(err, domain.ErrIndexingInProgress) {
			return nil
		}
		return err
	}
	w.triggered = fp
	log.Printf("Workbook %s changed (fingerprint %s), rebuild queued", path, fp)
	return nil
}
