package jobs

import (
	"context"
	"log"
	"sync"

	"github.com/cloo-solutions/sheetrag/internal/domain"
)

// Indexer reserves and runs index rebuilds
type Indexer interface {
	Begin(ctx context.Context, trigger domain.IndexTrigger) (*domain.IndexJob, error)
	Run(ctx context.Context, job *domain.IndexJob, path string) (*domain.IndexManifest, error)
	Abandon(ctx context.Context, job *domain.IndexJob, reason error)
}

// IndexWorker queues rebuild requests and runs them off the request path
type IndexWorker struct {
	indexer  Indexer
	workbook func() string

	mu      sync.Mutex
	pending []*domain.IndexJob
	wake    func()
}

// NewIndexWorker creates a new IndexWorker instance. workbook resolves the
// workbook path at the time a job runs.
func NewIndexWorker(indexer Indexer, workbook func() string) *IndexWorker {
	return &IndexWorker{
		indexer:  indexer,
		workbook: workbook,
		wake:     func() {},
	}
}

// Attach makes Enqueue wake w immediately.
func (iw *IndexWorker) Attach(w *Worker) {
	iw.mu.Lock()
	iw.wake = w.Wake
	iw.mu.Unlock()
}

// Enqueue reserves the indexer and queues a rebuild. It fails with
// ErrIndexingInProgress while another rebuild is queued or running.
func (iw *IndexWorker) Enqueue(ctx context.Context, trigger domain.IndexTrigger) (*domain.IndexJob, error) {
	job, err := iw.indexer.Begin(ctx, trigger)
	if err != nil {
		return nil, err
	}

	iw.mu.Lock()
	iw.pending = append(iw.pending, job)
	wake := iw.wake
	iw.mu.Unlock()

	log.Printf("Queued index job %s (%s)", job.ID, trigger)
	wake()
	return job, nil
}

// ProcessJobs implements the JobProcessor interface
func (iw *IndexWorker) ProcessJobs(ctx context.Context) error {
	iw.mu.Lock()
	jobs := iw.pending
	iw.pending = nil
	iw.mu.Unlock()

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			iw.indexer.Abandon(ctx, job, err)
			continue
		}
		if _, err := iw.indexer.Run(ctx, job, iw.workbook()); err != nil {
			log.Printf("Index job %s failed: %v", job.ID, err)
			continue
		}
		log.Printf("Index job %s completed successfully", job.ID)
	}
	return nil
}

// Drain abandons queued jobs that will not run, e.g. on shutdown.
func (iw *IndexWorker) Drain(ctx context.Context, reason error) {
	iw.mu.Lock()
	jobs := iw.pending
	iw.pending = nil
	iw.mu.Unlock()

	for _, job := range jobs {
		iw.indexer.Abandon(ctx, job, reason)
	}
}
