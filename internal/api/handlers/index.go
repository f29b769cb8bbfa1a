package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/api"
	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/pagination"
	"github.com/cloo-solutions/sheetrag/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type IndexService interface {
	State() service.IndexState
	Clear(ctx context.Context) error
}

type RebuildQueue interface {
	Enqueue(ctx context.Context, trigger domain.IndexTrigger) (*domain.IndexJob, error)
}

type ReadinessChecker interface {
	Ready(ctx context.Context) (*domain.IndexManifest, bool, error)
}

type WorkbookInfoProvider interface {
	Path() string
	Info() (*service.WorkbookInfo, error)
}

// JobHistory lists past rebuilds. Only the postgres backend keeps one.
type JobHistory interface {
	ListRecent(ctx context.Context, after *pagination.Cursor, limit int) ([]*domain.IndexJob, error)
	GetByID(ctx context.Context, id string) (*domain.IndexJob, error)
}

type IndexHandler struct {
	index    IndexService
	queue    RebuildQueue
	ready    ReadinessChecker
	workbook WorkbookInfoProvider
	history  JobHistory
}

func NewIndexHandler(index IndexService, queue RebuildQueue, ready ReadinessChecker, workbook WorkbookInfoProvider) *IndexHandler {
	return &IndexHandler{index: index, queue: queue, ready: ready, workbook: workbook}
}

// WithHistory enables GET /index/jobs and GET /index/jobs/{id}.
func (h *IndexHandler) WithHistory(history JobHistory) *IndexHandler {
	h.history = history
	return h
}

type JobResponse struct {
	ID         string  `json:"id"`
	Trigger    string  `json:"trigger"`
	Status     string  `json:"status"`
	Done       bool    `json:"done"`
	Error      string  `json:"error,omitempty"`
	ManifestID string  `json:"manifest_id,omitempty"`
	CreatedAt  string  `json:"created_at"`
	StartedAt  *string `json:"started_at,omitempty"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

func jobToResponse(j *domain.IndexJob) *JobResponse {
	if j == nil {
		return nil
	}
	return &JobResponse{
		ID:         j.ID,
		Trigger:    string(j.Trigger),
		Status:     string(j.Status),
		Done:       j.Done(),
		Error:      j.Error,
		ManifestID: j.ManifestID,
		CreatedAt:  j.CreatedAt.UTC().Format(time.RFC3339),
		StartedAt:  formatTime(j.StartedAt),
		FinishedAt: formatTime(j.FinishedAt),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

type ManifestResponse struct {
	ID                string             `json:"id"`
	EmbeddingModel    string             `json:"embedding_model"`
	Dimension         int                `json:"dimension"`
	ChunkConfig       domain.ChunkConfig `json:"chunk_config"`
	UnitMode          string             `json:"unit_mode"`
	Source            string             `json:"source"`
	SourceFingerprint string             `json:"source_fingerprint"`
	UnitCount         int                `json:"unit_count"`
	ChunkCount        int                `json:"chunk_count"`
	CreatedAt         string             `json:"created_at"`
}

func manifestToResponse(m *domain.IndexManifest) *ManifestResponse {
	if m == nil {
		return nil
	}
	return &ManifestResponse{
		ID:                m.ID,
		EmbeddingModel:    m.EmbeddingModel,
		Dimension:         m.Dimension,
		ChunkConfig:       m.ChunkConfig,
		UnitMode:          string(m.UnitMode),
		Source:            m.Source,
		SourceFingerprint: m.SourceFingerprint,
		UnitCount:         m.UnitCount,
		ChunkCount:        m.ChunkCount,
		CreatedAt:         m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type WorkbookStatus struct {
	Path        string `json:"path"`
	Exists      bool   `json:"exists"`
	Size        int64  `json:"size,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	ModifiedAt  string `json:"modified_at,omitempty"`
	// Indexed is true when the index was built from this exact file.
	Indexed bool `json:"indexed"`
}

type IndexingStatus struct {
	Running    bool         `json:"running"`
	CurrentJob *JobResponse `json:"current_job,omitempty"`
	LastJob    *JobResponse `json:"last_job,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
}

type StatusResponse struct {
	Status   string            `json:"status"`
	Index    *ManifestResponse `json:"index"`
	Workbook WorkbookStatus    `json:"workbook"`
	Indexing IndexingStatus    `json:"indexing"`
}

const (
	statusReady    = "ready"
	statusNotReady = "not_ready"
)

func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	manifest, ready, err := h.ready.Ready(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := StatusResponse{
		Status: statusNotReady,
		Index:  manifestToResponse(manifest),
		Workbook: WorkbookStatus{
			Path: h.workbook.Path(),
		},
	}
	if ready {
		resp.Status = statusReady
	}

	if info, err := h.workbook.Info(); err == nil {
		resp.Workbook = WorkbookStatus{
			Path:        info.Path,
			Exists:      true,
			Size:        info.Size,
			Fingerprint: info.Fingerprint,
			ModifiedAt:  info.ModifiedAt.Format(time.RFC3339),
			Indexed:     manifest != nil && manifest.SourceFingerprint == info.Fingerprint,
		}
	}

	st := h.index.State()
	resp.Indexing = IndexingStatus{
		Running:    st.Running,
		CurrentJob: jobToResponse(st.CurrentJob),
		LastJob:    jobToResponse(st.LastJob),
		LastError:  st.LastError,
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Enqueue(r.Context(), domain.IndexTriggerManual)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusAccepted, jobToResponse(job))
}

func (h *IndexHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.index.Clear(r.Context()); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": statusNotReady})
}

func (h *IndexHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		api.Error(w, http.StatusNotFound, "job history is not available for this index backend")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			api.Error(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	after, err := pagination.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	jobs, err := h.history.ListRecent(r.Context(), after, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*JobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, jobToResponse(j))
	}
	next := pagination.CreateNextCursor(jobs, limit,
		func(j *domain.IndexJob) string { return j.ID },
		func(j *domain.IndexJob) time.Time { return j.CreatedAt },
	)
	api.Success(w, http.StatusOK, pagination.PageResult[*JobResponse]{
		Items:   items,
		Cursor:  next,
		HasMore: next != "",
	})
}

// Job returns one recorded rebuild so a client can poll the job that
// POST /index/rebuild accepted.
func (h *IndexHandler) Job(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		api.Error(w, http.StatusNotFound, "job history is not available for this index backend")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.history.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, jobToResponse(job))
}
