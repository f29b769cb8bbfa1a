package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/sheetrag/internal/api"
	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/service"
)

type WorkbookService interface {
	Save(ctx context.Context, fileName string, r io.Reader) (*service.WorkbookInfo, error)
	DownloadURL(ctx context.Context) (string, error)
}

type WorkbookHandler struct {
	svc   WorkbookService
	queue RebuildQueue
}

func NewWorkbookHandler(svc WorkbookService, queue RebuildQueue) *WorkbookHandler {
	return &WorkbookHandler{svc: svc, queue: queue}
}

type UploadResponse struct {
	Path        string       `json:"path"`
	Size        int64        `json:"size"`
	Fingerprint string       `json:"fingerprint"`
	ArchiveKey  string       `json:"archive_key,omitempty"`
	Job         *JobResponse `json:"job,omitempty"`
	// RebuildError is set when ?rebuild=true could not queue a rebuild.
	RebuildError string `json:"rebuild_error,omitempty"`
}

func (h *WorkbookHandler) Upload(w http.ResponseWriter, r *http.Request) {
	rebuild := false
	if raw := r.URL.Query().Get("rebuild"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "rebuild must be a boolean")
			return
		}
		rebuild = v
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.TooLarge(w, maxErr.Limit)
			return
		}
		api.Error(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	info, err := h.svc.Save(r.Context(), header.Filename, file)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := UploadResponse{
		Path:        info.Path,
		Size:        info.Size,
		Fingerprint: info.Fingerprint,
		ArchiveKey:  info.ArchiveKey,
	}

	if rebuild {
		job, err := h.queue.Enqueue(r.Context(), domain.IndexTriggerUpload)
		if err != nil {
			log.Printf("workbook upload: rebuild not queued: %v", err)
			resp.RebuildError = err.Error()
		} else {
			resp.Job = jobToResponse(job)
		}
	}

	api.Success(w, http.StatusCreated, resp)
}

func (h *WorkbookHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.svc.DownloadURL(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"url": url})
}
