package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/sheetrag/internal/api"
	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/cloo-solutions/sheetrag/internal/service"
)

type QueryService interface {
	Answer(ctx context.Context, question string) (*domain.Answer, error)
	Search(ctx context.Context, query string, opts service.SearchOptions) (*service.SearchResult, error)
}

type QueryHandler struct {
	svc QueryService
}

func NewQueryHandler(svc QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type QueryRequest struct {
	Query string `json:"query"`
}

type SourceResponse struct {
	ChunkID  string               `json:"chunk_id"`
	Content  string               `json:"content"`
	Metadata domain.ChunkMetadata `json:"metadata"`
	Score    float32              `json:"score"`
}

// QueryResponse is written without the data envelope so chat front-ends can
// read it directly.
type QueryResponse struct {
	Status  string           `json:"status"`
	Answer  string           `json:"answer"`
	Sources []SourceResponse `json:"sources"`
	IndexID string           `json:"index_id,omitempty"`
}

func sourceToResponse(s domain.Source) SourceResponse {
	return SourceResponse{
		ChunkID:  s.ChunkID,
		Content:  s.Content,
		Metadata: s.Metadata,
		Score:    api.Finite(s.Score),
	}
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := h.svc.Answer(r.Context(), req.Query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := QueryResponse{
		Status:  string(answer.Status),
		Answer:  answer.Answer,
		Sources: make([]SourceResponse, 0, len(answer.Sources)),
		IndexID: answer.IndexID,
	}
	for _, s := range answer.Sources {
		resp.Sources = append(resp.Sources, sourceToResponse(s))
	}

	api.SetIndexID(w, answer.IndexID)
	status := http.StatusOK
	if answer.Status == domain.AnswerStatusNotReady {
		status = http.StatusServiceUnavailable
	}
	api.JSON(w, status, resp)
}

type SearchRequest struct {
	Query    string   `json:"query"`
	Limit    int      `json:"limit"`
	MinScore *float32 `json:"min_score"`
}

type SearchResponse struct {
	IndexID string           `json:"index_id"`
	Results []SourceResponse `json:"results"`
}

func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit < 0 || req.Limit > 100 {
		api.Error(w, http.StatusBadRequest, "limit must be between 0 and 100")
		return
	}
	if req.MinScore != nil && (*req.MinScore < -1 || *req.MinScore > 1) {
		api.Error(w, http.StatusBadRequest, "min_score must be between -1 and 1")
		return
	}

	result, err := h.svc.Search(r.Context(), req.Query, service.SearchOptions{
		Limit:    req.Limit,
		MinScore: req.MinScore,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SearchResponse{
		IndexID: result.IndexID,
		Results: make([]SourceResponse, 0, len(result.Results)),
	}
	for _, sc := range result.Results {
		resp.Results = append(resp.Results, sourceToResponse(domain.SourceFromScored(sc)))
	}
	api.SetIndexID(w, result.IndexID)
	api.Success(w, http.StatusOK, resp)
}
