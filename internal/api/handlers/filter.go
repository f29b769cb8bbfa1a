package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/sheetrag/internal/api"
)

type ChatFilter interface {
	Inlet(ctx context.Context, body map[string]any) (map[string]any, bool)
}

type FilterHandler struct {
	filter ChatFilter
}

func NewFilterHandler(filter ChatFilter) *FilterHandler {
	return &FilterHandler{filter: filter}
}

// Inlet returns the chat completion body, enriched with workbook context
// when an answer was available.
func (h *FilterHandler) Inlet(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, _ := h.filter.Inlet(r.Context(), body)
	api.JSON(w, http.StatusOK, out)
}
