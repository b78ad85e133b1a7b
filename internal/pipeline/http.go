package pipeline

// HTTP handlers for the admin surface used by the gateway/UI.
//
// Routes:
//
//	POST /items        → submit a new root queue item
//	GET  /items/{id}   → fetch one item (status, lineage, diagnostics)

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"jobscout/pipeline-service/internal/lineage"
	"jobscout/pipeline-service/internal/model"
	"jobscout/pipeline-service/internal/store"
)

// APIHandler holds the admin surface's shared dependencies.
type APIHandler struct {
	store store.Store

	// Defaults stamped onto submitted root items.
	MaxSpawnDepth int
	MaxRetries    int
}

// NewAPIHandler returns a configured APIHandler.
func NewAPIHandler(st store.Store, maxSpawnDepth, maxRetries int) *APIHandler {
	return &APIHandler{store: st, MaxSpawnDepth: maxSpawnDepth, MaxRetries: maxRetries}
}

// RegisterRoutes mounts all admin routes on mux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/items", h.handleItems)
	mux.HandleFunc("/items/", h.handleItemByID)
}

type submitRequest struct {
	Type          string          `json:"type"`
	URL           string          `json:"url"`
	CompanyName   string          `json:"company_name,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	MaxSpawnDepth int             `json:"max_spawn_depth,omitempty"`
	MaxRetries    int             `json:"max_retries,omitempty"`
}

func (h *APIHandler) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	itemType, err := model.ParseItemType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := lineage.RootOptions{
		Type:          itemType,
		URL:           req.URL,
		CompanyName:   req.CompanyName,
		Payload:       req.Payload,
		MaxSpawnDepth: h.MaxSpawnDepth,
		MaxRetries:    h.MaxRetries,
	}
	if req.MaxSpawnDepth > 0 {
		opts.MaxSpawnDepth = req.MaxSpawnDepth
	}
	if req.MaxRetries > 0 {
		opts.MaxRetries = req.MaxRetries
	}

	item := lineage.NewRoot(opts)
	if err := h.store.Insert(r.Context(), item); err != nil {
		log.Printf("[api] Insert error: %v", err)
		writeError(w, http.StatusInternalServerError, "insert failed")
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

func (h *APIHandler) handleItemByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/items/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "queue item not found")
			return
		}
		log.Printf("[api] Get error: %v", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
