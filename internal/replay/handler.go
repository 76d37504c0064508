// Package replay serves archived debates over the same HTTP surface as the
// generation backend, so recorded debates can be played back through the
// streaming client.
package replay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-debate/internal/api/debates"
	"github.com/tjfontaine/polyglot-debate/internal/cache"
	"github.com/tjfontaine/polyglot-debate/internal/core/domain"
	"github.com/tjfontaine/polyglot-debate/internal/server"
	"github.com/tjfontaine/polyglot-debate/internal/storage"
	"github.com/tjfontaine/polyglot-debate/internal/stream"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Option configures a Handler.
type Option func(*Handler)

// WithChunkSize splits each transcript entry into fragments of at most n
// runes, sent as consecutive message records for the same speaker.
func WithChunkSize(n int) Option {
	return func(h *Handler) {
		h.chunkSize = n
	}
}

// WithPacing delays each streamed record by d.
func WithPacing(d time.Duration) Option {
	return func(h *Handler) {
		h.pacing = d
	}
}

// Handler serves the replay routes.
type Handler struct {
	store     storage.ArchiveStore
	logger    *slog.Logger
	chunkSize int
	pacing    time.Duration
}

// NewHandler creates a replay handler over store.
func NewHandler(store storage.ArchiveStore, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{store: store, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the replay routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/GenerateDebate", h.HandleGenerate)
	r.Get("/list-debates", h.HandleList)
	r.Get("/get-debate", h.HandleGet)
}

// HandleGenerate streams the newest archived debate matching the requested
// topic and panelists. Unknown pairs receive a single error record.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req debates.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}
	if req.Topic == "" || len(req.SelectedPanelists) == 0 {
		writeError(w, http.StatusBadRequest, "Topic and at least one panelist are required", "INVALID_REQUEST")
		return
	}

	debate, err := h.findMatch(r, &req)
	if err != nil {
		server.AddError(ctx, err)
		writeError(w, http.StatusInternalServerError, "Failed to read archive", "STORAGE_ERROR")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")

	if debate == nil {
		w.WriteHeader(http.StatusOK)
		h.writeRecord(w, domain.ErrorEvent("No archived debate matches this topic and panel"))
		return
	}

	server.AddLogField(ctx, "debate_id", debate.ID)
	w.Header().Set(debates.DebateIDHeader, debate.ID)
	w.WriteHeader(http.StatusOK)

	for _, entry := range debate.Transcript {
		for _, fragment := range h.fragments(entry.Text) {
			if h.pacing > 0 {
				select {
				case <-time.After(h.pacing):
				case <-ctx.Done():
					return
				}
			}
			if !h.writeRecord(w, domain.MessageEvent(entry.SpeakerID, fragment)) {
				return
			}
		}
	}
	h.writeRecord(w, domain.DoneEvent())
}

func (h *Handler) findMatch(r *http.Request, req *debates.GenerateRequest) (*domain.Debate, error) {
	candidates, err := h.store.FindByTopic(r.Context(), req.Topic)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if !cache.IsCacheHit(&candidates[i], req.Topic, req.SelectedPanelists) {
			continue
		}
		return h.store.GetDebate(r.Context(), candidates[i].ID)
	}
	return nil, nil
}

func (h *Handler) fragments(text string) []string {
	runes := []rune(text)
	if h.chunkSize <= 0 || len(runes) <= h.chunkSize {
		return []string{text}
	}
	var out []string
	for start := 0; start < len(runes); start += h.chunkSize {
		end := min(start+h.chunkSize, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

func (h *Handler) writeRecord(w http.ResponseWriter, ev domain.StreamEvent) bool {
	record, err := stream.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode record", slog.String("error", err.Error()))
		return false
	}
	record = append(record, '\n')
	if _, err := w.Write(record); err != nil {
		return false
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return true
}

// HandleList returns one page of archived debates, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := max(queryInt(r, "offset", 0), 0)

	page, err := cache.ArchiveSource{Store: h.store}.ListDebates(r.Context(), limit, offset)
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to list debates", "STORAGE_ERROR")
		return
	}
	if page.Debates == nil {
		page.Debates = []domain.HistoricalDebate{}
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGet returns one archived debate in its stored document form.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Debate ID is required", "INVALID_REQUEST")
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid debate ID", "INVALID_REQUEST")
		return
	}

	debate, err := h.store.GetDebate(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Debate not found", "NOT_FOUND")
		return
	}
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to load debate", "STORAGE_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, debates.DocumentFromDomain(debate))
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, debates.ErrorResponse{
		Error:     msg,
		Code:      code,
		Retryable: status >= http.StatusInternalServerError,
	})
}
