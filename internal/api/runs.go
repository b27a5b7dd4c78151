package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vnmchuo/contentgen/internal/auth"
	"github.com/vnmchuo/contentgen/internal/sequencer"
	"github.com/vnmchuo/contentgen/internal/worker"
)

type runBody struct {
	Posts          int    `json:"posts"`
	Pages          int    `json:"pages"`
	Instructions   string `json:"instructions"`
	Model          string `json:"model"`
	ImageModel     string `json:"image_model"`
	GenerateImages *bool  `json:"generate_images"`
	Categories     bool   `json:"categories"`
	Tags           bool   `json:"tags"`
}

type runResponse struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Options   sequencer.Options `json:"options"`
	sequencer.Snapshot
}

func newRunResponse(run *worker.Run) runResponse {
	return runResponse{
		ID:        run.ID,
		CreatedAt: run.CreatedAt,
		Options:   run.Options,
		Snapshot:  run.Snapshot(),
	}
}

func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var body runBody
	ctx, span, ok := h.prepare(w, r, "api.runs.start", &body)
	if !ok {
		return
	}
	defer span.End()

	opts := sequencer.Options{
		Posts:          body.Posts,
		Pages:          body.Pages,
		Instructions:   body.Instructions,
		TextModel:      strings.TrimSpace(body.Model),
		ImageModel:     body.ImageModel,
		GenerateImages: true,
		Categories:     body.Categories,
		Tags:           body.Tags,
	}
	if body.GenerateImages != nil {
		opts.GenerateImages = *body.GenerateImages
	}
	if opts.TextModel == "" {
		opts.TextModel = h.catalog.DefaultText
	}

	run, err := h.runs.Start(ctx, auth.GetTenantID(ctx), opts)
	switch {
	case errors.Is(err, sequencer.ErrNothingRequested):
		writeError(w, http.StatusBadRequest, "invalid_counts", sequencer.Message(err))
		return
	case errors.Is(err, worker.ErrRunInProgress):
		writeError(w, http.StatusConflict, "run_in_progress", "A generation run is already in progress.")
		return
	case errors.Is(err, worker.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", "The server is shutting down.")
		return
	case err != nil:
		h.fail(ctx, w, err)
		return
	}

	w.Header().Set("Location", "/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, newRunResponse(run))
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

func (h *Handler) HandlePauseRun(w http.ResponseWriter, r *http.Request) {
	h.toggleRun(w, r, h.runs.Pause, "Run is not running or already paused.")
}

func (h *Handler) HandleResumeRun(w http.ResponseWriter, r *http.Request) {
	h.toggleRun(w, r, h.runs.Resume, "Run is not paused.")
}

func (h *Handler) toggleRun(w http.ResponseWriter, r *http.Request, fn func(tenantID, id string) (bool, error), conflict string) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	accepted, err := fn(run.TenantID, run.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run_not_found", "Run not found.")
		return
	}
	if !accepted {
		writeError(w, http.StatusConflict, "invalid_run_state", conflict)
		return
	}
	writeJSON(w, http.StatusOK, newRunResponse(run))
}

func (h *Handler) lookupRun(w http.ResponseWriter, r *http.Request) (*worker.Run, bool) {
	tenantID := auth.GetTenantID(r.Context())
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required.")
		return nil, false
	}
	run, err := h.runs.Get(tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run_not_found", "Run not found.")
		return nil, false
	}
	return run, true
}
