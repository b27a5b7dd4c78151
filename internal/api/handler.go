// Package api exposes the generator over HTTP. Every route expects the auth
// middleware to have put the caller's tenant on the request context.
package api

import (
	"context"
	"encoding/json"
	log "log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/contentgen/internal/auth"
	"github.com/vnmchuo/contentgen/internal/billing"
	"github.com/vnmchuo/contentgen/internal/catalog"
	"github.com/vnmchuo/contentgen/internal/generator"
	"github.com/vnmchuo/contentgen/internal/worker"
	"github.com/vnmchuo/contentgen/pkg/ratelimit"
)

// Generator is the orchestrator surface the handlers call.
type Generator interface {
	Titles(ctx context.Context, req generator.TitlesRequest) (*generator.TitleBatch, error)
	Item(ctx context.Context, req generator.ItemRequest) (*generator.ItemResult, error)
	Taxonomies(ctx context.Context, req generator.TaxonomyRequest) (*generator.TaxonomySummary, error)
}

type Handler struct {
	gen     Generator
	runs    *worker.Manager
	catalog *catalog.Catalog
	billing billing.Store
	limiter *ratelimit.Limiter
	tracer  trace.Tracer
	logger  *log.Logger
}

func NewHandler(gen Generator, runs *worker.Manager, cat *catalog.Catalog, billing billing.Store, limiter *ratelimit.Limiter, tracer trace.Tracer, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		gen:     gen,
		runs:    runs,
		catalog: cat,
		billing: billing,
		limiter: limiter,
		tracer:  tracer,
		logger:  logger,
	}
}

// Mount registers the authenticated routes on r. Routes that create content
// also require the authoring privilege.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/v1/models", h.HandleModels)
	r.Get("/v1/usage", h.HandleUsage)
	r.Get("/v1/runs/{id}", h.HandleGetRun)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuthor)
		r.Post("/v1/titles", h.HandleTitles)
		r.Post("/v1/post", h.HandlePost)
		r.Post("/v1/taxonomies", h.HandleTaxonomies)
		r.Post("/v1/runs", h.HandleStartRun)
		r.Post("/v1/runs/{id}/pause", h.HandlePauseRun)
		r.Post("/v1/runs/{id}/resume", h.HandleResumeRun)
	})
}

type titlesBody struct {
	Posts          int    `json:"posts"`
	Pages          int    `json:"pages"`
	Instructions   string `json:"instructions"`
	Model          string `json:"model"`
	GenerateImages *bool  `json:"generate_images"`
}

type itemBody struct {
	Title                   string   `json:"title"`
	PostType                string   `json:"post_type"`
	Instructions            string   `json:"instructions"`
	Model                   string   `json:"model"`
	GenerateImage           bool     `json:"generate_image"`
	ImageModel              string   `json:"image_model"`
	Categories              []string `json:"categories"`
	Tags                    []string `json:"tags"`
	IllustrationDescription string   `json:"illustration_description"`
}

type taxonomyBody struct {
	Items        []generator.TaxonomyItem `json:"items"`
	Categories   bool                     `json:"categories"`
	Tags         bool                     `json:"tags"`
	Instructions string                   `json:"instructions"`
	Model        string                   `json:"model"`
}

func (h *Handler) HandleTitles(w http.ResponseWriter, r *http.Request) {
	var body titlesBody
	ctx, span, ok := h.prepare(w, r, "api.titles", &body)
	if !ok {
		return
	}
	defer span.End()

	images := true
	if body.GenerateImages != nil {
		images = *body.GenerateImages
	}
	batch, err := h.gen.Titles(ctx, generator.TitlesRequest{
		Posts:          body.Posts,
		Pages:          body.Pages,
		Instructions:   body.Instructions,
		Model:          body.Model,
		GenerateImages: images,
	})
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var body itemBody
	ctx, span, ok := h.prepare(w, r, "api.post", &body)
	if !ok {
		return
	}
	defer span.End()

	result, err := h.gen.Item(ctx, generator.ItemRequest{
		Title:                   body.Title,
		PostType:                body.PostType,
		Instructions:            body.Instructions,
		Model:                   body.Model,
		GenerateImage:           body.GenerateImage,
		ImageModel:              body.ImageModel,
		Categories:              body.Categories,
		Tags:                    body.Tags,
		IllustrationDescription: body.IllustrationDescription,
	})
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleTaxonomies(w http.ResponseWriter, r *http.Request) {
	var body taxonomyBody
	ctx, span, ok := h.prepare(w, r, "api.taxonomies", &body)
	if !ok {
		return
	}
	defer span.End()

	summary, err := h.gen.Taxonomies(ctx, generator.TaxonomyRequest{
		Items:        body.Items,
		Categories:   body.Categories,
		Tags:         body.Tags,
		Instructions: body.Instructions,
		Model:        body.Model,
	})
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if auth.GetTenantID(r.Context()) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required.")
		return
	}
	writeJSON(w, http.StatusOK, h.catalog)
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required.")
		return
	}

	// Parse query parameters
	now := time.Now()
	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if s := r.URL.Query().Get("from"); s != "" {
		var err error
		from, err = time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "Invalid 'from' date format (use RFC3339).")
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		var err error
		to, err = time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "Invalid 'to' date format (use RFC3339).")
			return
		}
	}

	logs, err := h.billing.GetLogsByTenant(ctx, tenantID, from, to)
	if err != nil {
		h.logger.Error("failed to load usage logs", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Could not load usage.")
		return
	}
	summary, err := h.billing.GetSummaryByTenant(ctx, tenantID, from, to)
	if err != nil {
		h.logger.Error("failed to load usage summary", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Could not load usage.")
		return
	}
	if logs == nil {
		logs = []*billing.CallLog{}
	}
	if summary == nil {
		summary = []*billing.Summary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   tenantID,
		"total_calls": len(logs),
		"summary":     summary,
		"logs":        logs,
		"from":        from,
		"to":          to,
	})
}

// prepare authenticates, decodes the JSON body into dst, applies the rate
// limit and opens the request span. The caller ends the span.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request, spanName string, dst any) (context.Context, trace.Span, bool) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required.")
		return nil, nil, false
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body.")
		return nil, nil, false
	}

	if !h.allow(ctx, w, tenantID) {
		return nil, nil, false
	}

	ctx, span := h.tracer.Start(ctx, spanName)
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("request_id", auth.GetRequestID(ctx)),
	)
	return ctx, span, true
}

func (h *Handler) allow(ctx context.Context, w http.ResponseWriter, tenantID string) bool {
	allowed, err := h.limiter.Allow(ctx, tenantID, auth.GetRateLimit(ctx))
	if err != nil {
		h.logger.Warn("rate limiter unavailable", "tenant_id", tenantID, "error", err)
	}
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded.")
		return false
	}
	return true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status, code, message := statusFor(err)
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("generation failed", "code", code, "request_id", auth.GetRequestID(ctx), "error", err)
	}
	writeJSON(w, status, errorBody{Code: code, Message: message})
}
