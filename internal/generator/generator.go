// Package generator turns model output into stored content: title batches,
// single posts or pages with an optional featured image, and taxonomy plans.
// It holds no state between requests.
package generator

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/contentgen/internal/auth"
	"github.com/vnmchuo/contentgen/internal/billing"
	"github.com/vnmchuo/contentgen/internal/media"
	"github.com/vnmchuo/contentgen/internal/prompt"
	"github.com/vnmchuo/contentgen/internal/provider"
	"github.com/vnmchuo/contentgen/internal/store"
)

// Settings is the read-only configuration the generator is built with.
type Settings struct {
	OpenAIKey         string
	GeminiKey         string
	ReplicateKey      string
	DefaultImageModel string
	SiteName          string
	SiteDescription   string
}

type Options struct {
	Settings  Settings
	Factories Factories
	Prompts   *prompt.Builder
	Store     store.Store
	Media     media.Storage
	// Usage is optional; when set every provider call is logged to it.
	Usage  billing.Store
	Tracer trace.Tracer
	Logger *log.Logger
	Now    func() time.Time
}

type Generator struct {
	settings Settings
	registry *Registry
	prompts  *prompt.Builder
	store    store.Store
	media    media.Storage
	usage    billing.Store
	tracer   trace.Tracer
	logger   *log.Logger
	markup   *bluemonday.Policy
	now      func() time.Time

	pending sync.WaitGroup
}

const usageLogTimeout = 5 * time.Second

func New(opts Options) *Generator {
	g := &Generator{
		settings: opts.Settings,
		registry: NewRegistry(opts.Settings, opts.Factories),
		prompts:  opts.Prompts,
		store:    opts.Store,
		media:    opts.Media,
		usage:    opts.Usage,
		tracer:   opts.Tracer,
		logger:   opts.Logger,
		markup:   MarkupPolicy(),
		now:      opts.Now,
	}
	if g.prompts == nil {
		g.prompts = prompt.NewBuilder(prompt.Filters{})
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer("contentgen/generator")
	}
	if g.logger == nil {
		g.logger = log.Default()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

func (g *Generator) Registry() *Registry {
	return g.registry
}

// Shutdown waits for usage log writes still in flight.
func (g *Generator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// textModel rejects a request that names no text model. Callers that act
// for a user fill in the default before calling.
func textModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", validationError("missing_model", "A text model is required.")
	}
	return model, nil
}

func pollsOf(resp *provider.Response, err error) int {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Polls
	}
	if resp != nil {
		return resp.Polls
	}
	return 0
}

// call sends one request through the registry and records its outcome.
func (g *Generator) call(ctx context.Context, operation string, p provider.Provider, req *provider.Request) (*provider.Response, error) {
	ctx, span := g.tracer.Start(ctx, "provider."+string(p.Vendor()))
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", operation),
		attribute.String("model", req.Model),
	)

	start := time.Now()
	resp, err := g.registry.Execute(ctx, p, req)
	elapsed := time.Since(start)
	polls := pollsOf(resp, err)

	outcome := "ok"
	if err != nil {
		outcome = string(provider.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("provider call failed",
			"operation", operation,
			"vendor", p.Vendor(),
			"model", req.Model,
			"elapsed_ms", elapsed.Milliseconds(),
			"kind", outcome,
			"error", err.Error(),
		)
	} else {
		g.logger.Debug("provider call",
			"operation", operation,
			"vendor", p.Vendor(),
			"model", req.Model,
			"elapsed_ms", elapsed.Milliseconds(),
			"polls", polls,
		)
	}

	if g.usage != nil {
		entry := &billing.CallLog{
			TenantID:  auth.GetTenantID(ctx),
			RequestID: auth.GetRequestID(ctx),
			Operation: operation,
			Vendor:    string(p.Vendor()),
			Model:     req.Model,
			Outcome:   outcome,
			LatencyMs: elapsed.Milliseconds(),
			Polls:     polls,
		}
		g.pending.Add(1)
		go func() {
			defer g.pending.Done()
			logCtx, cancel := context.WithTimeout(context.Background(), usageLogTimeout)
			defer cancel()
			if err := g.usage.LogCall(logCtx, entry); err != nil {
				g.logger.Warn("failed to log provider call", "error", err)
			}
		}()
	}

	return resp, err
}
