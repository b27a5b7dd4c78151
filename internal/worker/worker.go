// Package worker runs sequencer runs in the background on behalf of API
// callers. Each tenant has at most one run in flight.
package worker

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnmchuo/contentgen/internal/auth"
	"github.com/vnmchuo/contentgen/internal/sequencer"
)

var (
	ErrRunInProgress = errors.New("a run is already in progress for this tenant")
	ErrRunNotFound   = errors.New("run not found")
	ErrShuttingDown  = errors.New("worker is shutting down")
)

type Run struct {
	ID        string
	TenantID  string
	Options   sequencer.Options
	CreatedAt time.Time

	seq  *sequencer.Sequencer
	done chan struct{}
}

func (r *Run) Snapshot() sequencer.Snapshot {
	return r.seq.Snapshot()
}

// Done is closed when the run ends.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

type Manager struct {
	client sequencer.Client
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	runs     map[string]*Run
	byTenant map[string]*Run
}

func NewManager(client sequencer.Client, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		client:   client,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		runs:     make(map[string]*Run),
		byTenant: make(map[string]*Run),
	}
}

// Start validates opts and launches a run for the tenant. A finished run of
// the same tenant is replaced.
func (m *Manager) Start(ctx context.Context, tenantID string, opts sequencer.Options) (*Run, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}
	if prev, ok := m.byTenant[tenantID]; ok {
		select {
		case <-prev.done:
			delete(m.runs, prev.ID)
		default:
			return nil, ErrRunInProgress
		}
	}

	run := &Run{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Options:   opts,
		CreatedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
	run.seq = sequencer.New(m.client, m.logger.With("run_id", run.ID, "tenant_id", tenantID))

	// The run outlives the request that started it but keeps its identity
	// for usage logging.
	runCtx := auth.WithTenantID(m.ctx, tenantID)
	runCtx = auth.WithRequestID(runCtx, auth.GetRequestID(ctx))

	errc, err := run.seq.Start(runCtx, opts)
	if err != nil {
		return nil, err
	}
	m.runs[run.ID] = run
	m.byTenant[tenantID] = run

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(run.done)
		if err := <-errc; err != nil {
			m.logger.Warn("run failed", "run_id", run.ID, "tenant_id", tenantID, "error", err)
			return
		}
		m.logger.Info("run completed", "run_id", run.ID, "tenant_id", tenantID)
	}()
	return run, nil
}

// Get returns a run owned by the tenant.
func (m *Manager) Get(tenantID, id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || run.TenantID != tenantID {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// Pause reports false when the run is not running or already paused.
func (m *Manager) Pause(tenantID, id string) (bool, error) {
	run, err := m.Get(tenantID, id)
	if err != nil {
		return false, err
	}
	return run.seq.Pause(), nil
}

func (m *Manager) Resume(tenantID, id string) (bool, error) {
	run, err := m.Get(tenantID, id)
	if err != nil {
		return false, err
	}
	return run.seq.Resume(), nil
}

// Shutdown stops accepting runs, cancels the ones in flight and waits for
// them to return or for ctx to expire. In-flight provider calls are
// cancelled with the run context.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
