package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rpggio/reelwatch/internal/cadence"
	"github.com/rpggio/reelwatch/internal/clock"
)

// RegistryConfig holds what every controller in a registry shares.
type RegistryConfig struct {
	Client       Client
	Policy       cadence.Policy
	NewScheduler func() clock.Scheduler
	Sinks        []Sink
	Ledger       FinalLedger
	OnFinal      FinalFunc
	Logger       *slog.Logger
	Now          func() time.Time
}

// Registry tracks the active watches keyed by project id.
type Registry struct {
	cfg     RegistryConfig
	logger  *slog.Logger
	mu      sync.Mutex
	watches map[string]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.NewScheduler == nil {
		cfg.NewScheduler = func() clock.Scheduler { return clock.NewTimerScheduler() }
	}
	return &Registry{
		cfg:     cfg,
		logger:  cfg.Logger,
		watches: make(map[string]*Controller),
	}
}

// Watch starts watching projectID, or returns the existing watch. The
// bool reports whether a new watch was created.
func (r *Registry) Watch(ctx context.Context, projectID string) (*Controller, bool, error) {
	r.mu.Lock()
	if c, ok := r.watches[projectID]; ok {
		r.mu.Unlock()
		return c, false, nil
	}
	c := NewController(Options{
		ProjectID: projectID,
		Client:    r.cfg.Client,
		Scheduler: r.cfg.NewScheduler(),
		Policy:    r.cfg.Policy,
		Sinks:     r.cfg.Sinks,
		Ledger:    r.cfg.Ledger,
		OnFinal:   r.cfg.OnFinal,
		Logger:    r.logger,
		Now:       r.cfg.Now,
	})
	r.watches[projectID] = c
	r.mu.Unlock()

	if err := c.Start(ctx); err != nil {
		r.mu.Lock()
		if r.watches[projectID] == c {
			delete(r.watches, projectID)
		}
		r.mu.Unlock()
		c.Stop()
		return nil, false, fmt.Errorf("watch %s: %w", projectID, err)
	}
	r.logger.Info("watching project", "project_id", projectID)
	return c, true, nil
}

// Unwatch stops and forgets the watch for projectID.
func (r *Registry) Unwatch(projectID string) error {
	r.mu.Lock()
	c, ok := r.watches[projectID]
	delete(r.watches, projectID)
	r.mu.Unlock()
	if !ok {
		return ErrNotWatched
	}
	c.Stop()
	r.logger.Info("stopped watching project", "project_id", projectID)
	return nil
}

// Get returns the watch for projectID.
func (r *Registry) Get(projectID string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.watches[projectID]
	if !ok {
		return nil, ErrNotWatched
	}
	return c, nil
}

// List returns the status of every watch ordered by project id.
func (r *Registry) List() []Status {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.watches))
	for _, c := range r.watches {
		controllers = append(controllers, c)
	}
	r.mu.Unlock()

	sort.Slice(controllers, func(i, j int) bool {
		return controllers[i].projectID < controllers[j].projectID
	})
	out := make([]Status, 0, len(controllers))
	for _, c := range controllers {
		out = append(out, c.Status())
	}
	return out
}

// StopAll stops every watch.
func (r *Registry) StopAll() {
	r.mu.Lock()
	controllers := r.watches
	r.watches = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range controllers {
		c.Stop()
	}
}
