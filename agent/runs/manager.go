package runs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/store"
	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrNoSavedTable = errors.New("no saved table for this scenario")
	ErrInvalidStart = errors.New("invalid start mode")
)

// StartMode chooses how a new run obtains its action values
type StartMode string

const (
	// StartAuto exploits the scenario's saved table when there is one and
	// trains from scratch otherwise
	StartAuto StartMode = "auto"
	// StartTrain always trains from a freshly seeded table
	StartTrain StartMode = "train"
	// StartExploit replays the saved table and fails when there is none
	StartExploit StartMode = "exploit"
)

// ParseStartMode accepts "", auto, train or exploit
func ParseStartMode(s string) (StartMode, error) {
	switch StartMode(s) {
	case "", StartAuto:
		return StartAuto, nil
	case StartTrain, StartExploit:
		return StartMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStart, s)
}

// Run is one trainer together with its scenario. Callers hold the run lock
// while touching the trainer.
type Run struct {
	ID         string
	ConfigName string
	Config     *config.Config
	Trainer    *trainer.Trainer
	Store      *store.FileStore
	CreatedAt  time.Time

	lastAccessed atomic.Int64
	mu           sync.Mutex
}

// LastAccessedAt returns when the run was last used
func (r *Run) LastAccessedAt() time.Time {
	return time.Unix(0, r.lastAccessed.Load())
}

func (r *Run) touch(t time.Time) {
	r.lastAccessed.Store(t.UnixNano())
}

// Lock serializes access to the trainer
func (r *Run) Lock() {
	r.mu.Lock()
}

// Unlock releases the run
func (r *Run) Unlock() {
	r.mu.Unlock()
}

// Manager handles the lifecycle of in-memory runs. Tables are shared per
// scenario: a training run saves to the scenario's table and later runs of the
// same scenario can exploit it.
type Manager struct {
	runs   map[string]*Run
	tables *store.Directory
	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewManager creates a run manager. tables may be nil, in which case nothing
// is persisted and every run trains.
func NewManager(tables *store.Directory, logger zerolog.Logger) *Manager {
	return &Manager{
		runs:   make(map[string]*Run),
		tables: tables,
		logger: logger,
	}
}

// EpisodeObserver is told about every finished episode of a run
type EpisodeObserver func(runID string, summary trainer.EpisodeSummary)

// Create builds a trainer for cfg and registers it under a new id. Observers
// are attached before the run becomes visible to Get and List.
func (m *Manager) Create(configName string, cfg *config.Config, start StartMode, observers ...EpisodeObserver) (*Run, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	w, err := cfg.NewWorld()
	if err != nil {
		return nil, fmt.Errorf("failed to create world: %w", err)
	}

	st, err := m.tableStore(configName)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := m.logger.With().Str("run", id).Str("config", configName).Logger()
	tc := cfg.TrainerConfig()
	rng := cfg.NewRand()

	// A nil *FileStore must not become a non-nil trainer.Store
	var persist trainer.Store
	if st != nil {
		persist = st
	}

	var tr *trainer.Trainer
	switch start {
	case StartTrain:
		tr, err = trainer.New(w, tc, persist, rng, logger)
	case StartExploit:
		if st == nil {
			return nil, ErrNoSavedTable
		}
		table, loadErr := st.Load()
		if loadErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoSavedTable, loadErr)
		}
		tr, err = trainer.NewExploiting(w, tc, table, rng, logger)
	case StartAuto, "":
		tr, err = trainer.NewFromStore(w, tc, persist, rng, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStart, start)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trainer: %w", err)
	}
	for _, observe := range observers {
		tr.OnEpisode(func(summary trainer.EpisodeSummary) {
			observe(id, summary)
		})
	}

	now := time.Now()
	run := &Run{
		ID:         id,
		ConfigName: configName,
		Config:     cfg,
		Trainer:    tr,
		Store:      st,
		CreatedAt:  now,
	}
	run.touch(now)

	m.mu.Lock()
	m.runs[id] = run
	m.mu.Unlock()

	logger.Info().Str("mode", tr.Mode().String()).Msg("run created")
	return run, nil
}

// tableStore returns the store of the scenario's table, or nil without a
// tables directory
func (m *Manager) tableStore(configName string) (*store.FileStore, error) {
	if m.tables == nil {
		return nil, nil
	}
	st, err := m.tables.Store(configName)
	if err != nil {
		return nil, fmt.Errorf("failed to open table for %q: %w", configName, err)
	}
	return st, nil
}

// Get retrieves a run by id
func (m *Manager) Get(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[id]
	if !exists {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// List returns every run, oldest first
func (m *Manager) List() []*Run {
	m.mu.RLock()
	result := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		result = append(result, run)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete removes a run. Its saved table, if any, is kept.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[id]; !exists {
		return ErrRunNotFound
	}
	delete(m.runs, id)
	return nil
}

// Touch updates the last accessed time of a run
func (m *Manager) Touch(id string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[id]
	if !exists {
		return ErrRunNotFound
	}
	run.touch(time.Now())
	return nil
}

// CleanupExpired removes runs that haven't been accessed in maxAge
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, run := range m.runs {
		if run.LastAccessedAt().Before(cutoff) {
			delete(m.runs, id)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info().Int("removed", removed).Msg("expired runs cleaned up")
	}
	return removed
}

// Count returns the number of runs
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

// Tables returns the tables directory, nil when persistence is off
func (m *Manager) Tables() *store.Directory {
	return m.tables
}
