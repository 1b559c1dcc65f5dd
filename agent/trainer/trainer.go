// Package trainer runs first-visit Monte Carlo control over many episodes.
//
// A Trainer is driven by its caller: every Tick performs exactly one action
// through the episode runner, and the terminal Tick of an episode also performs
// the first-visit backup before resetting the runner. After the configured
// number of episodes the learned table is saved once through the Store.
//
// A trainer built by NewFromStore switches to exploitation mode when a saved
// table exists: it runs a single greedy episode and never writes the table.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
	"github.com/wricardo/mcp-training/montecarlo/agent/store"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// Defaults
const (
	DefaultEpisodes       = 500
	DefaultDiscountFactor = 0.99
)

var (
	ErrFrozen  = errors.New("action values are frozen in exploitation mode")
	ErrNoStore = errors.New("trainer has no store")
)

// Store persists a whole action-value table
type Store interface {
	Save(table *learning.ActionValueTable) error
	Load() (*learning.ActionValueTable, error)
}

// Config holds the trainer parameters
type Config struct {
	Episode          episode.Config
	Episodes         int
	DiscountFactor   float64
	StrictFirstVisit bool
}

// Validate checks the trainer parameters
func (c Config) Validate() error {
	if c.Episodes <= 0 {
		return fmt.Errorf("trainer: episodes must be positive, got %d", c.Episodes)
	}
	if c.DiscountFactor < 0 || c.DiscountFactor > 1 {
		return fmt.Errorf("trainer: discount factor must be within [0, 1], got %v", c.DiscountFactor)
	}
	return c.Episode.Validate()
}

// EpisodeSummary describes a finished episode
type EpisodeSummary struct {
	Episode  int             `json:"episode"`
	Steps    int             `json:"steps"`
	Return   float64         `json:"return"`
	Outcome  episode.Outcome `json:"outcome"`
	Recorded int             `json:"recorded"`
	Duration time.Duration   `json:"duration"`
}

// Status is a point-in-time view of a trainer
type Status struct {
	Mode        string         `json:"mode"`
	Episode     int            `json:"episode"`
	MaxEpisodes int            `json:"max_episodes"`
	Steps       int            `json:"steps"`
	Position    world.Position `json:"position"`
	State       world.State    `json:"state"`
	Done        bool           `json:"done"`
	Saved       bool           `json:"saved"`
	TableStates int            `json:"table_states"`
}

// Trainer orchestrates episodes and learning. Not safe for concurrent use.
type Trainer struct {
	world   *world.GridWorld
	table   *learning.ActionValueTable
	returns *learning.ReturnAccumulator
	runner  *episode.Runner
	store   Store
	cfg     Config
	mode    episode.Mode
	logger  zerolog.Logger

	episodes    int
	maxEpisodes int
	saved       bool
	started     time.Time
	history     []EpisodeSummary
	last        episode.StepResult
	lastPath    []world.Position
	observers   []func(EpisodeSummary)
}

// New creates a training-mode trainer with a table seeded at the goal.
// store may be nil, in which case nothing is persisted.
func New(w *world.GridWorld, cfg Config, st Store, rng *rand.Rand, logger zerolog.Logger) (*Trainer, error) {
	table := learning.NewSeededTable(world.Encode(cfg.Episode.Goal))
	return newTrainer(w, cfg, table, episode.Training, st, rng, logger)
}

// NewExploiting creates an exploitation-mode trainer over a frozen table
func NewExploiting(w *world.GridWorld, cfg Config, table *learning.ActionValueTable, rng *rand.Rand, logger zerolog.Logger) (*Trainer, error) {
	if table == nil {
		return nil, fmt.Errorf("trainer: exploitation requires a table")
	}
	return newTrainer(w, cfg, table, episode.Exploitation, nil, rng, logger)
}

// NewFromStore loads the saved table and exploits it; when the store has no
// data, or the data cannot be decoded, it falls back to training.
func NewFromStore(w *world.GridWorld, cfg Config, st Store, rng *rand.Rand, logger zerolog.Logger) (*Trainer, error) {
	if st == nil {
		return New(w, cfg, nil, rng, logger)
	}

	table, err := st.Load()
	switch {
	case err == nil:
		logger.Info().Int("states", table.Len()).Msg("using saved action values")
		return NewExploiting(w, cfg, table, rng, logger)
	case errors.Is(err, store.ErrNoData):
		logger.Info().Msg("no saved action values, training from scratch")
	default:
		logger.Warn().Err(err).Msg("saved action values unreadable, training from scratch")
	}

	return New(w, cfg, st, rng, logger)
}

func newTrainer(
	w *world.GridWorld,
	cfg Config,
	table *learning.ActionValueTable,
	mode episode.Mode,
	st Store,
	rng *rand.Rand,
	logger zerolog.Logger,
) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runner, err := episode.NewRunner(w, table, cfg.Episode, mode, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create episode runner: %w", err)
	}

	maxEpisodes := cfg.Episodes
	if mode == episode.Exploitation {
		maxEpisodes = 1
	}

	return &Trainer{
		world:       w,
		table:       table,
		returns:     learning.NewReturnAccumulator(),
		runner:      runner,
		store:       st,
		cfg:         cfg,
		mode:        mode,
		logger:      logger.With().Str("mode", mode.String()).Logger(),
		maxEpisodes: maxEpisodes,
		started:     time.Now(),
	}, nil
}

// OnEpisode registers fn to be called after every finished episode
func (t *Trainer) OnEpisode(fn func(EpisodeSummary)) {
	t.observers = append(t.observers, fn)
}

// Tick performs one step. It returns true once every episode has run; the
// table is saved on the first such call in training mode.
func (t *Trainer) Tick() (bool, error) {
	if t.Done() {
		return true, t.persist()
	}

	res, err := t.runner.Step()
	if err != nil {
		return false, fmt.Errorf("step failed: %w", err)
	}
	t.last = res
	if !res.Outcome.Terminal() {
		return false, nil
	}

	t.finishEpisode(res)

	if t.Done() {
		return true, t.persist()
	}
	return false, nil
}

// finishEpisode runs the backup, records the summary and resets the runner
func (t *Trainer) finishEpisode(res episode.StepResult) {
	summary := EpisodeSummary{
		Episode:  t.episodes,
		Steps:    res.Steps,
		Return:   t.runner.Return(),
		Outcome:  res.Outcome,
		Duration: time.Since(t.started),
	}

	if t.mode == episode.Training {
		summary.Recorded = Backup(res.Trajectory, t.table, t.returns, t.cfg.DiscountFactor, t.cfg.StrictFirstVisit)
	} else {
		t.lastPath = t.runner.Path()
		t.logger.Info().Int("steps", res.Steps).Str("outcome", res.Outcome.String()).Msg("replay finished")
	}

	t.logger.Debug().
		Int("episode", summary.Episode).
		Int("steps", summary.Steps).
		Float64("return", summary.Return).
		Str("outcome", summary.Outcome.String()).
		Int("recorded", summary.Recorded).
		Msg("episode complete")

	t.history = append(t.history, summary)
	t.episodes++
	t.started = time.Now()

	for _, fn := range t.observers {
		fn(summary)
	}

	t.runner.Reset()
}

// persist saves the table once, in training mode only
func (t *Trainer) persist() error {
	if t.mode != episode.Training || t.saved || t.store == nil {
		return nil
	}

	if err := t.store.Save(t.table); err != nil {
		return fmt.Errorf("failed to save action values: %w", err)
	}
	t.saved = true

	t.logger.Info().
		Int("episodes", t.episodes).
		Int("states", t.table.Len()).
		Msg("action values saved")
	return nil
}

// Save writes the current table immediately, even mid-run
func (t *Trainer) Save() error {
	if t.mode != episode.Training {
		return ErrFrozen
	}
	if t.store == nil {
		return ErrNoStore
	}
	if err := t.store.Save(t.table); err != nil {
		return fmt.Errorf("failed to save action values: %w", err)
	}
	t.logger.Info().Int("episodes", t.episodes).Int("states", t.table.Len()).Msg("action values saved on request")
	return nil
}

// Run ticks until every episode has run or ctx is done
func (t *Trainer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := t.Tick()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// RunEpisodes ticks until n more episodes have finished, the run is done or
// ctx is done. It returns the summaries of the episodes finished by this call.
func (t *Trainer) RunEpisodes(ctx context.Context, n int) ([]EpisodeSummary, error) {
	start := t.episodes
	target := start + n

	for t.episodes < target {
		if err := ctx.Err(); err != nil {
			return t.historySince(start), err
		}
		done, err := t.Tick()
		if err != nil {
			return t.historySince(start), err
		}
		if done {
			break
		}
	}

	return t.historySince(start), nil
}

// StepN performs at most n ticks and returns the result of the last one
func (t *Trainer) StepN(n int) (bool, error) {
	for i := 0; i < n; i++ {
		done, err := t.Tick()
		if err != nil || done {
			return done, err
		}
	}
	return t.Done(), nil
}

func (t *Trainer) historySince(start int) []EpisodeSummary {
	out := make([]EpisodeSummary, len(t.history)-start)
	copy(out, t.history[start:])
	return out
}

// Done reports whether every episode has run
func (t *Trainer) Done() bool {
	return t.episodes >= t.maxEpisodes
}

// Mode returns training or exploitation
func (t *Trainer) Mode() episode.Mode {
	return t.mode
}

// Table returns the live action-value table
func (t *Trainer) Table() *learning.ActionValueTable {
	return t.table
}

// Returns returns the return history
func (t *Trainer) Returns() *learning.ReturnAccumulator {
	return t.returns
}

// World returns the grid the trainer runs in
func (t *Trainer) World() *world.GridWorld {
	return t.world
}

// Config returns the trainer parameters
func (t *Trainer) Config() Config {
	return t.cfg
}

// History returns a copy of every episode summary so far
func (t *Trainer) History() []EpisodeSummary {
	return t.historySince(0)
}

// LastStep returns the result of the most recent step, without its trajectory
func (t *Trainer) LastStep() episode.StepResult {
	res := t.last
	res.Trajectory = nil
	return res
}

// LastPath returns the positions of the last exploitation episode
func (t *Trainer) LastPath() []world.Position {
	out := make([]world.Position, len(t.lastPath))
	copy(out, t.lastPath)
	return out
}

// Status returns a snapshot of the trainer
func (t *Trainer) Status() Status {
	pos := t.runner.Position()
	return Status{
		Mode:        t.mode.String(),
		Episode:     t.episodes,
		MaxEpisodes: t.maxEpisodes,
		Steps:       t.runner.Steps(),
		Position:    pos,
		State:       world.Encode(pos),
		Done:        t.Done(),
		Saved:       t.saved,
		TableStates: t.table.Len(),
	}
}
