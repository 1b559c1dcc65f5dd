package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/runs"
	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// MaxStepsPerCall caps a single Step request
const MaxStepsPerCall = 100000

var ErrInvalidArgument = errors.New("invalid argument")

// runServiceImpl implements the RunService interface
type runServiceImpl struct {
	runs     RunManager
	configs  ConfigManager
	notifier Notifier
	logger   zerolog.Logger
}

// NewRunService creates a new run service instance. notifier may be nil.
func NewRunService(runManager RunManager, configs ConfigManager, notifier Notifier, logger zerolog.Logger) RunService {
	return &runServiceImpl{
		runs:     runManager,
		configs:  configs,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateRun creates a run for a named scenario, or the default scenario when
// configName is empty
func (s *runServiceImpl) CreateRun(ctx context.Context, configName string, start string) (*RunInfo, error) {
	mode, err := runs.ParseStartMode(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	var cfg *config.Config
	if configName != "" {
		cfg, err = s.configs.LoadConfig(configName)
		if err != nil {
			if errors.Is(err, config.ErrConfigNotFound) {
				return nil, s.configNotFound(configName, err)
			}
			return nil, fmt.Errorf("failed to load config %s: %w", configName, err)
		}
	} else {
		cfg = s.configs.GetDefault()
		configName = cfg.Name
	}

	run, err := s.runs.Create(configName, cfg.Clone(), mode, func(runID string, summary trainer.EpisodeSummary) {
		s.publish(runID, Event{Type: EventEpisodeComplete, Episode: &summary})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	run.Lock()
	defer run.Unlock()
	return s.runInfo(run), nil
}

// configNotFound lists the available scenarios in the error
func (s *runServiceImpl) configNotFound(name string, err error) error {
	infos, listErr := s.configs.ListConfigs()
	if listErr == nil && len(infos) > 0 {
		ids := make([]string, 0, len(infos))
		for _, info := range infos {
			ids = append(ids, info.ConfigID)
		}
		return fmt.Errorf("config '%s' not found, available configs: %v: %w", name, ids, err)
	}
	return fmt.Errorf("config '%s' not found: %w", name, err)
}

// GetRun retrieves run information
func (s *runServiceImpl) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.Lock()
	defer run.Unlock()
	return s.runInfo(run), nil
}

// ListRuns returns every run, oldest first
func (s *runServiceImpl) ListRuns(ctx context.Context) ([]*RunInfo, error) {
	all := s.runs.List()
	infos := make([]*RunInfo, 0, len(all))
	for _, run := range all {
		run.Lock()
		infos = append(infos, s.runInfo(run))
		run.Unlock()
	}
	return infos, nil
}

// DeleteRun removes a run; its saved table stays on disk
func (s *runServiceImpl) DeleteRun(ctx context.Context, runID string) error {
	return s.runs.Delete(runID)
}

// Step performs up to n ticks on the run's trainer
func (s *runServiceImpl) Step(ctx context.Context, runID string, n int) (*StepResult, error) {
	if n <= 0 {
		n = 1
	}
	if n > MaxStepsPerCall {
		return nil, fmt.Errorf("%w: at most %d steps per call, got %d", ErrInvalidArgument, MaxStepsPerCall, n)
	}

	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.Lock()
	defer run.Unlock()

	tr := run.Trainer
	wasDone := tr.Done()
	before := len(tr.History())

	executed := 0
	for executed < n && !tr.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := tr.Tick(); err != nil {
			return nil, fmt.Errorf("tick failed: %w", err)
		}
		executed++
	}

	// A finished trainer still owes its final save
	if executed == 0 && tr.Done() {
		if _, err := tr.Tick(); err != nil {
			return nil, fmt.Errorf("tick failed: %w", err)
		}
	}

	s.notifyDone(run, wasDone)

	history := tr.History()
	return &StepResult{
		RunID:     run.ID,
		Requested: n,
		Executed:  executed,
		Last:      tr.LastStep(),
		Finished:  history[before:],
		Status:    tr.Status(),
	}, nil
}

// Train runs the given number of episodes, or every remaining episode when
// episodes is zero or negative
func (s *runServiceImpl) Train(ctx context.Context, runID string, episodes int) (*TrainResult, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.Lock()
	defer run.Unlock()

	tr := run.Trainer
	wasDone := tr.Done()
	if episodes <= 0 {
		episodes = tr.Status().MaxEpisodes
	}

	started := time.Now()
	summaries, err := tr.RunEpisodes(ctx, episodes)
	if err != nil {
		return nil, fmt.Errorf("training interrupted after %d episodes: %w", len(summaries), err)
	}
	if tr.Done() {
		// Persist even when every episode had already run
		if _, err := tr.Tick(); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("run", run.ID).
		Int("episodes", len(summaries)).
		Dur("elapsed", time.Since(started)).
		Msg("training batch finished")

	s.notifyDone(run, wasDone)

	result := &TrainResult{
		RunID:    run.ID,
		Episodes: summaries,
		Status:   tr.Status(),
	}
	if len(summaries) > 0 {
		successes, steps, total := 0, 0, 0.0
		for _, summary := range summaries {
			if summary.Outcome == episode.Success {
				successes++
			}
			steps += summary.Steps
			total += summary.Return
		}
		count := float64(len(summaries))
		result.SuccessRate = float64(successes) / count
		result.MeanSteps = float64(steps) / count
		result.MeanReturn = total / count
	}
	return result, nil
}

// Replay runs one greedy episode over a copy of the run's current table. The
// run itself is not advanced. maxSteps caps the episode when positive.
func (s *runServiceImpl) Replay(ctx context.Context, runID string, maxSteps int) (*ReplayResult, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.Lock()
	table := run.Trainer.Table().Clone()
	w := run.Trainer.World()
	epCfg := run.Trainer.Config().Episode
	rng := run.Config.NewRand()
	run.Unlock()

	if maxSteps > 0 && maxSteps < epCfg.MaxSteps {
		epCfg.MaxSteps = maxSteps
	}

	runner, err := episode.NewRunner(w, table, epCfg, episode.Exploitation, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create replay runner: %w", err)
	}

	var actions []world.Action
	var res episode.StepResult
	for !runner.Outcome().Terminal() {
		if len(actions)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		res, err = runner.Step()
		if err != nil {
			return nil, err
		}
		actions = append(actions, res.Action)
	}

	return &ReplayResult{
		RunID:   run.ID,
		Outcome: res.Outcome,
		Steps:   runner.Steps(),
		Return:  runner.Return(),
		Actions: actions,
		Path:    runner.Path(),
	}, nil
}

// SaveTable writes the run's table immediately
func (s *runServiceImpl) SaveTable(ctx context.Context, runID string) (*SaveResult, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.Lock()
	defer run.Unlock()

	if err := run.Trainer.Save(); err != nil {
		return nil, err
	}
	return &SaveResult{
		RunID:  run.ID,
		Path:   run.Store.Path(),
		States: run.Trainer.Table().Len(),
	}, nil
}

// ActionValues returns the values of state as the run currently sees them
func (s *runServiceImpl) ActionValues(ctx context.Context, runID string, state world.State) (*ActionValues, error) {
	pos, err := world.Decode(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.Lock()
	defer run.Unlock()

	table := run.Trainer.Table()
	defined := table.Actions(state)

	result := &ActionValues{
		RunID:   run.ID,
		State:   state,
		Values:  make(map[world.Action]float64, world.NumActions),
		Defined: []world.Action{},
		Allowed: run.Trainer.World().AllowedActions(pos),
	}
	for _, a := range world.AllActions {
		result.Values[a] = table.Get(state, a)
		if _, ok := defined[a]; ok {
			result.Defined = append(result.Defined, a)
		}
	}
	if greedy, ok := table.Greedy(state); ok {
		result.Greedy = &greedy
	}
	return result, nil
}

// History returns every finished episode of the run
func (s *runServiceImpl) History(ctx context.Context, runID string) ([]trainer.EpisodeSummary, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.Lock()
	defer run.Unlock()
	return run.Trainer.History(), nil
}

// Snapshot copies what the report renderers need
func (s *runServiceImpl) Snapshot(ctx context.Context, runID string) (*Snapshot, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.Lock()
	defer run.Unlock()
	return &Snapshot{
		RunID:   run.ID,
		Config:  run.Config.Clone(),
		World:   run.Trainer.World(),
		Table:   run.Trainer.Table().Clone(),
		Path:    run.Trainer.LastPath(),
		History: run.Trainer.History(),
	}, nil
}

// ListConfigs returns every available scenario
func (s *runServiceImpl) ListConfigs(ctx context.Context) ([]*config.Info, error) {
	return s.configs.ListConfigs()
}

// LoadConfig returns a copy of a named scenario
func (s *runServiceImpl) LoadConfig(ctx context.Context, configName string) (*config.Config, error) {
	cfg, err := s.configs.LoadConfig(configName)
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

func (s *runServiceImpl) getRun(runID string) (*runs.Run, error) {
	run, err := s.runs.Get(runID)
	if err != nil {
		return nil, err
	}
	_ = s.runs.Touch(runID)
	return run, nil
}

// notifyDone publishes training_done on the transition to done. Callers hold
// the run lock.
func (s *runServiceImpl) notifyDone(run *runs.Run, wasDone bool) {
	if wasDone || !run.Trainer.Done() {
		return
	}
	status := run.Trainer.Status()
	s.publish(run.ID, Event{Type: EventTrainingDone, Status: &status})
}

func (s *runServiceImpl) publish(runID string, event Event) {
	if s.notifier == nil {
		return
	}
	event.RunID = runID
	event.Timestamp = time.Now()
	s.notifier.Publish(runID, event)
}

// runInfo builds the public view of a run. Callers hold the run lock.
func (s *runServiceImpl) runInfo(run *runs.Run) *RunInfo {
	info := &RunInfo{
		ID:             run.ID,
		ConfigName:     run.ConfigName,
		Mode:           run.Trainer.Mode().String(),
		Status:         run.Trainer.Status(),
		CreatedAt:      run.CreatedAt,
		LastAccessedAt: run.LastAccessedAt(),
		Config:         run.Config,
	}
	if run.Store != nil {
		info.TablePath = run.Store.Path()
	}
	return info
}
