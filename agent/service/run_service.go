package service

import (
	"context"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/runs"
	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// RunService defines all run-related operations
type RunService interface {
	// Run Management
	CreateRun(ctx context.Context, configName string, start string) (*RunInfo, error)
	GetRun(ctx context.Context, runID string) (*RunInfo, error)
	ListRuns(ctx context.Context) ([]*RunInfo, error)
	DeleteRun(ctx context.Context, runID string) error

	// Learning Operations
	Step(ctx context.Context, runID string, n int) (*StepResult, error)
	Train(ctx context.Context, runID string, episodes int) (*TrainResult, error)
	Replay(ctx context.Context, runID string, maxSteps int) (*ReplayResult, error)
	SaveTable(ctx context.Context, runID string) (*SaveResult, error)

	// Inspection
	ActionValues(ctx context.Context, runID string, state world.State) (*ActionValues, error)
	History(ctx context.Context, runID string) ([]trainer.EpisodeSummary, error)
	Snapshot(ctx context.Context, runID string) (*Snapshot, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*config.Info, error)
	LoadConfig(ctx context.Context, configName string) (*config.Config, error)
}

// RunManager defines run storage operations
type RunManager interface {
	Create(configName string, cfg *config.Config, start runs.StartMode, observers ...runs.EpisodeObserver) (*runs.Run, error)
	Get(id string) (*runs.Run, error)
	List() []*runs.Run
	Delete(id string) error
	Touch(id string) error
}

// ConfigManager handles scenario loading
type ConfigManager interface {
	LoadConfig(name string) (*config.Config, error)
	ListConfigs() ([]*config.Info, error)
	GetDefault() *config.Config
}

// Notifier receives run events, typically a websocket hub
type Notifier interface {
	Publish(runID string, event Event)
}
