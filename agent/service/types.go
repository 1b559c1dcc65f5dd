package service

import (
	"time"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// Event types published to a Notifier
const (
	EventEpisodeComplete = "episode_complete"
	EventTrainingDone    = "training_done"
)

// RunInfo provides information about a run
type RunInfo struct {
	ID             string         `json:"id"`
	ConfigName     string         `json:"config_name"`
	Mode           string         `json:"mode"`
	Status         trainer.Status `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	TablePath      string         `json:"table_path,omitempty"`
	Config         *config.Config `json:"config"`
}

// StepResult contains the result of a Step call
type StepResult struct {
	RunID     string                   `json:"run_id"`
	Requested int                      `json:"requested"`
	Executed  int                      `json:"executed"`
	Last      episode.StepResult       `json:"last"`
	Finished  []trainer.EpisodeSummary `json:"finished,omitempty"`
	Status    trainer.Status           `json:"status"`
}

// TrainResult contains the result of a Train call
type TrainResult struct {
	RunID       string                   `json:"run_id"`
	Episodes    []trainer.EpisodeSummary `json:"episodes"`
	SuccessRate float64                  `json:"success_rate"`
	MeanSteps   float64                  `json:"mean_steps"`
	MeanReturn  float64                  `json:"mean_return"`
	Status      trainer.Status           `json:"status"`
}

// ReplayResult is a greedy episode over a snapshot of a run's table
type ReplayResult struct {
	RunID   string           `json:"run_id"`
	Outcome episode.Outcome  `json:"outcome"`
	Steps   int              `json:"steps"`
	Return  float64          `json:"return"`
	Actions []world.Action   `json:"actions"`
	Path    []world.Position `json:"path"`
}

// ActionValues lists the values of one state
type ActionValues struct {
	RunID   string                   `json:"run_id"`
	State   world.State              `json:"state"`
	Values  map[world.Action]float64 `json:"values"`
	Defined []world.Action           `json:"defined"`
	Allowed []world.Action           `json:"allowed"`
	Greedy  *world.Action            `json:"greedy,omitempty"`
}

// SaveResult reports where a table was written
type SaveResult struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	States int    `json:"states"`
}

// Event is a progress notification for one run
type Event struct {
	Type      string                  `json:"type"`
	RunID     string                  `json:"run_id"`
	Episode   *trainer.EpisodeSummary `json:"episode,omitempty"`
	Status    *trainer.Status         `json:"status,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Snapshot is a consistent copy of a run for rendering reports
type Snapshot struct {
	RunID   string
	Config  *config.Config
	World   *world.GridWorld
	Table   *learning.ActionValueTable
	Path    []world.Position
	History []trainer.EpisodeSummary
}
