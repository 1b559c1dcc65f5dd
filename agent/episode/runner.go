// Package episode drives a single navigation episode one step at a time.
//
// A Runner owns the agent position, facing, step counter and the trajectory of
// the episode in progress. Each Step selects an action (uniformly at random in
// training mode, greedily from a frozen table in exploitation mode), moves the
// agent, assigns the reward and records the (state, action, reward) triple.
// The caller resets the runner once a step reports a terminal outcome.
package episode

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

var ErrEpisodeFinished = errors.New("episode already finished; reset the runner")

// Mode selects how actions are chosen and whether collisions are enforced
type Mode int

const (
	Training Mode = iota
	Exploitation
)

// String returns the mode name
func (m Mode) String() string {
	if m == Exploitation {
		return "exploitation"
	}
	return "training"
}

// Outcome is the runner's state machine position
type Outcome int

const (
	Running Outcome = iota
	Success
	Truncated
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Truncated:
		return "truncated"
	}
	return "running"
}

// MarshalText encodes the outcome by name
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "running":
		*o = Running
	case "success":
		*o = Success
	case "truncated":
		*o = Truncated
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// Terminal reports whether the episode has ended
func (o Outcome) Terminal() bool {
	return o != Running
}

// Defaults
const (
	DefaultStepCost      = -0.1
	DefaultMaxSteps      = 1000000
	DefaultGoalThreshold = 0.5
)

// Config holds the episode parameters
type Config struct {
	Start         world.Position
	Goal          world.Position
	StepCost      float64
	MaxSteps      int
	GoalThreshold float64
}

// Validate checks the episode parameters
func (c Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("episode: max steps must be positive, got %d", c.MaxSteps)
	}
	if c.GoalThreshold < 0 {
		return fmt.Errorf("episode: goal threshold cannot be negative, got %v", c.GoalThreshold)
	}
	return nil
}

// Step is one (state, action, reward) triple of a trajectory. State is the
// state the action was taken from.
type Step struct {
	State  world.State  `json:"state"`
	Action world.Action `json:"action"`
	Reward float64      `json:"reward"`
}

// StepResult describes what a single Step did
type StepResult struct {
	Action  world.Action   `json:"action"`
	From    world.Position `json:"from"`
	To      world.Position `json:"to"`
	Reward  float64        `json:"reward"`
	Blocked bool           `json:"blocked"`
	Steps   int            `json:"steps"`
	Outcome Outcome        `json:"outcome"`

	// Trajectory is a copy of the finished episode, set only on terminal steps
	Trajectory []Step `json:"-"`
}

// Runner executes one episode at a time. Not safe for concurrent use.
type Runner struct {
	world *world.GridWorld
	table *learning.ActionValueTable
	cfg   Config
	mode  Mode
	rng   *rand.Rand

	pos        world.Position
	facing     world.Facing
	steps      int
	outcome    Outcome
	trajectory []Step
	visited    map[world.State]bool
	path       []world.Position
	total      float64
}

// NewRunner creates a runner positioned at the start. table is only read, and
// only in exploitation mode.
func NewRunner(w *world.GridWorld, table *learning.ActionValueTable, cfg Config, mode Mode, rng *rand.Rand) (*Runner, error) {
	if w == nil {
		return nil, fmt.Errorf("episode: world cannot be nil")
	}
	if table == nil {
		return nil, fmt.Errorf("episode: table cannot be nil")
	}
	if rng == nil {
		return nil, fmt.Errorf("episode: rng cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		world: w,
		table: table,
		cfg:   cfg,
		mode:  mode,
		rng:   rng,
	}
	r.Reset()
	return r, nil
}

// Reset returns the agent to the start and clears all per-episode state
func (r *Runner) Reset() {
	r.pos = r.cfg.Start
	r.facing = world.Forward.Direction()
	r.steps = 0
	r.outcome = Running
	r.trajectory = make([]Step, 0, 64)
	r.visited = make(map[world.State]bool)
	r.path = []world.Position{r.cfg.Start}
	r.total = 0
}

// Step advances the episode by one action
func (r *Runner) Step() (StepResult, error) {
	if r.outcome.Terminal() {
		return StepResult{}, ErrEpisodeFinished
	}

	prev := r.pos
	prevState := world.Encode(prev)
	action := r.selectAction()

	next, facing := r.world.Move(prev, action)
	blocked := false
	if r.mode == Training && r.world.Blocked(next, facing) {
		blocked = true
	} else {
		r.pos = next
		r.facing = facing
	}

	if r.mode == Exploitation {
		r.visited[world.Encode(r.pos)] = true
	}
	r.path = append(r.path, r.pos)
	r.steps++

	reward := r.cfg.StepCost
	switch {
	case r.AtGoal():
		reward = 0
		r.outcome = Success
	case r.steps >= r.cfg.MaxSteps:
		reward = float64(r.steps) * r.cfg.StepCost
		r.outcome = Truncated
	}

	r.trajectory = append(r.trajectory, Step{State: prevState, Action: action, Reward: reward})
	r.total += reward

	result := StepResult{
		Action:  action,
		From:    prev,
		To:      r.pos,
		Reward:  reward,
		Blocked: blocked,
		Steps:   r.steps,
		Outcome: r.outcome,
	}
	if r.outcome.Terminal() {
		result.Trajectory = r.Trajectory()
	}

	return result, nil
}

// selectAction applies the mode's policy to the boundary-filtered actions
func (r *Runner) selectAction() world.Action {
	candidates := r.world.AllowedActions(r.pos)

	if r.mode == Training {
		return candidates[r.rng.Intn(len(candidates))]
	}

	from := r.pos
	next := func(a world.Action) world.State {
		p, _ := r.world.Move(from, a)
		return world.Encode(p)
	}
	return r.table.BestAction(world.Encode(from), candidates, next, r.visited, r.rng)
}

// AtGoal reports whether the agent is within the goal threshold on both axes
func (r *Runner) AtGoal() bool {
	return math.Abs(r.pos.X-r.cfg.Goal.X) <= r.cfg.GoalThreshold &&
		math.Abs(r.pos.Z-r.cfg.Goal.Z) <= r.cfg.GoalThreshold
}

// Position returns the current agent position
func (r *Runner) Position() world.Position {
	return r.pos
}

// Facing returns the current agent facing
func (r *Runner) Facing() world.Facing {
	return r.facing
}

// Steps returns the number of steps taken in this episode
func (r *Runner) Steps() int {
	return r.steps
}

// Outcome returns the current state machine position
func (r *Runner) Outcome() Outcome {
	return r.outcome
}

// Mode returns the runner mode
func (r *Runner) Mode() Mode {
	return r.mode
}

// Return returns the undiscounted sum of rewards so far
func (r *Runner) Return() float64 {
	return r.total
}

// Trajectory returns a copy of the steps recorded so far
func (r *Runner) Trajectory() []Step {
	out := make([]Step, len(r.trajectory))
	copy(out, r.trajectory)
	return out
}

// Path returns a copy of the positions occupied this episode, start included
func (r *Runner) Path() []world.Position {
	out := make([]world.Position, len(r.path))
	copy(out, r.path)
	return out
}

// Visited reports whether s was reached during this exploitation run
func (r *Runner) Visited(s world.State) bool {
	return r.visited[s]
}
