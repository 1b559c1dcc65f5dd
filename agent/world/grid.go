package world

import (
	"fmt"
	"math"
)

// Options holds the fixed geometry of a grid
type Options struct {
	Extent    float64 // half-extent B; both axes span [-B, B]
	StepSize  float64
	Clearance float64 // minimum distance to an obstacle in the forward cone
}

// DefaultOptions returns the 15x15 lattice geometry
func DefaultOptions() Options {
	return Options{
		Extent:    DefaultExtent,
		StepSize:  DefaultStepSize,
		Clearance: DefaultClearance,
	}
}

// GridWorld defines the coordinate space and the obstacle set
type GridWorld struct {
	opts      Options
	obstacles []Position
}

// New creates a grid world. The obstacle slice is copied.
func New(opts Options, obstacles []Position) (*GridWorld, error) {
	if opts.Extent <= 0 {
		return nil, fmt.Errorf("world: extent must be positive, got %v", opts.Extent)
	}
	if opts.StepSize <= 0 {
		return nil, fmt.Errorf("world: step size must be positive, got %v", opts.StepSize)
	}
	if opts.Clearance < 0 {
		return nil, fmt.Errorf("world: clearance cannot be negative, got %v", opts.Clearance)
	}

	obs := make([]Position, len(obstacles))
	copy(obs, obstacles)

	return &GridWorld{opts: opts, obstacles: obs}, nil
}

// Options returns the grid geometry
func (w *GridWorld) Options() Options {
	return w.opts
}

// Extent returns the half-extent B
func (w *GridWorld) Extent() float64 {
	return w.opts.Extent
}

// Obstacles returns a copy of the obstacle set
func (w *GridWorld) Obstacles() []Position {
	obs := make([]Position, len(w.obstacles))
	copy(obs, w.obstacles)
	return obs
}

// Clamp bounds both coordinates to [-B, B]
func (w *GridWorld) Clamp(p Position) Position {
	return Position{
		X: clamp(p.X, -w.opts.Extent, w.opts.Extent),
		Z: clamp(p.Z, -w.opts.Extent, w.opts.Extent),
	}
}

// Move returns the clamped position one step from p along a, and the facing
// the agent takes when doing so. Obstacles are not consulted.
func (w *GridWorld) Move(p Position, a Action) (Position, Facing) {
	dir := a.Direction()
	next := Position{
		X: p.X + dir.X*w.opts.StepSize,
		Z: p.Z + dir.Z*w.opts.StepSize,
	}
	return w.Clamp(next), dir
}

// AllowedActions returns the actions that do not push past an edge from p,
// in ascending action id.
func (w *GridWorld) AllowedActions(p Position) []Action {
	b := w.opts.Extent
	allowed := make([]Action, 0, NumActions)

	for _, a := range AllActions {
		switch {
		case a == Right && p.X >= b:
		case a == Left && p.X <= -b:
		case a == Forward && p.Z >= b:
		case a == Backward && p.Z <= -b:
		default:
			allowed = append(allowed, a)
		}
	}

	return allowed
}

// NearestObstacle returns the distance from p to the closest obstacle lying
// strictly inside the 90 degree half-angle cone around facing. An obstacle
// exactly at p counts as in front. Returns +Inf when the cone is empty.
func (w *GridWorld) NearestObstacle(p Position, facing Facing) float64 {
	minDistance := math.Inf(1)

	for _, obs := range w.obstacles {
		dx, dz := obs.X-p.X, obs.Z-p.Z
		distance := math.Hypot(dx, dz)

		inCone := distance == 0 || dx*facing.X+dz*facing.Z > 0
		if inCone && distance < minDistance {
			minDistance = distance
		}
	}

	return minDistance
}

// Blocked reports whether an obstacle in the forward cone is closer than the clearance
func (w *GridWorld) Blocked(p Position, facing Facing) bool {
	return w.NearestObstacle(p, facing) < w.opts.Clearance
}

// InBounds reports whether p lies within [-B, B] on both axes
func (w *GridWorld) InBounds(p Position) bool {
	b := w.opts.Extent
	return p.X >= -b && p.X <= b && p.Z >= -b && p.Z <= b
}

// Lattice returns every integer point of the grid, row by row from +z to -z
func (w *GridWorld) Lattice() [][]Position {
	b := int(math.Floor(w.opts.Extent))
	rows := make([][]Position, 0, 2*b+1)
	for z := b; z >= -b; z-- {
		row := make([]Position, 0, 2*b+1)
		for x := -b; x <= b; x++ {
			row = append(row, Position{X: float64(x), Z: float64(z)})
		}
		rows = append(rows, row)
	}
	return rows
}

// clamp bounds v to [lo, hi]
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
