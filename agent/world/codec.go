package world

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Encode coarsens a position to its lattice key "x,z". Both coordinates are
// rounded to the nearest integer, ties to even.
func Encode(p Position) State {
	x := int(math.RoundToEven(p.X))
	z := int(math.RoundToEven(p.Z))
	return State(strconv.Itoa(x) + "," + strconv.Itoa(z))
}

// Decode parses a lattice key back to its integer position
func Decode(s State) (Position, error) {
	parts := strings.Split(string(s), ",")
	if len(parts) != 2 {
		return Position{}, fmt.Errorf("invalid state %q: expected \"x,z\"", s)
	}

	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Position{}, fmt.Errorf("invalid state %q: %w", s, err)
	}
	z, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Position{}, fmt.Errorf("invalid state %q: %w", s, err)
	}

	return Position{X: float64(x), Z: float64(z)}, nil
}

// ManhattanDistance returns the lattice distance between two positions
func ManhattanDistance(from, to Position) float64 {
	return math.Abs(from.X-to.X) + math.Abs(from.Z-to.Z)
}
