package world

import "fmt"

// Action is one of the four discrete moves
type Action int

const (
	Forward  Action = iota // +z
	Backward               // -z
	Right                  // +x
	Left                   // -x

	// NumActions is the size of the action space
	NumActions = 4

	// Default geometry
	DefaultExtent    = 7.0
	DefaultStepSize  = 1.0
	DefaultClearance = 0.5
)

// AllActions lists every action in ascending id order
var AllActions = []Action{Forward, Backward, Right, Left}

var actionNames = map[Action]string{
	Forward:  "forward",
	Backward: "backward",
	Right:    "right",
	Left:     "left",
}

// String returns the lower-case name of the action
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Valid reports whether a is one of the four moves
func (a Action) Valid() bool {
	return a >= Forward && a <= Left
}

// ParseAction converts a name ("forward", "left", ...) to an Action
func ParseAction(name string) (Action, error) {
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", name)
}

// MarshalText encodes the action by name
func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid action %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText parses an action name
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Facing is a unit direction in the x/z plane
type Facing struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Direction returns the unit step vector and facing of the action
func (a Action) Direction() Facing {
	switch a {
	case Forward:
		return Facing{X: 0, Z: 1}
	case Backward:
		return Facing{X: 0, Z: -1}
	case Right:
		return Facing{X: 1, Z: 0}
	case Left:
		return Facing{X: -1, Z: 0}
	}
	return Facing{}
}

// Position represents a point in continuous x/z space
type Position struct {
	X float64 `json:"x" mapstructure:"x"`
	Z float64 `json:"z" mapstructure:"z"`
}

// String formats the position with two decimals
func (p Position) String() string {
	return fmt.Sprintf("(%.2f,%.2f)", p.X, p.Z)
}

// State is the canonical discrete key of a position, "x,z"
type State string
