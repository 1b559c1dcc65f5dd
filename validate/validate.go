// Command validate provides a small CLI that validates scenario files (JSON
// or YAML) in the ../configs directory, or in the directory given as the
// first argument. It checks:
//   - Parsing and parameter ranges (episodes, steps, discount, grid geometry)
//   - Obstacles inside the grid
//   - Start and goal clear of every obstacle
//   - Start not already within the goal threshold
//   - Connectivity: the goal is reachable from the start using moves that stay
//     on the grid and keep the obstacle clearance
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// maxSearch bounds the connectivity search for scenarios whose step size
// does not divide the grid evenly
const maxSearch = 1000000

// ValidationResult holds the outcome of validating a single scenario file.
// When Valid, Errors carries informational lines prefixed with ✓.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateConfig loads and validates one scenario file
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	cfg, err := config.Load(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	gw, err := cfg.NewWorld()
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid grid: %v", err))
		return result
	}

	for _, obs := range cfg.Obstacles {
		if !gw.InBounds(obs) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("Obstacle %s is outside the grid", obs))
		}
	}

	if d := nearestObstacle(cfg.Start, cfg.Obstacles); d < cfg.Clearance {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Start %s is %.2f from an obstacle, clearance is %.2f", cfg.Start, d, cfg.Clearance))
	}
	if d := nearestObstacle(cfg.Goal, cfg.Obstacles); d < cfg.Clearance {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Goal %s is %.2f from an obstacle, clearance is %.2f", cfg.Goal, d, cfg.Clearance))
	}

	if withinGoal(cfg.Start, cfg) {
		result.Valid = false
		result.Errors = append(result.Errors, "Start is already within the goal threshold")
	}

	// Connectivity validation - check the goal is reachable from the start
	if result.Valid {
		reachabilityResult := validateConnectivity(gw, cfg)
		if !reachabilityResult.Valid {
			result.Valid = false
		}
		result.Errors = append(result.Errors, reachabilityResult.Errors...)
	}

	// Add informational data
	if result.Valid {
		size := 2*int(math.Floor(cfg.GridExtent)) + 1
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Name: %s", cfg.Name))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Grid: %dx%d", size, size))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Obstacles: %d", len(cfg.Obstacles)))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Route: %s to %s", world.Encode(cfg.Start), world.Encode(cfg.Goal)))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Episodes: %d", cfg.Episodes))
	}

	return result
}

// validateConnectivity searches breadth first from the start over the moves a
// training episode could take: boundary-filtered actions whose destination
// keeps the obstacle clearance. It reports the shortest route length found.
func validateConnectivity(gw *world.GridWorld, cfg *config.Config) ValidationResult {
	result := ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	type node struct {
		pos   world.Position
		depth int
	}

	visited := map[world.Position]bool{cfg.Start: true}
	queue := []node{{pos: cfg.Start}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, a := range gw.AllowedActions(current.pos) {
			next, facing := gw.Move(current.pos, a)
			if visited[next] || gw.Blocked(next, facing) {
				continue
			}
			if withinGoal(next, cfg) {
				result.Errors = append(result.Errors, fmt.Sprintf("✓ Connectivity: goal reachable in %d moves", current.depth+1))
				return result
			}

			visited[next] = true
			if len(visited) > maxSearch {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("Connectivity check gave up after %d positions", maxSearch))
				return result
			}
			queue = append(queue, node{pos: next, depth: current.depth + 1})
		}
	}

	result.Valid = false
	result.Errors = append(result.Errors, fmt.Sprintf("Connectivity failure: goal %s unreachable from start %s (%d positions explored)",
		world.Encode(cfg.Goal), world.Encode(cfg.Start), len(visited)))
	return result
}

func withinGoal(p world.Position, cfg *config.Config) bool {
	return math.Abs(p.X-cfg.Goal.X) <= cfg.GoalThreshold && math.Abs(p.Z-cfg.Goal.Z) <= cfg.GoalThreshold
}

func nearestObstacle(p world.Position, obstacles []world.Position) float64 {
	nearest := math.Inf(1)
	for _, obs := range obstacles {
		nearest = math.Min(nearest, math.Hypot(obs.X-p.X, obs.Z-p.Z))
	}
	return nearest
}

// findConfigs lists every scenario file in dir
func findConfigs(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

// main validates every scenario file, printing a concise report and exiting
// with non-zero status if any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := findConfigs(configDir)
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All scenarios are valid!")
	} else {
		fmt.Println("❌ Some scenarios have errors")
		os.Exit(1)
	}
}
