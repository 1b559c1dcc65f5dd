package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
)

const validScenario = `{
	"name": "Test Scenario",
	"description": "5x5 grid around a centre obstacle",
	"episodes": 10,
	"max_steps": 1000,
	"grid_extent": 2,
	"start": {"x": 2, "z": -2},
	"goal": {"x": -2, "z": 2},
	"obstacles": [{"x": 0, "z": 0}]
}`

// writeScenario writes content to a temp file with the given extension
func writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestValidateConfig_ValidConfig(t *testing.T) {
	result := validateConfig(writeScenario(t, "valid.json", validScenario))
	if !result.Valid {
		t.Fatalf("Expected valid config, but got errors: %v", result.Errors)
	}
	if result.File != "valid.json" {
		t.Errorf("Expected file valid.json, got %s", result.File)
	}

	for _, want := range []string{
		"✓ Connectivity: goal reachable in 8 moves",
		"✓ Name: Test Scenario",
		"✓ Grid: 5x5",
		"✓ Obstacles: 1",
		"✓ Route: 2,-2 to -2,2",
	} {
		if !contains(result.Errors, want) {
			t.Errorf("Expected info %q, got %v", want, result.Errors)
		}
	}
}

func TestValidateConfig_YAML(t *testing.T) {
	scenario := `
name: yaml-scenario
episodes: 10
grid_extent: 1
start: {x: 1, z: -1}
goal: {x: -1, z: 1}
`
	result := validateConfig(writeScenario(t, "scenario.yaml", scenario))
	if !result.Valid {
		t.Fatalf("Expected valid config, but got errors: %v", result.Errors)
	}
	if !contains(result.Errors, "✓ Connectivity: goal reachable in 4 moves") {
		t.Errorf("Expected a 4 move route, got %v", result.Errors)
	}
}

func TestValidateConfig_InvalidJSON(t *testing.T) {
	result := validateConfig(writeScenario(t, "broken.json", `{"name": "broken",`))
	if result.Valid {
		t.Error("Expected invalid config for malformed JSON")
	}
	if len(result.Errors) == 0 {
		t.Error("Expected an error message")
	}
}

func TestValidateConfig_MissingFile(t *testing.T) {
	result := validateConfig(filepath.Join(t.TempDir(), "missing.json"))
	if result.Valid {
		t.Error("Expected invalid result for a missing file")
	}
}

func TestValidateConfig_InvalidParameters(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "negative episodes",
			content:  `{"episodes": -5, "grid_extent": 2, "start": {"x": 2, "z": -2}, "goal": {"x": -2, "z": 2}}`,
			expected: "episodes must be positive",
		},
		{
			name:     "start outside grid",
			content:  `{"grid_extent": 2, "start": {"x": 3, "z": 0}, "goal": {"x": -2, "z": 2}}`,
			expected: "outside the grid",
		},
		{
			name:     "discount above one",
			content:  `{"discount_factor": 1.5, "grid_extent": 2, "start": {"x": 2, "z": -2}, "goal": {"x": -2, "z": 2}}`,
			expected: "discount_factor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validateConfig(writeScenario(t, "scenario.json", tt.content))
			if result.Valid {
				t.Fatal("Expected invalid config")
			}
			if !containsSubstring(result.Errors, tt.expected) {
				t.Errorf("Expected an error containing %q, got %v", tt.expected, result.Errors)
			}
		})
	}
}

func TestValidateConfig_Obstacles(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name: "obstacle outside grid",
			content: `{"grid_extent": 2, "start": {"x": 2, "z": -2}, "goal": {"x": -2, "z": 2},
				"obstacles": [{"x": 5, "z": 5}]}`,
			expected: "Obstacle (5.00,5.00) is outside the grid",
		},
		{
			name: "obstacle on start",
			content: `{"grid_extent": 2, "start": {"x": 2, "z": -2}, "goal": {"x": -2, "z": 2},
				"obstacles": [{"x": 2, "z": -2}]}`,
			expected: "Start (2.00,-2.00) is 0.00 from an obstacle",
		},
		{
			name: "obstacle near goal",
			content: `{"grid_extent": 2, "start": {"x": 2, "z": -2}, "goal": {"x": -2, "z": 2},
				"obstacles": [{"x": -2, "z": 1.8}]}`,
			expected: "Goal (-2.00,2.00) is 0.20 from an obstacle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validateConfig(writeScenario(t, "scenario.json", tt.content))
			if result.Valid {
				t.Fatal("Expected invalid config")
			}
			if !containsSubstring(result.Errors, tt.expected) {
				t.Errorf("Expected an error containing %q, got %v", tt.expected, result.Errors)
			}
		})
	}
}

func TestValidateConfig_StartAtGoal(t *testing.T) {
	content := `{"grid_extent": 2, "start": {"x": 1, "z": 1}, "goal": {"x": 1.3, "z": 1}}`
	result := validateConfig(writeScenario(t, "scenario.json", content))
	if result.Valid {
		t.Fatal("Expected invalid config")
	}
	if !contains(result.Errors, "Start is already within the goal threshold") {
		t.Errorf("Unexpected errors: %v", result.Errors)
	}
}

func TestValidateConnectivity_Wall(t *testing.T) {
	cfg := config.Default()
	cfg.GridExtent = 1
	cfg.Start.X, cfg.Start.Z = 1, -1
	cfg.Goal.X, cfg.Goal.Z = -1, 1
	cfg.Obstacles = nil

	gw, err := cfg.NewWorld()
	if err != nil {
		t.Fatalf("NewWorld failed: %v", err)
	}
	open := validateConnectivity(gw, cfg)
	if !open.Valid {
		t.Errorf("Expected an open grid to be connected, got %v", open.Errors)
	}

	// A full column at x=0 separates start from goal
	cfg.Obstacles = append(cfg.Obstacles, gw.Lattice()[0][1], gw.Lattice()[1][1], gw.Lattice()[2][1])
	gw, err = cfg.NewWorld()
	if err != nil {
		t.Fatalf("NewWorld failed: %v", err)
	}
	walled := validateConnectivity(gw, cfg)
	if walled.Valid {
		t.Fatal("Expected the wall to disconnect the grid")
	}
	if !containsSubstring(walled.Errors, "goal -1,1 unreachable from start 1,-1 (3 positions explored)") {
		t.Errorf("Unexpected errors: %v", walled.Errors)
	}
}

func TestValidateConfig_ShippedScenarios(t *testing.T) {
	files, err := findConfigs("../configs")
	if err != nil {
		t.Fatalf("findConfigs failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("Expected scenarios in ../configs")
	}

	for _, file := range files {
		if result := validateConfig(file); !result.Valid {
			t.Errorf("%s: %v", result.File, result.Errors)
		}
	}
}

func contains(lines []string, want string) bool {
	for _, line := range lines {
		if line == want {
			return true
		}
	}
	return false
}

func containsSubstring(lines []string, substr string) bool {
	for _, line := range lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
