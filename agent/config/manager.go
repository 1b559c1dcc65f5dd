package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultName is the scenario the manager prefers as its default
const DefaultName = "classic"

// Extensions are the scenario file formats, in lookup order
var Extensions = []string{".json", ".yaml", ".yml"}

// scenarioID strips a known scenario extension from name
func scenarioID(name string) (string, bool) {
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), true
		}
	}
	return name, false
}

// Info summarizes a scenario file for listings
type Info struct {
	Filename    string  `json:"filename"`
	ConfigID    string  `json:"config_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	GridExtent  float64 `json:"grid_extent"`
	Obstacles   int     `json:"obstacles"`
	Episodes    int     `json:"episodes"`
}

// Manager handles scenario loading and caching
type Manager struct {
	configDir     string
	defaultConfig *Config
	configs       map[string]*Config
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager over configDir
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*Config),
	}

	if err := m.loadDefaultConfig(); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	return m, nil
}

// LoadConfig loads a scenario by name. The returned config is shared; callers
// that modify it must Clone first.
func (m *Manager) LoadConfig(name string) (*Config, error) {
	name, _ = scenarioID(name)

	m.mu.RLock()
	if cfg, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return cfg, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if cfg, exists := m.configs[name]; exists {
		return cfg, nil
	}

	cfg, err := m.readFile(name)
	if err != nil {
		return nil, err
	}

	m.configs[name] = cfg
	return cfg, nil
}

func (m *Manager) readFile(name string) (*Config, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, ErrConfigNotFound
	}

	path, err := m.findFile(name)
	if err != nil {
		return nil, err
	}

	defaults := Default()
	defaults.Name = name
	defaults.Description = ""

	cfg, err := LoadFile(path, defaults)
	if err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, name, err)
	}
	return cfg, nil
}

// findFile returns the first existing scenario file for name
func (m *Manager) findFile(name string) (string, error) {
	for _, ext := range Extensions {
		path := filepath.Join(m.configDir, name+ext)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return "", ErrConfigNotFound
}

// ListConfigs returns information about every valid scenario, sorted by id
func (m *Manager) ListConfigs() ([]*Info, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var infos []*Info
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := scenarioID(entry.Name())
		if !ok || seen[id] {
			continue
		}

		cfg, err := m.LoadConfig(id)
		if err != nil {
			// Skip invalid configs
			continue
		}
		seen[id] = true

		infos = append(infos, &Info{
			Filename:    entry.Name(),
			ConfigID:    id,
			Name:        cfg.Name,
			Description: cfg.Description,
			GridExtent:  cfg.GridExtent,
			Obstacles:   len(cfg.Obstacles),
			Episodes:    cfg.Episodes,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ConfigID < infos[j].ConfigID })
	return infos, nil
}

// GetDefault returns the default scenario
func (m *Manager) GetDefault() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// SetDefault sets the default scenario by name
func (m *Manager) SetDefault(name string) error {
	cfg, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = cfg
	return nil
}

// RefreshCache drops every cached scenario and reloads the default
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*Config)
	m.mu.Unlock()

	return m.loadDefaultConfig()
}

// SaveConfig validates cfg and writes it as name.json
func (m *Manager) SaveConfig(name string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	name, _ = scenarioID(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid name %q", ErrInvalidConfig, name)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.configDir, name+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[name] = cfg
	m.mu.Unlock()

	return nil
}

// loadDefaultConfig prefers classic, then the first valid scenario, then the
// built-in defaults
func (m *Manager) loadDefaultConfig() error {
	cfg, err := m.LoadConfig(DefaultName)
	if err != nil {
		infos, listErr := m.ListConfigs()
		if listErr != nil || len(infos) == 0 {
			cfg = Default()
		} else if cfg, err = m.LoadConfig(infos[0].ConfigID); err != nil {
			cfg = Default()
		}
	}

	m.mu.Lock()
	m.defaultConfig = cfg
	m.mu.Unlock()
	return nil
}
