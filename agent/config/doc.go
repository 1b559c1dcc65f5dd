// Package config provides scenario configuration for the Monte Carlo navigator.
//
// The config package handles:
//   - The Config structure with documented defaults
//   - Loading a single config file with environment overrides (viper)
//   - Named scenarios served from a configs directory (Manager)
//   - Conversion into world options and trainer parameters
//
// Configuration Format:
//
// Scenarios are JSON files in the configs directory. Every field is optional
// and falls back to Default():
//
//	{
//	  "name": "walls",
//	  "episodes": 500,
//	  "step_cost": -0.1,
//	  "discount_factor": 0.99,
//	  "grid_extent": 7,
//	  "start": {"x": 7, "z": -7},
//	  "goal": {"x": -7, "z": 7},
//	  "obstacles": [{"x": 0, "z": 0}]
//	}
//
// Environment Overrides:
//
// Load maps every key to an MC_ variable, with nested keys joined by an
// underscore: MC_EPISODES, MC_DISCOUNT_FACTOR, MC_START_X, MC_TABLE_PATH.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cfg, err := manager.LoadConfig("walls")
//	w, err := cfg.NewWorld()
//	tr, err := trainer.New(w, cfg.TrainerConfig(), st, cfg.NewRand(), logger)
package config
