// Package service provides the business logic layer over training runs.
//
// The service package implements:
//   - Run creation from named scenarios in train, exploit or auto mode
//   - Stepping and batch training of a run's trainer
//   - Greedy replays over a snapshot of a run's table
//   - Inspection of action values and episode history
//   - Progress events for transports that stream them
//
// Core Interfaces:
//
// RunService is the main service interface used by the HTTP API and the MCP
// tools. RunManager stores runs and ConfigManager serves scenarios; both are
// satisfied by runs.Manager and config.Manager.
//
// Concurrency:
//
// Trainers are not safe for concurrent use, so every operation holds the
// run's lock while it touches the trainer. Different runs proceed in parallel.
//
// Usage:
//
//	runManager := runs.NewManager(tables, logger)
//	configManager, _ := config.NewManager("configs")
//	runService := service.NewRunService(runManager, configManager, hub, logger)
//
//	info, err := runService.CreateRun(ctx, "walls", "train")
//	result, err := runService.Train(ctx, info.ID, 0)
package service
