// Package runs keeps the training runs served over the API.
//
// A Run pairs a trainer with the scenario it was built from. Runs live in
// memory only and are addressed by a uuid. Learned tables are persisted per
// scenario through a store.Directory, so a run created with StartAuto exploits
// whatever the last finished training run of the same scenario saved.
//
// Usage:
//
//	tables, _ := store.NewDirectory("tables", store.BinaryCodec{})
//	manager := runs.NewManager(tables, logger)
//
//	run, err := manager.Create("classic", cfg, runs.StartTrain)
//	run.Lock()
//	err = run.Trainer.Run(ctx)
//	run.Unlock()
package runs
