// Package api exposes training runs over HTTP.
//
// Endpoints:
//
// Run Management:
//   - POST /api/runs - Create a run: {"config_id": "walls", "start": "auto|train|exploit"}
//   - GET /api/runs - List runs (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/runs/{id} - Get a run
//   - DELETE /api/runs/{id} - Delete a run
//
// Learning:
//   - POST /api/runs/{id}/step - Advance n ticks: {"n": 100}
//   - POST /api/runs/{id}/train - Run whole episodes: {"episodes": 50}; 0 runs to the end
//   - POST /api/runs/{id}/replay - Greedy episode over a copy of the table: {"max_steps": 500}
//   - POST /api/runs/{id}/save - Persist the table now
//
// Inspection:
//   - GET /api/runs/{id}/values?state=7,-7 - Action values of one state
//   - GET /api/runs/{id}/history - Finished episodes (?page=&limit=)
//   - GET /api/runs/{id}/policy - Greedy policy grid as text (?color=true for ANSI)
//   - GET /api/runs/{id}/chart - HTML learning curve (?window=N)
//
// Configuration:
//   - GET /api/configs - List scenarios
//   - GET /api/configs/{name} - Get a scenario
//
// Other:
//   - GET /ws?run={id} - Subscribe to episode_complete and training_done events
//   - GET /health - Liveness probe
//
// Errors are returned as {"error": "..."} with 404 for unknown runs and
// scenarios, 400 for bad arguments and 409 when a frozen exploitation table
// would be written.
package api
