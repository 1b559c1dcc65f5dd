// Package mcp exposes training runs to AI agents over the Model Context
// Protocol.
//
// The Client is a thin proxy: every tool call is translated into a request
// against the REST API served by the api package, and the JSON answer is
// formatted as plain text for the agent.
//
// Tools:
//   - list_configs: List scenarios
//   - create_run: Start a run (start: auto, train or exploit)
//   - list_runs, get_run: Inspect runs
//   - step: Advance a run by n moves
//   - train: Run whole episodes; 0 runs to the end and saves the table
//   - replay: Greedy walk over a copy of the table
//   - action_values: Values of the four actions in one state
//   - show_policy: Greedy policy as a text grid
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
