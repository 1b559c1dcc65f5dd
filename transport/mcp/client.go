package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/service"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Training calls run whole episodes server side
			Timeout: 5 * time.Minute,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Monte Carlo Grid Navigator",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Monte Carlo Grid Navigator - MCP Interface

This is a thin client that proxies all requests to the REST API server.

An agent learns to walk from a start cell to a goal cell on a square grid by
first-visit Monte Carlo control. Training episodes are random walks; after the
last one the learned action values are saved per scenario. Runs created later
for the same scenario load that table and follow the greedy policy.

AVAILABLE TOOLS:
- list_configs: List scenarios (grid size, obstacles, episode budget)
- create_run: Start a run for a scenario (start: auto, train or exploit)
- list_runs / get_run: Inspect runs
- step: Advance a run by a number of single moves
- train: Run whole episodes (0 runs to the end and saves the table)
- replay: Walk the greedy policy over a copy of the table
- action_values: Values of the four actions in one state ("x,z")
- show_policy: Greedy policy as a text grid

ACTIONS: forward (+z), backward (-z), right (+x), left (-x).`),
	)

	c.registerTools()
}

func runIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Run ID",
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Run management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_run",
		Description: "Create a training run for a scenario",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "Scenario ID from list_configs (optional, defaults to classic)",
				},
				"start": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"auto", "train", "exploit"},
					"description": "auto exploits a saved table when one exists and trains otherwise",
				},
			},
		},
	}, c.handleCreateRun)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_runs",
		Description: "List all runs",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRuns)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_run",
		Description: "Get the status of a run",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"run_id": runIDProperty()},
			Required:   []string{"run_id"},
		},
	}, c.handleGetRun)

	// Learning
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step",
		Description: "Advance a run by n single moves",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": runIDProperty(),
				"n": map[string]interface{}{
					"type":        "integer",
					"description": "Number of moves (default 1)",
				},
			},
			Required: []string{"run_id"},
		},
	}, c.handleStep)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "train",
		Description: "Run whole episodes; 0 runs every remaining episode and saves the table",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": runIDProperty(),
				"episodes": map[string]interface{}{
					"type":        "integer",
					"description": "Episodes to run (0 = all remaining)",
				},
			},
			Required: []string{"run_id"},
		},
	}, c.handleTrain)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "replay",
		Description: "Walk the greedy policy of a run without changing it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": runIDProperty(),
				"max_steps": map[string]interface{}{
					"type":        "integer",
					"description": "Step cap (default: the scenario's max_steps)",
				},
			},
			Required: []string{"run_id"},
		},
	}, c.handleReplay)

	// Inspection
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "action_values",
		Description: "Show the learned value of each action in a state",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": runIDProperty(),
				"state": map[string]interface{}{
					"type":        "string",
					"description": "State key \"x,z\", e.g. \"7,-7\"",
				},
			},
			Required: []string{"run_id", "state"},
		},
	}, c.handleActionValues)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "show_policy",
		Description: "Render the greedy policy of a run as a text grid",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"run_id": runIDProperty()},
			Required:   []string{"run_id"},
		},
	}, c.handleShowPolicy)

	// Configuration
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available scenarios",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return nil, fmt.Errorf("%s", msg)
		}
		return nil, fmt.Errorf("API error: %d", resp.StatusCode)
	}
	return resp, nil
}

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (c *Client) apiText(ctx context.Context, path string) (string, error) {
	resp, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Tool handlers

func (c *Client) handleCreateRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	configID, _ := args["config_id"].(string)
	start, _ := args["start"].(string)

	body := map[string]string{}
	if configID != "" {
		body["config_id"] = configID
	}
	if start != "" {
		body["start"] = start
	}

	var run service.RunInfo
	if err := c.apiCall(ctx, "POST", "/api/runs", body, &run); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("Created run\n" + formatRunInfo(&run)), nil
}

func (c *Client) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count int               `json:"count"`
		Runs  []service.RunInfo `json:"runs"`
	}
	if err := c.apiCall(ctx, "GET", "/api/runs?sort=created&order=asc", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Runs (%d):\n\n", response.Count)
	for _, r := range response.Runs {
		fmt.Fprintf(&b, "- %s (Scenario: %s, Mode: %s, Episode %d/%d, Created: %s)\n",
			r.ID, r.ConfigName, r.Mode, r.Status.Episode, r.Status.MaxEpisodes, r.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, _ := arguments(request)["run_id"].(string)

	var run service.RunInfo
	if err := c.apiCall(ctx, "GET", "/api/runs/"+url.PathEscape(runID), nil, &run); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRunInfo(&run)), nil
}

func (c *Client) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	runID, _ := args["run_id"].(string)

	var result service.StepResult
	err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/runs/%s/step", url.PathEscape(runID)), map[string]int{"n": intArg(args, "n")}, &result)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStepResult(&result)), nil
}

func (c *Client) handleTrain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	runID, _ := args["run_id"].(string)

	var result service.TrainResult
	err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/runs/%s/train", url.PathEscape(runID)), map[string]int{"episodes": intArg(args, "episodes")}, &result)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTrainResult(&result)), nil
}

func (c *Client) handleReplay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	runID, _ := args["run_id"].(string)

	var result service.ReplayResult
	err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/runs/%s/replay", url.PathEscape(runID)), map[string]int{"max_steps": intArg(args, "max_steps")}, &result)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatReplayResult(&result)), nil
}

func (c *Client) handleActionValues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	runID, _ := args["run_id"].(string)
	state, _ := args["state"].(string)

	path := fmt.Sprintf("/api/runs/%s/values?state=%s", url.PathEscape(runID), url.QueryEscape(state))
	var result service.ActionValues
	if err := c.apiCall(ctx, "GET", path, nil, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatActionValues(&result)), nil
}

func (c *Client) handleShowPolicy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, _ := arguments(request)["run_id"].(string)

	grid, err := c.apiText(ctx, fmt.Sprintf("/api/runs/%s/policy", url.PathEscape(runID)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	legend := "Legend: S start, G goal, # obstacle, · unvisited, arrows are greedy actions (↑ forward +z)\n\n"
	return mcp.NewToolResultText(legend + grid), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []config.Info
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Scenarios:\n\n")
	for _, cfg := range configs {
		side := int(2*cfg.GridExtent) + 1
		fmt.Fprintf(&b, "• %s (%s)\n  %s\n  Grid: %dx%d, Obstacles: %d, Episodes: %d\n\n",
			cfg.ConfigID, cfg.Name, cfg.Description, side, side, cfg.Obstacles, cfg.Episodes)
	}

	return mcp.NewToolResultText(b.String()), nil
}

// Formatting

func formatRunInfo(run *service.RunInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", run.ID)
	fmt.Fprintf(&b, "Scenario: %s\n", run.ConfigName)
	fmt.Fprintf(&b, "Mode: %s\n", run.Mode)
	fmt.Fprintf(&b, "Episode: %d/%d\n", run.Status.Episode, run.Status.MaxEpisodes)
	fmt.Fprintf(&b, "Position: %s (state %s), steps this episode: %d\n", run.Status.Position, run.Status.State, run.Status.Steps)
	fmt.Fprintf(&b, "Table: %d states", run.Status.TableStates)
	if run.Status.Saved {
		b.WriteString(", saved")
	}
	if run.TablePath != "" {
		fmt.Fprintf(&b, " (%s)", run.TablePath)
	}
	b.WriteString("\n")
	if run.Status.Done {
		b.WriteString("Status: done\n")
	}
	return b.String()
}

func formatStepResult(result *service.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Executed %d/%d moves\n", result.Executed, result.Requested)
	last := result.Last
	fmt.Fprintf(&b, "Last: %s %s -> %s, reward %.2f\n", last.Action, last.From, last.To, last.Reward)
	for _, e := range result.Finished {
		fmt.Fprintf(&b, "Episode %d finished: %s in %d steps, return %.2f\n", e.Episode, e.Outcome, e.Steps, e.Return)
	}
	fmt.Fprintf(&b, "Now at %s, episode %d/%d\n", result.Status.Position, result.Status.Episode, result.Status.MaxEpisodes)
	return b.String()
}

func formatTrainResult(result *service.TrainResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ran %d episodes\n", len(result.Episodes))
	if len(result.Episodes) > 0 {
		fmt.Fprintf(&b, "Success rate: %.0f%%\n", result.SuccessRate*100)
		fmt.Fprintf(&b, "Mean steps: %.1f\n", result.MeanSteps)
		fmt.Fprintf(&b, "Mean return: %.2f\n", result.MeanReturn)
	}
	fmt.Fprintf(&b, "Progress: %d/%d episodes, %d states learned\n",
		result.Status.Episode, result.Status.MaxEpisodes, result.Status.TableStates)
	if result.Status.Done {
		b.WriteString("Training complete")
		if result.Status.Saved {
			b.WriteString(", table saved")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatReplayResult(result *service.ReplayResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Replay: %s in %d steps, return %.2f\n", result.Outcome, result.Steps, result.Return)

	names := make([]string, 0, len(result.Actions))
	for _, a := range result.Actions {
		names = append(names, a.String())
	}
	fmt.Fprintf(&b, "Actions: %s\n", strings.Join(names, " "))

	states := make([]string, 0, len(result.Path))
	for _, p := range result.Path {
		states = append(states, string(world.Encode(p)))
	}
	fmt.Fprintf(&b, "Path: %s\n", strings.Join(states, " -> "))
	return b.String()
}

func formatActionValues(result *service.ActionValues) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State %s\n", result.State)

	defined := make(map[world.Action]bool, len(result.Defined))
	for _, a := range result.Defined {
		defined[a] = true
	}
	allowed := make(map[world.Action]bool, len(result.Allowed))
	for _, a := range result.Allowed {
		allowed[a] = true
	}

	actions := make([]world.Action, 0, len(result.Values))
	for a := range result.Values {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	for _, a := range actions {
		var notes []string
		if !defined[a] {
			notes = append(notes, "default")
		}
		if !allowed[a] {
			notes = append(notes, "off grid")
		}
		line := fmt.Sprintf("  %-8s %8.4f", a, result.Values[a])
		if len(notes) > 0 {
			line += " (" + strings.Join(notes, ", ") + ")"
		}
		b.WriteString(line + "\n")
	}

	if result.Greedy != nil {
		fmt.Fprintf(&b, "Greedy: %s\n", *result.Greedy)
	} else {
		b.WriteString("Greedy: none (state not visited yet)\n")
	}
	return b.String()
}
