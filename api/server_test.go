package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/runs"
	"github.com/wricardo/mcp-training/montecarlo/agent/service"
	"github.com/wricardo/mcp-training/montecarlo/agent/store"
	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
	"github.com/wricardo/mcp-training/montecarlo/transport/websocket"
)

const tinyScenario = `{
	"name": "tiny",
	"description": "3x3 smoke test",
	"episodes": 4,
	"max_steps": 10000,
	"grid_extent": 1,
	"start": {"x": 1, "z": -1},
	"goal": {"x": -1, "z": 1},
	"seed": 11
}`

func createTestServer(t *testing.T) (*Server, *websocket.Hub) {
	t.Helper()

	configDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "tiny.json"), []byte(tinyScenario), 0644))
	configs, err := config.NewManager(configDir)
	require.NoError(t, err)

	tables, err := store.NewDirectory(t.TempDir(), store.BinaryCodec{})
	require.NoError(t, err)

	hub := websocket.NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	svc := service.NewRunService(runs.NewManager(tables, zerolog.Nop()), configs, hub, zerolog.Nop())
	return NewServer(svc, hub, zerolog.Nop()), hub
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func createRun(t *testing.T, s *Server, start string) service.RunInfo {
	t.Helper()
	rr := doRequest(t, s, "POST", "/api/runs", map[string]string{"config_id": "tiny", "start": start})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var info service.RunInfo
	decode(t, rr, &info)
	return info
}

func TestHealth(t *testing.T) {
	s, _ := createTestServer(t)
	rr := doRequest(t, s, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")
}

func TestCreateRun(t *testing.T) {
	s, _ := createTestServer(t)

	info := createRun(t, s, "train")
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "tiny", info.ConfigName)
	assert.Equal(t, "training", info.Mode)
	assert.Equal(t, 4, info.Status.MaxEpisodes)

	t.Run("empty body uses the default scenario", func(t *testing.T) {
		rr := doRequest(t, s, "POST", "/api/runs", nil)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	})

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"unknown scenario", map[string]string{"config_id": "nope"}, http.StatusNotFound},
		{"bad start mode", map[string]string{"config_id": "tiny", "start": "sideways"}, http.StatusBadRequest},
		{"exploit without a table", map[string]string{"config_id": "tiny", "start": "exploit"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, s, "POST", "/api/runs", tt.body)
			assert.Equal(t, tt.status, rr.Code)

			var body map[string]string
			decode(t, rr, &body)
			assert.NotEmpty(t, body["error"])
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/runs", strings.NewReader("{"))
		rr := httptest.NewRecorder()
		s.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestListGetDeleteRuns(t *testing.T) {
	s, _ := createTestServer(t)
	first := createRun(t, s, "train")
	time.Sleep(2 * time.Millisecond)
	second := createRun(t, s, "train")

	rr := doRequest(t, s, "GET", "/api/runs?sort=created&order=asc", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Count int                `json:"count"`
		Total int                `json:"total"`
		Runs  []service.RunInfo `json:"runs"`
	}
	decode(t, rr, &list)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, first.ID, list.Runs[0].ID)
	assert.Equal(t, second.ID, list.Runs[1].ID)

	rr = doRequest(t, s, "GET", "/api/runs?sort=created&order=desc&limit=1", nil)
	decode(t, rr, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, second.ID, list.Runs[0].ID)

	rr = doRequest(t, s, "GET", "/api/runs/"+first.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, s, "DELETE", "/api/runs/"+first.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, s, "GET", "/api/runs/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = doRequest(t, s, "DELETE", "/api/runs/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStepEndpoint(t *testing.T) {
	s, _ := createTestServer(t)
	info := createRun(t, s, "train")

	rr := doRequest(t, s, "POST", "/api/runs/"+info.ID+"/step", map[string]int{"n": 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res service.StepResult
	decode(t, rr, &res)
	assert.Equal(t, 2, res.Executed)

	rr = doRequest(t, s, "POST", "/api/runs/"+info.ID+"/step", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &res)
	assert.Equal(t, 1, res.Executed)

	rr = doRequest(t, s, "POST", "/api/runs/"+info.ID+"/step", map[string]int{"n": service.MaxStepsPerCall + 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, s, "POST", "/api/runs/missing/step", map[string]int{"n": 1})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTrainReplayAndSave(t *testing.T) {
	s, _ := createTestServer(t)
	info := createRun(t, s, "train")

	rr := doRequest(t, s, "POST", "/api/runs/"+info.ID+"/train", map[string]int{"episodes": 0})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var train service.TrainResult
	decode(t, rr, &train)
	assert.Len(t, train.Episodes, 4)
	assert.True(t, train.Status.Done)
	assert.True(t, train.Status.Saved)

	rr = doRequest(t, s, "POST", "/api/runs/"+info.ID+"/replay", map[string]int{"max_steps": 100})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var replay service.ReplayResult
	decode(t, rr, &replay)
	assert.True(t, replay.Outcome.Terminal())
	assert.Len(t, replay.Path, replay.Steps+1)

	rr = doRequest(t, s, "POST", "/api/runs/"+info.ID+"/save", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var saved service.SaveResult
	decode(t, rr, &saved)
	assert.FileExists(t, saved.Path)

	// With a table on disk, auto starts in exploitation and refuses to save
	exploit := createRun(t, s, "auto")
	assert.Equal(t, "exploitation", exploit.Mode)
	rr = doRequest(t, s, "POST", "/api/runs/"+exploit.ID+"/save", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(t, s, "GET", "/api/runs/"+info.ID+"/history?page=2&limit=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Total    int                      `json:"total"`
		Episodes []trainer.EpisodeSummary `json:"episodes"`
	}
	decode(t, rr, &history)
	assert.Equal(t, 4, history.Total)
	require.Len(t, history.Episodes, 1)
	assert.Equal(t, 3, history.Episodes[0].Episode)
	assert.Equal(t, episode.Success, history.Episodes[0].Outcome)
}

func TestHistoryPagingBounds(t *testing.T) {
	s, _ := createTestServer(t)
	info := createRun(t, s, "train")

	rr := doRequest(t, s, "POST", "/api/runs/"+info.ID+"/train", map[string]int{"episodes": 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	type page struct {
		Limit    int                      `json:"limit"`
		Total    int                      `json:"total"`
		Episodes []trainer.EpisodeSummary `json:"episodes"`
	}

	tests := []struct {
		name     string
		query    string
		limit    int
		episodes int
	}{
		{"huge limit", "?page=2&limit=9223372036854775807", maxHistoryLimit, 0},
		{"huge limit first page", "?page=1&limit=9223372036854775807", maxHistoryLimit, 2},
		{"huge page", "?page=9223372036854775807&limit=50", 50, 0},
		{"past the end", "?page=3&limit=1", 1, 0},
		{"last page", "?page=2&limit=1", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, s, "GET", "/api/runs/"+info.ID+"/history"+tt.query, nil)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			var got page
			decode(t, rr, &got)
			assert.Equal(t, 2, got.Total)
			assert.Equal(t, tt.limit, got.Limit)
			assert.Len(t, got.Episodes, tt.episodes)
		})
	}
}

func TestValuesEndpoint(t *testing.T) {
	s, _ := createTestServer(t)
	info := createRun(t, s, "train")

	rr := doRequest(t, s, "GET", "/api/runs/"+info.ID+"/values?state=-1,1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var values service.ActionValues
	decode(t, rr, &values)
	assert.Equal(t, world.State("-1,1"), values.State)
	assert.Equal(t, 1.0, values.Values[world.Forward])
	require.NotNil(t, values.Greedy)
	assert.Equal(t, world.Forward, *values.Greedy)

	rr = doRequest(t, s, "GET", "/api/runs/"+info.ID+"/values", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, s, "GET", "/api/runs/"+info.ID+"/values?state=up", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPolicyAndChart(t *testing.T) {
	s, _ := createTestServer(t)
	info := createRun(t, s, "train")

	rr := doRequest(t, s, "GET", "/api/runs/"+info.ID+"/chart", nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "no episodes yet")

	rr = doRequest(t, s, "POST", "/api/runs/"+info.ID+"/train", map[string]int{"episodes": 2})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, s, "GET", "/api/runs/"+info.ID+"/policy", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	grid := rr.Body.String()
	assert.Len(t, strings.Split(strings.TrimRight(grid, "\n"), "\n"), 3)
	assert.Contains(t, grid, "G")
	assert.Contains(t, grid, "S")
	assert.NotContains(t, grid, "\x1b[")

	rr = doRequest(t, s, "GET", "/api/runs/"+info.ID+"/chart?window=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<html")

	rr = doRequest(t, s, "GET", "/api/runs/missing/policy", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestConfigEndpoints(t *testing.T) {
	s, _ := createTestServer(t)

	rr := doRequest(t, s, "GET", "/api/configs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var infos []config.Info
	decode(t, rr, &infos)
	require.Len(t, infos, 1)
	assert.Equal(t, "tiny", infos[0].ConfigID)

	rr = doRequest(t, s, "GET", "/api/configs/tiny.json", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var cfg config.Config
	decode(t, rr, &cfg)
	assert.Equal(t, 4, cfg.Episodes)
	assert.Equal(t, world.Position{X: -1, Z: 1}, cfg.Goal)

	rr = doRequest(t, s, "GET", "/api/configs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRespondServiceError(t *testing.T) {
	s, _ := createTestServer(t)

	tests := []struct {
		err    error
		status int
	}{
		{runs.ErrRunNotFound, http.StatusNotFound},
		{fmt.Errorf("scenario x: %w", config.ErrConfigNotFound), http.StatusNotFound},
		{service.ErrInvalidArgument, http.StatusBadRequest},
		{runs.ErrInvalidStart, http.StatusBadRequest},
		{runs.ErrNoSavedTable, http.StatusBadRequest},
		{config.ErrInvalidConfig, http.StatusBadRequest},
		{trainer.ErrFrozen, http.StatusConflict},
		{trainer.ErrNoStore, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.respondServiceError(rr, tt.err)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestWebSocketEvents(t *testing.T) {
	s, hub := createTestServer(t)
	server := httptest.NewServer(s)
	defer server.Close()

	info := createRun(t, s, "train")
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?run=" + info.ID

	_, resp, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?run=missing", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount(info.ID) == 1 }, time.Second, 10*time.Millisecond)

	rr := doRequest(t, s, "POST", "/api/runs/"+info.ID+"/train", map[string]int{"episodes": 1})
	require.Equal(t, http.StatusOK, rr.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var message websocket.Message
	require.NoError(t, json.Unmarshal(data, &message))
	assert.Equal(t, info.ID, message.RunID)
	assert.Equal(t, service.EventEpisodeComplete, message.Event)
}
