package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/runs"
	"github.com/wricardo/mcp-training/montecarlo/agent/service"
	"github.com/wricardo/mcp-training/montecarlo/agent/store"
	"github.com/wricardo/mcp-training/montecarlo/api"
	"github.com/wricardo/mcp-training/montecarlo/transport/mcp"
	"github.com/wricardo/mcp-training/montecarlo/transport/websocket"
)

func serviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config-dir",
			Value:   "configs",
			Usage:   "directory containing scenario files",
			Sources: cli.EnvVars("CONFIG_DIR"),
		},
		&cli.StringFlag{
			Name:    "tables-dir",
			Value:   "tables",
			Usage:   "directory for per-scenario tables",
			Sources: cli.EnvVars("MC_TABLES_DIR"),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the REST API, WebSocket events and the /mcp endpoint",
		Flags: append(serviceFlags(),
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.DurationFlag{Name: "run-ttl", Value: 24 * time.Hour, Usage: "drop runs not accessed for this long"},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable an ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
		),
		Action: serveAction,
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:    "mcp",
		Aliases: []string{"stdio-mcp"},
		Usage:   "run an MCP stdio server backed by the REST API",
		Flags: append(serviceFlags(),
			&cli.StringFlag{
				Name:    "api-url",
				Value:   "http://localhost:8080",
				Usage:   "API server to use; an internal one is started when it is unreachable",
				Sources: cli.EnvVars("MC_API_URL"),
			},
		),
		Action: mcpAction,
	}
}

// initializeServices wires the config manager, the table directory and the
// run registry into a run service
func initializeServices(configDir, tablesDir string, notifier service.Notifier, logger zerolog.Logger) (service.RunService, *runs.Manager, error) {
	configManager, err := config.NewManager(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	tables, err := store.NewDirectory(tablesDir, store.BinaryCodec{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tables directory: %w", err)
	}

	runManager := runs.NewManager(tables, logger)
	return service.NewRunService(runManager, configManager, notifier, logger), runManager, nil
}

// newHandler mounts the API at the root and the MCP JSON-RPC endpoint at /mcp
func newHandler(apiServer *api.Server, mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
	return mainRouter
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.Bool("debug"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	runService, runManager, err := initializeServices(cmd.String("config-dir"), cmd.String("tables-dir"), hub, logger)
	if err != nil {
		return err
	}
	go cleanupRoutine(ctx, runManager, cmd.Duration("run-ttl"))

	addr := fmt.Sprintf("%s:%d", cmd.String("host"), cmd.Int("port"))
	handler := newHandler(
		api.NewServer(runService, hub, logger),
		mcp.NewClient(fmt.Sprintf("http://%s", addr)),
	)

	// Training requests run whole episodes, hence the long write timeout
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	errs := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info().
			Str("api", fmt.Sprintf("http://%s/api", addr)).
			Str("websocket", fmt.Sprintf("ws://%s/ws?run=<run_id>", addr)).
			Str("mcp", fmt.Sprintf("http://%s/mcp", addr)).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveNgrok(ctx, handler, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), logger)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case runErr = <-errs:
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	logger.Info().Msg("server stopped")
	return runErr
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is done
func serveNgrok(ctx context.Context, handler http.Handler, authToken, domain string, logger zerolog.Logger) {
	if authToken == "" {
		logger.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		tun.Close()
	}()

	ngrokURL := tun.URL()
	logger.Info().
		Str("url", ngrokURL).
		Str("api", ngrokURL+"/api").
		Str("mcp", ngrokURL+"/mcp").
		Msg("ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		logger.Warn().Err(err).Msg("ngrok server error")
	}
	logger.Info().Msg("ngrok tunnel closed")
}

// cleanupRoutine periodically drops runs that have not been accessed within ttl
func cleanupRoutine(ctx context.Context, manager *runs.Manager, ttl time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.CleanupExpired(ttl)
		}
	}
}

// mcpAction serves MCP over stdio. It uses the API at --api-url when it
// answers and otherwise starts an internal API on a loopback port.
func mcpAction(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.Bool("debug"))

	baseURL := cmd.String("api-url")
	if !apiAvailable(baseURL) {
		internalURL, shutdown, err := startInternalAPI(cmd.String("config-dir"), cmd.String("tables-dir"), logger)
		if err != nil {
			return err
		}
		defer shutdown()
		logger.Info().Str("api", internalURL).Msg("no external API server found, using internal HTTP server")
		baseURL = internalURL
	} else {
		logger.Info().Str("api", baseURL).Msg("using external API server")
	}

	mcpClient := mcp.NewClient(baseURL)
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

func apiAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// startInternalAPI serves the API on a random loopback port
func startInternalAPI(configDir, tablesDir string, logger zerolog.Logger) (string, func(), error) {
	runService, _, err := initializeServices(configDir, tablesDir, nil, logger)
	if err != nil {
		return "", nil, err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get available port: %w", err)
	}

	httpServer := &http.Server{Handler: api.NewServer(runService, nil, logger)}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("internal HTTP server error")
		}
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}
	return "http://" + listener.Addr().String(), shutdown, nil
}
