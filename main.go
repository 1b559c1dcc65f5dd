// Command montecarlo trains and replays a grid navigation agent with
// first-visit Monte Carlo control.
//
// Local commands work on one scenario file and one table file:
//
//	montecarlo run       load the saved table and replay it, or train when there is none (default)
//	montecarlo train     train from scratch and save the table
//	montecarlo replay    replay the saved table greedily
//	montecarlo inspect   summarize the saved table and print its policy
//	montecarlo reset     delete the saved table
//
// Service commands expose many concurrent runs:
//
//	montecarlo serve     REST API, WebSocket events, /mcp endpoint and optional ngrok tunnel
//	montecarlo mcp       MCP stdio server proxying to an API server
//
// Settings come from --config (JSON or YAML), MC_* environment variables and
// a .env file in the working directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
	"github.com/wricardo/mcp-training/montecarlo/agent/report"
	"github.com/wricardo/mcp-training/montecarlo/agent/store"
	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Monte Carlo Grid Navigator"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree
func newApp() *cli.Command {
	scenarioFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "scenario file (JSON or YAML); MC_* variables override it",
			Sources: cli.EnvVars("MC_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "table",
			Usage: "table file, overrides table_path (.dat binary, .json text)",
		},
		&cli.IntFlag{
			Name:  "episodes",
			Usage: "training episodes, overrides the scenario",
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "random seed, overrides the scenario (0 uses the clock)",
		},
		&cli.BoolFlag{
			Name:  "color",
			Usage: "colour the policy grid",
		},
	}

	return &cli.Command{
		Name:    "montecarlo",
		Usage:   AppName,
		Version: Version,
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("MC_DEBUG"),
			},
		}, scenarioFlags...),
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "replay the saved table, or train when there is none",
				Action: runAction,
			},
			{
				Name:  "train",
				Usage: "train from scratch and save the table",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "chart",
						Usage: "write an HTML learning curve to this file",
					},
					&cli.BoolFlag{
						Name:  "policy",
						Usage: "print the learned policy",
					},
				},
				Action: trainAction,
			},
			{
				Name:   "replay",
				Usage:  "replay the saved table greedily",
				Action: replayAction,
			},
			{
				Name:   "inspect",
				Usage:  "summarize the saved table and print its policy",
				Action: inspectAction,
			},
			{
				Name:   "reset",
				Usage:  "delete the saved table",
				Action: resetAction,
			},
			serveCommand(),
			mcpCommand(),
		},
	}
}

// newLogger writes human-readable logs to stderr
func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// local is one scenario bound to its table file
type local struct {
	cfg    *config.Config
	world  *world.GridWorld
	store  *store.FileStore
	logger zerolog.Logger
	out    io.Writer
	colors bool
}

func newLocal(cmd *cli.Command) (*local, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("table") {
		cfg.TablePath = cmd.String("table")
	}
	if cmd.IsSet("episodes") {
		cfg.Episodes = cmd.Int("episodes")
	}
	if cmd.IsSet("seed") {
		cfg.Seed = cmd.Int64("seed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	w, err := cfg.NewWorld()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd.Bool("debug")).With().Str("scenario", cfg.Name).Logger()
	return &local{
		cfg:    cfg,
		world:  w,
		store:  store.NewFileStore(cfg.TablePath),
		logger: logger,
		out:    cmd.Root().Writer,
		colors: cmd.Bool("color"),
	}, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	l, err := newLocal(cmd)
	if err != nil {
		return err
	}

	t, err := trainer.NewFromStore(l.world, l.cfg.TrainerConfig(), l.store, l.cfg.NewRand(), l.logger)
	if err != nil {
		return err
	}
	return l.execute(ctx, t, t.Mode() == episode.Exploitation)
}

func trainAction(ctx context.Context, cmd *cli.Command) error {
	l, err := newLocal(cmd)
	if err != nil {
		return err
	}

	t, err := trainer.New(l.world, l.cfg.TrainerConfig(), l.store, l.cfg.NewRand(), l.logger)
	if err != nil {
		return err
	}
	if err := l.execute(ctx, t, cmd.Bool("policy")); err != nil {
		return err
	}

	if path := cmd.String("chart"); path != "" {
		if err := writeChart(path, l.cfg.Name, t.History()); err != nil {
			return err
		}
		fmt.Fprintf(l.out, "learning curve: %s\n", path)
	}
	return nil
}

func replayAction(ctx context.Context, cmd *cli.Command) error {
	l, err := newLocal(cmd)
	if err != nil {
		return err
	}

	table, err := l.loadTable()
	if err != nil {
		return err
	}

	t, err := trainer.NewExploiting(l.world, l.cfg.TrainerConfig(), table, l.cfg.NewRand(), l.logger)
	if err != nil {
		return err
	}
	return l.execute(ctx, t, true)
}

func inspectAction(ctx context.Context, cmd *cli.Command) error {
	l, err := newLocal(cmd)
	if err != nil {
		return err
	}

	table, err := l.loadTable()
	if err != nil {
		return err
	}

	fmt.Fprintf(l.out, "table: %s\n", l.store.Path())
	if err := report.WriteStats(l.out, report.Summarize(l.world, table)); err != nil {
		return err
	}
	fmt.Fprintln(l.out)
	return report.RenderPolicy(l.out, report.PolicyView{
		World: l.world,
		Table: table,
		Start: l.cfg.Start,
		Goal:  l.cfg.Goal,
	}, l.colors)
}

func resetAction(ctx context.Context, cmd *cli.Command) error {
	l, err := newLocal(cmd)
	if err != nil {
		return err
	}

	if err := l.store.Delete(); err != nil {
		if errors.Is(err, store.ErrNoData) {
			fmt.Fprintf(l.out, "no table at %s\n", l.store.Path())
			return nil
		}
		return err
	}
	fmt.Fprintf(l.out, "deleted %s\n", l.store.Path())
	return nil
}

func (l *local) loadTable() (*learning.ActionValueTable, error) {
	table, err := l.store.Load()
	if errors.Is(err, store.ErrNoData) {
		return nil, fmt.Errorf("no saved table at %s; run train first", l.store.Path())
	}
	return table, err
}

// execute runs t to completion and prints what happened
func (l *local) execute(ctx context.Context, t *trainer.Trainer, showPolicy bool) error {
	started := time.Now()
	if err := t.Run(ctx); err != nil {
		return err
	}

	history := t.History()
	if t.Mode() == episode.Exploitation {
		if len(history) > 0 {
			last := history[len(history)-1]
			fmt.Fprintf(l.out, "replay: %s in %d steps, return %.2f\n", last.Outcome, last.Steps, last.Return)
		}
		fmt.Fprintf(l.out, "path: %s\n", formatPath(t.LastPath()))
	} else {
		writeTrainingSummary(l.out, history, time.Since(started))
		fmt.Fprintf(l.out, "table saved: %s (%d states)\n", l.store.Path(), t.Table().Len())
	}

	if showPolicy {
		fmt.Fprintln(l.out)
		return report.RenderPolicy(l.out, report.PolicyView{
			World: l.world,
			Table: t.Table(),
			Start: l.cfg.Start,
			Goal:  l.cfg.Goal,
			Path:  t.LastPath(),
		}, l.colors)
	}
	return nil
}

func writeTrainingSummary(w io.Writer, history []trainer.EpisodeSummary, elapsed time.Duration) {
	successes, steps := 0, 0
	for _, h := range history {
		if h.Outcome == episode.Success {
			successes++
		}
		steps += h.Steps
	}

	fmt.Fprintf(w, "trained %d episodes in %s\n", len(history), elapsed.Round(time.Millisecond))
	if len(history) == 0 {
		return
	}
	fmt.Fprintf(w, "reached goal: %d/%d\n", successes, len(history))
	fmt.Fprintf(w, "mean steps: %.1f\n", float64(steps)/float64(len(history)))

	tail := report.MovingAverage(stepsOf(history), report.DefaultWindow)
	fmt.Fprintf(w, "mean steps (last %d): %.1f\n", min(report.DefaultWindow, len(history)), tail[len(tail)-1])
}

func stepsOf(history []trainer.EpisodeSummary) []float64 {
	out := make([]float64, len(history))
	for i, h := range history {
		out[i] = float64(h.Steps)
	}
	return out
}

func formatPath(path []world.Position) string {
	if len(path) == 0 {
		return "(none)"
	}
	s := ""
	for i, p := range path {
		if i > 0 {
			s += " -> "
		}
		s += string(world.Encode(p))
	}
	return s
}

func writeChart(path, title string, history []trainer.EpisodeSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()

	if err := report.WriteLearningCurve(f, title, history, report.DefaultWindow); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	return f.Close()
}
