// Command occupant plays one or more occupants against a running drill. Each
// bot connects, walks toward the door (rows first), retries refused moves
// after a backoff, steps out and waits to be freed. A summary is logged when
// every bot is done.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/evacuation-drill/drill/codec"
	"github.com/wricardo/evacuation-drill/drill/config"
	"github.com/wricardo/evacuation-drill/drill/engine"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "occupant: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "occupant",
		Usage: "send occupant bots through an evacuation drill",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: fmt.Sprintf("localhost:%d", config.DefaultPort), Usage: "drill address", Sources: cli.EnvVars("DRILL_ADDR")},
			&cli.StringFlag{Name: "codec", Value: config.DefaultCodec, Usage: "wire format: json or msgpack", Sources: cli.EnvVars("DRILL_CODEC")},
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 10, Usage: "number of concurrent bots"},
			&cli.StringFlag{Name: "prefix", Value: "bot", Usage: "bot name prefix"},
			&cli.IntFlag{Name: "width", Value: config.DefaultWidth, Usage: "room width", Sources: cli.EnvVars("DRILL_WIDTH")},
			&cli.IntFlag{Name: "height", Value: config.DefaultHeight, Usage: "room height", Sources: cli.EnvVars("DRILL_HEIGHT")},
			&cli.IntFlag{Name: "door-row", Usage: "door row", Sources: cli.EnvVars("DRILL_DOOR_ROW")},
			&cli.IntFlag{Name: "door-col", Usage: "door column", Sources: cli.EnvVars("DRILL_DOOR_COL")},
			&cli.IntFlag{Name: "start-row", Value: -1, Usage: "start row for every bot (-1 for random)"},
			&cli.IntFlag{Name: "start-col", Value: -1, Usage: "start column for every bot (-1 for random)"},
			&cli.Int64Flag{Name: "seed", Usage: "random seed for start cells (0 uses the clock)"},
			&cli.DurationFlag{Name: "retry-min", Value: 10 * time.Millisecond, Usage: "first retry delay after a refused move"},
			&cli.DurationFlag{Name: "retry-max", Value: time.Second, Usage: "longest retry delay"},
			&cli.IntFlag{Name: "dial-retries", Value: 5, Usage: "connection attempts before a bot gives up"},
			&cli.IntFlag{Name: "max-moves", Value: 10000, Usage: "moves before a bot gives up"},
			&cli.BoolFlag{Name: "debug", Usage: "log every bot step", Sources: cli.EnvVars("DRILL_DEBUG")},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	var (
		logger *zap.Logger
		err    error
	)
	if cmd.Bool("debug") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	format, err := codec.ParseFormat(cmd.String("codec"))
	if err != nil {
		return err
	}

	cfg := BotConfig{
		Addr:        cmd.String("addr"),
		Format:      format,
		Width:       cmd.Int("width"),
		Height:      cmd.Int("height"),
		Door:        engine.Position{Row: cmd.Int("door-row"), Col: cmd.Int("door-col")},
		DialTimeout: 5 * time.Second,
		DialRetries: cmd.Int("dial-retries"),
		RetryMin:    cmd.Duration("retry-min"),
		RetryMax:    cmd.Duration("retry-max"),
		MaxMoves:    cmd.Int("max-moves"),
	}
	if err := validateBotConfig(cfg); err != nil {
		return err
	}
	if row, col := cmd.Int("start-row"), cmd.Int("start-col"); row >= 0 && col >= 0 {
		cfg.Start = &engine.Position{Row: row, Col: col}
	}

	seed := cmd.Int64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	count := cmd.Int("count")
	if count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	sugar.Infow("Starting bots", "count", count, "addr", cfg.Addr, "codec", cfg.Format, "seed", seed)

	began := time.Now()
	results := RunBots(ctx, cfg, count, cmd.String("prefix"), seed, sugar)
	summary := summarize(results, time.Since(began))

	for _, r := range results {
		if r.Err != nil {
			sugar.Warnw("Bot failed", "bot", r.Name, "start", r.Start.String(), "moves", r.Moves, "error", r.Err)
		}
	}
	sugar.Infow("Drill finished",
		"bots", summary.Bots,
		"freed", summary.Freed,
		"failed", summary.Failed,
		"moves", summary.Moves,
		"refused", summary.Denied,
		"slowest", summary.Slowest.String(),
		"elapsed", summary.Elapsed.String(),
	)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d bots did not get out", summary.Failed, summary.Bots)
	}
	return nil
}

func validateBotConfig(cfg BotConfig) error {
	if cfg.Width < engine.MinGridSize || cfg.Height < engine.MinGridSize {
		return fmt.Errorf("room must be at least %dx%d", engine.MinGridSize, engine.MinGridSize)
	}
	if !engine.OnBoundary(cfg.Width, cfg.Height, cfg.Door) ||
		cfg.Door.Row < 0 || cfg.Door.Col < 0 || cfg.Door.Row >= cfg.Height || cfg.Door.Col >= cfg.Width {
		return fmt.Errorf("door %s is not on the boundary of a %dx%d room", cfg.Door, cfg.Width, cfg.Height)
	}
	if cfg.RetryMin <= 0 || cfg.RetryMax < cfg.RetryMin {
		return fmt.Errorf("retry delays must satisfy 0 < retry-min <= retry-max")
	}
	if cfg.MaxMoves <= 0 {
		return fmt.Errorf("max-moves must be positive")
	}
	return nil
}
