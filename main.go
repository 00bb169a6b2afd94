// Command evacuation-drill runs a concurrent evacuation drill server.
//
// It supports two modes:
//  1. "serve" (default) – runs the TCP drill endpoint plus an HTTP monitor
//     exposing a REST API, a WebSocket event stream and an /mcp endpoint
//  2. "mcp" – runs an MCP stdio server against a running monitor, or starts
//     its own drill on loopback ports if none is reachable
//
// Every flag can also be set through a DRILL_* environment variable or a
// .env file in the working directory.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/evacuation-drill/drill/config"
	"github.com/wricardo/evacuation-drill/transport/mcp"
	"go.uber.org/zap"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Evacuation Drill Server"
)

// Flag names shared by the commands
const (
	flagConfigDir    = "config-dir"
	flagScenario     = "scenario"
	flagHost         = "host"
	flagPort         = "port"
	flagCodec        = "codec"
	flagWidth        = "width"
	flagHeight       = "height"
	flagMaxPerCell   = "max-per-cell"
	flagRescuers     = "rescuers"
	flagDoorRow      = "door-row"
	flagDoorCol      = "door-col"
	flagMaskDuration = "mask-duration"
	flagMonitorHost  = "monitor-host"
	flagMonitorPort  = "monitor-port"
	flagDebug        = "debug"
	flagNgrok        = "ngrok"
	flagNgrokAuth    = "ngrok-auth"
	flagNgrokDomain  = "ngrok-domain"
	flagMonitorURL   = "monitor-url"
)

func main() {
	// Load .env file if it exists; flags read the environment afterwards
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", app.Name, err)
		os.Exit(1)
	}
}

// newApp builds the command tree
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "evacuation-drill",
		Usage:   "run a concurrent evacuation drill over TCP",
		Version: Version,
		Flags:   drillFlags(),
		Action:  runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the drill endpoint and the HTTP monitor (default)",
				Action: runServe,
			},
			{
				Name:  "mcp",
				Usage: "Run an MCP stdio server for the drill monitor",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagMonitorURL,
						Value:   "http://localhost:8080",
						Usage:   "monitor to proxy; an internal drill is started if it is unreachable",
						Sources: cli.EnvVars("DRILL_MONITOR_URL"),
					},
				},
				Action: runMCP,
			},
		},
	}
}

func drillFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfigDir,
			Value:   "configs",
			Usage:   "directory containing drill scenario files",
			Sources: cli.EnvVars("DRILL_CONFIG_DIR", "CONFIG_DIR"),
		},
		&cli.StringFlag{
			Name:    flagScenario,
			Usage:   "scenario to load from the config directory (default scenario if empty)",
			Sources: cli.EnvVars("DRILL_SCENARIO"),
		},
		&cli.StringFlag{
			Name:    flagHost,
			Usage:   "drill listen host",
			Sources: cli.EnvVars("DRILL_HOST"),
		},
		&cli.IntFlag{
			Name:    flagPort,
			Value:   config.DefaultPort,
			Usage:   "drill listen port",
			Sources: cli.EnvVars("DRILL_PORT"),
		},
		&cli.StringFlag{
			Name:    flagCodec,
			Value:   config.DefaultCodec,
			Usage:   "wire format: json or msgpack",
			Sources: cli.EnvVars("DRILL_CODEC"),
		},
		&cli.IntFlag{
			Name:    flagWidth,
			Value:   config.DefaultWidth,
			Usage:   "room width in cells",
			Sources: cli.EnvVars("DRILL_WIDTH"),
		},
		&cli.IntFlag{
			Name:    flagHeight,
			Value:   config.DefaultHeight,
			Usage:   "room height in cells",
			Sources: cli.EnvVars("DRILL_HEIGHT"),
		},
		&cli.IntFlag{
			Name:    flagMaxPerCell,
			Value:   config.DefaultMaxPerCell,
			Usage:   "maximum occupants per cell",
			Sources: cli.EnvVars("DRILL_MAX_PER_CELL"),
		},
		&cli.IntFlag{
			Name:    flagRescuers,
			Value:   config.DefaultRescuers,
			Usage:   "number of rescuers handing out masks",
			Sources: cli.EnvVars("DRILL_RESCUERS"),
		},
		&cli.IntFlag{
			Name:    flagDoorRow,
			Usage:   "door row; must be on the room boundary",
			Sources: cli.EnvVars("DRILL_DOOR_ROW"),
		},
		&cli.IntFlag{
			Name:    flagDoorCol,
			Usage:   "door column; must be on the room boundary",
			Sources: cli.EnvVars("DRILL_DOOR_COL"),
		},
		&cli.DurationFlag{
			Name:    flagMaskDuration,
			Usage:   "time a rescuer spends on each occupant",
			Sources: cli.EnvVars("DRILL_MASK_DURATION"),
		},
		&cli.StringFlag{
			Name:    flagMonitorHost,
			Usage:   "monitor HTTP listen host",
			Sources: cli.EnvVars("DRILL_MONITOR_HOST"),
		},
		&cli.IntFlag{
			Name:    flagMonitorPort,
			Value:   config.DefaultMonitorPort,
			Usage:   "monitor HTTP listen port (0 disables the monitor)",
			Sources: cli.EnvVars("DRILL_MONITOR_PORT"),
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Usage:   "enable debug logging",
			Sources: cli.EnvVars("DRILL_DEBUG"),
		},
		&cli.BoolFlag{
			Name:    flagNgrok,
			Usage:   "expose the monitor through an ngrok tunnel",
			Sources: cli.EnvVars("NGROK_ENABLED"),
		},
		&cli.StringFlag{
			Name:    flagNgrokAuth,
			Usage:   "ngrok auth token",
			Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
		},
		&cli.StringFlag{
			Name:    flagNgrokDomain,
			Usage:   "custom ngrok domain",
			Sources: cli.EnvVars("NGROK_DOMAIN"),
		},
	}
}

// newLogger returns a JSON production logger, or a console logger with debug
// level when debug is set. Both write to stderr.
func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.Sugar(), nil
}

// loadConfig resolves the drill configuration: scenario file (or built-in
// default) first, then any flag set on the command line or environment.
func loadConfig(cmd *cli.Command, logger *zap.SugaredLogger) (*config.DrillConfig, *config.Manager, error) {
	dir := cmd.String(flagConfigDir)
	manager, err := config.NewManager(dir)
	if err != nil {
		if cmd.IsSet(flagConfigDir) {
			return nil, nil, fmt.Errorf("failed to create config manager: %w", err)
		}
		logger.Debugw("Config directory not found, using built-in scenarios", "dir", dir)
		if manager, err = config.NewManager(""); err != nil {
			return nil, nil, fmt.Errorf("failed to create config manager: %w", err)
		}
	}

	cfg := manager.GetDefault()
	if name := cmd.String(flagScenario); name != "" {
		if cfg, err = manager.LoadConfig(name); err != nil {
			return nil, nil, fmt.Errorf("failed to load scenario %q: %w", name, err)
		}
	}

	applyOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, manager, nil
}

// applyOverrides copies explicitly set flags over the scenario values
func applyOverrides(cmd *cli.Command, cfg *config.DrillConfig) {
	if cmd.IsSet(flagHost) {
		cfg.Host = cmd.String(flagHost)
	}
	if cmd.IsSet(flagPort) {
		cfg.Port = cmd.Int(flagPort)
	}
	if cmd.IsSet(flagCodec) {
		cfg.Codec = cmd.String(flagCodec)
	}
	if cmd.IsSet(flagWidth) {
		cfg.Width = cmd.Int(flagWidth)
	}
	if cmd.IsSet(flagHeight) {
		cfg.Height = cmd.Int(flagHeight)
	}
	if cmd.IsSet(flagMaxPerCell) {
		cfg.MaxPerCell = cmd.Int(flagMaxPerCell)
	}
	if cmd.IsSet(flagRescuers) {
		cfg.Rescuers = cmd.Int(flagRescuers)
	}
	if cmd.IsSet(flagDoorRow) {
		cfg.Door.Row = cmd.Int(flagDoorRow)
	}
	if cmd.IsSet(flagDoorCol) {
		cfg.Door.Col = cmd.Int(flagDoorCol)
	}
	if cmd.IsSet(flagMaskDuration) {
		cfg.MaskDuration = config.Duration(cmd.Duration(flagMaskDuration))
	}
	if cmd.IsSet(flagMonitorHost) {
		cfg.MonitorHost = cmd.String(flagMonitorHost)
	}
	if cmd.IsSet(flagMonitorPort) {
		cfg.MonitorPort = cmd.Int(flagMonitorPort)
	}
}

// runServe starts the drill and blocks until SIGINT or SIGTERM
func runServe(ctx context.Context, cmd *cli.Command) error {
	logger, err := newLogger(cmd.Bool(flagDebug))
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, manager, err := loadConfig(cmd, logger)
	if err != nil {
		logger.Errorw("Invalid configuration", "error", err)
		return err
	}
	logStartup(logger, cfg, "serve")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitorAddr := ""
	if cfg.MonitorPort != 0 {
		monitorAddr = cfg.MonitorAddr()
	}

	d, err := startDrill(cfg, manager, monitorAddr, logger)
	if err != nil {
		logger.Errorw("Failed to start drill", "error", err)
		return err
	}

	if cmd.Bool(flagNgrok) {
		if d.monitor == nil {
			logger.Warnw("Ngrok enabled but the monitor is disabled")
		} else {
			go d.serveNgrok(ctx, cmd.String(flagNgrokAuth), cmd.String(flagNgrokDomain))
		}
	}

	if err := d.run(ctx); err != nil {
		logger.Errorw("Drill stopped with error", "error", err)
		return err
	}
	logger.Infow("Server stopped")
	return nil
}

// runMCP serves MCP over stdio. It proxies an already running monitor when
// one answers at --monitor-url; otherwise it starts its own drill with the
// monitor bound to a random loopback port.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	logger, err := newLogger(cmd.Bool(flagDebug))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseURL := strings.TrimRight(cmd.String(flagMonitorURL), "/")
	logger.Infow("Checking for an external monitor", "url", baseURL)

	var errc chan error
	if !monitorReachable(ctx, baseURL) {
		logger.Infow("No external monitor found, starting an internal drill")

		cfg, manager, err := loadConfig(cmd, logger)
		if err != nil {
			logger.Errorw("Invalid configuration", "error", err)
			return err
		}
		logStartup(logger, cfg, "mcp")

		d, err := startDrill(cfg, manager, "127.0.0.1:0", logger)
		if err != nil {
			logger.Errorw("Failed to start drill", "error", err)
			return err
		}
		errc = make(chan error, 1)
		go func() { errc <- d.run(ctx) }()
		baseURL = d.monitorURL
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Infow("MCP stdio server ready", "monitor", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		logger.Errorw("MCP stdio server error", "error", err)
		return err
	}

	stop()
	if errc == nil {
		return nil
	}
	select {
	case err := <-errc:
		return err
	case <-time.After(10 * time.Second):
		return nil
	}
}

// monitorReachable reports whether a monitor answers its health check
func monitorReachable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func logStartup(logger *zap.SugaredLogger, cfg *config.DrillConfig, mode string) {
	logger.Infow("Starting "+AppName, "version", Version, "mode", mode, "scenario", cfg.Name,
		"width", cfg.Width, "height", cfg.Height, "max_per_cell", cfg.MaxPerCell,
		"rescuers", cfg.Rescuers, "door", cfg.Door.String(), "codec", cfg.Codec)
}
