package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/wricardo/evacuation-drill/drill/codec"
	"github.com/wricardo/evacuation-drill/drill/engine"
	"github.com/wricardo/evacuation-drill/transport/tcp"
	"go.uber.org/zap"
)

// BotConfig describes the room the bots walk through and how they behave
type BotConfig struct {
	Addr   string
	Format codec.Format
	Width  int
	Height int
	Door   engine.Position

	// Start is used for every bot when set; otherwise each bot starts on a
	// random cell
	Start *engine.Position

	DialTimeout time.Duration
	DialRetries int
	RetryMin    time.Duration
	RetryMax    time.Duration

	// MaxMoves bounds how many move requests a bot sends before giving up
	MaxMoves int
}

// Result is one bot's outcome
type Result struct {
	Name    string
	Start   engine.Position
	Moves   int
	Denied  int
	Freed   bool
	Elapsed time.Duration
	Err     error
}

// Summary aggregates the results of a run
type Summary struct {
	Bots    int
	Freed   int
	Failed  int
	Moves   int
	Denied  int
	Slowest time.Duration
	Elapsed time.Duration
}

func summarize(results []Result, elapsed time.Duration) Summary {
	s := Summary{Bots: len(results), Elapsed: elapsed}
	for _, r := range results {
		if r.Freed {
			s.Freed++
		} else {
			s.Failed++
		}
		s.Moves += r.Moves
		s.Denied += r.Denied
		if r.Elapsed > s.Slowest {
			s.Slowest = r.Elapsed
		}
	}
	return s
}

// RunBots starts count bots concurrently and waits for all of them
func RunBots(ctx context.Context, cfg BotConfig, count int, prefix string, seed int64, logger *zap.SugaredLogger) []Result {
	rng := rand.New(rand.NewSource(seed))
	starts := make([]engine.Position, count)
	for i := range starts {
		if cfg.Start != nil {
			starts[i] = *cfg.Start
		} else {
			starts[i] = engine.Position{Row: rng.Intn(cfg.Height), Col: rng.Intn(cfg.Width)}
		}
	}

	results := make([]Result, count)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("%s-%d", prefix, i+1)
			results[i] = runBot(ctx, cfg, name, starts[i], logger.With("bot", name))
		}(i)
	}
	wg.Wait()
	return results
}

func runBot(ctx context.Context, cfg BotConfig, name string, start engine.Position, logger *zap.SugaredLogger) Result {
	began := time.Now()
	result := Result{Name: name, Start: start}

	client, err := dialWithRetry(ctx, cfg, logger)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(began)
		return result
	}
	defer client.Close()

	// Unblock a pending read when the run is cancelled
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	if err := client.Identify(name, start); err != nil {
		result.Err = fmt.Errorf("identify: %w", err)
		result.Elapsed = time.Since(began)
		return result
	}
	logger.Debugw("Entered", "pos", start.String())

	exits := engine.NewDoorMover(cfg.Width, cfg.Height, cfg.Door).ExitDirections()
	retry := &backoff.Backoff{Min: cfg.RetryMin, Max: cfg.RetryMax, Factor: 2, Jitter: true}
	pos := start

	for result.Moves < cfg.MaxMoves {
		dir := nextDirection(pos, cfg.Door, exits, result.Denied)
		ok, err := client.Move(dir)
		result.Moves++
		if err != nil {
			result.Err = fmt.Errorf("move %s: %w", dir, err)
			result.Elapsed = time.Since(began)
			return result
		}

		if !ok {
			result.Denied++
			select {
			case <-time.After(retry.Duration()):
			case <-ctx.Done():
				result.Err = ctx.Err()
				result.Elapsed = time.Since(began)
				return result
			}
			continue
		}
		retry.Reset()

		if pos == cfg.Door {
			logger.Debugw("Stepped out, waiting for a rescuer", "moves", result.Moves)
			if err := client.AwaitFree(); err != nil {
				result.Err = fmt.Errorf("await free: %w", err)
				result.Elapsed = time.Since(began)
				return result
			}
			result.Freed = true
			result.Elapsed = time.Since(began)
			logger.Debugw("Free", "moves", result.Moves, "denied", result.Denied)
			return result
		}
		pos = engine.Step(pos, dir)
	}

	result.Err = fmt.Errorf("gave up after %d moves", result.Moves)
	result.Elapsed = time.Since(began)
	return result
}

// nextDirection heads for the door, rows first, and steps out once there.
// After a refusal it tries the other useful direction, if any.
func nextDirection(pos, door engine.Position, exits []engine.Direction, denied int) engine.Direction {
	dirs := engine.TowardDoor(pos, door)
	if len(dirs) == 0 {
		dirs = exits
	}
	if len(dirs) == 0 {
		return engine.Up
	}
	return dirs[denied%len(dirs)]
}

func dialWithRetry(ctx context.Context, cfg BotConfig, logger *zap.SugaredLogger) (*tcp.Client, error) {
	retry := &backoff.Backoff{Min: cfg.RetryMin, Max: cfg.RetryMax, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 0; attempt <= cfg.DialRetries; attempt++ {
		client, err := tcp.Dial(cfg.Addr, cfg.Format, cfg.DialTimeout)
		if err == nil {
			return client, nil
		}
		lastErr = err

		delay := retry.Duration()
		logger.Debugw("Dial failed, retrying", "error", err, "attempt", attempt+1, "retry_in", delay.String())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
