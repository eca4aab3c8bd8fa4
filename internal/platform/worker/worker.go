// Package worker runs background maintenance tasks on independent timers.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// pollInterval is the sleep between ticker checks to avoid busy-waiting.
const pollInterval = 100 * time.Millisecond

// Task runs at its configured interval. A non-positive interval disables it.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Config configures a ticker loop.
type Config struct {
	// Name identifies the loop for logging.
	Name string

	// Tasks to run. Each gets its own ticker.
	Tasks []Task

	// RunOnStart runs every enabled task once before the tickers start.
	RunOnStart bool

	// Logger for the loop. Nil means no logging.
	Logger *zerolog.Logger
}

// Loop runs the configured tasks until the context is canceled. Returns a
// wrapped context error on cancellation.
func Loop(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	logger.Info().Str("worker", cfg.Name).Msg("starting maintenance loop")
	defer logger.Info().Str("worker", cfg.Name).Msg("maintenance loop stopped")

	enabled := make([]Task, 0, len(cfg.Tasks))

	for _, task := range cfg.Tasks {
		if task.Interval > 0 && task.Run != nil {
			enabled = append(enabled, task)
		}
	}

	if len(enabled) == 0 {
		<-ctx.Done()

		return fmt.Errorf("maintenance loop %s: %w", cfg.Name, ctx.Err())
	}

	tickers := make([]*time.Ticker, len(enabled))
	for i, task := range enabled {
		tickers[i] = time.NewTicker(task.Interval)
	}

	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.RunOnStart {
		for _, task := range enabled {
			runTask(ctx, task, logger)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("maintenance loop %s: %w", cfg.Name, ctx.Err())
		default:
		}

		for i, task := range enabled {
			select {
			case <-tickers[i].C:
				runTask(ctx, task, logger)
			default:
			}
		}

		if err := Wait(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func runTask(ctx context.Context, task Task, logger *zerolog.Logger) {
	defer RecoverPanic(logger, task.Name)

	logger.Debug().Str("task", task.Name).Msg("running maintenance task")
	task.Run(ctx)
}

// Wait blocks until the duration elapses or the context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// RunWithTimeout runs fn with a timeout derived from the parent context.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(timeoutCtx)
}

// RecoverPanic recovers and logs a panic from a maintenance task.
// Use as: defer worker.RecoverPanic(logger, "task name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error().
			Interface("panic", r).
			Str("operation", operation).
			Msg("recovered from panic")
	}
}
