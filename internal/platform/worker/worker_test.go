package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksOnStart(t *testing.T) {
	var runs atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())

	task := Task{
		Name:     "probe",
		Interval: time.Hour,
		Run: func(context.Context) {
			runs.Add(1)
			cancel()
		},
	}

	err := Loop(ctx, Config{Name: "test", Tasks: []Task{task}, RunOnStart: true})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), runs.Load())
}

func TestLoopTicks(t *testing.T) {
	var runs atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task := Task{
		Name:     "fast",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) {
			if runs.Add(1) >= 2 {
				cancel()
			}
		},
	}

	err := Loop(ctx, Config{Name: "test", Tasks: []Task{task}})
	require.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestLoopSkipsDisabledTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Loop(ctx, Config{
		Name: "test",
		Tasks: []Task{
			{Name: "disabled", Interval: 0, Run: func(context.Context) { t.Fatal("ran disabled task") }},
		},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoopRecoversPanic(t *testing.T) {
	var runs atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())

	task := Task{
		Name:     "panicky",
		Interval: time.Hour,
		Run: func(context.Context) {
			if runs.Add(1) == 1 {
				panic("boom")
			}
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- Loop(ctx, Config{Name: "test", Tasks: []Task{task}, RunOnStart: true})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int32(1), runs.Load())
}

func TestWaitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitZero(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
}

func TestRunWithTimeout(t *testing.T) {
	err := RunWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return errors.New("deadline hit")
	})
	assert.EqualError(t, err, "deadline hit")
}
