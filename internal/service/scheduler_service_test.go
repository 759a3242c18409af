package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/clog"
)

func TestSchedulerRun(t *testing.T) {
	s := NewSchedulerService(time.UTC, 50*time.Millisecond)

	t.Run("job gets run id and deadline", func(t *testing.T) {
		err := s.Run(context.Background(), "probe", func(ctx context.Context) error {
			attrs := clog.GetAttributes(ctx)
			assert.Equal(t, "probe", attrs["job"])
			assert.NotEmpty(t, attrs["run_id"])
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("errors are returned", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Run(context.Background(), "failing", func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("panics become errors", func(t *testing.T) {
		err := s.Run(context.Background(), "panicking", func(context.Context) error { panic("kaboom") })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("timeout cancels the job", func(t *testing.T) {
		err := s.Run(context.Background(), "slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSchedulerScheduleInterval(t *testing.T) {
	s := NewSchedulerService(time.UTC, time.Second)

	_, err := s.ScheduleInterval("bad", 0, func(context.Context) error { return nil })
	assert.Error(t, err)
	_, err = s.Schedule("bad", "not a spec", func(context.Context) error { return nil })
	assert.Error(t, err)

	ran := make(chan struct{}, 1)
	_, err = s.ScheduleInterval("tick", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
