package backup

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerBadCron(t *testing.T) {
	s := NewScheduler(func(ctx context.Context) error { return nil })
	assert.Error(t, s.AddCron("potato"))
	assert.NoError(t, s.AddCron("0 3 * * *"))
}

func TestSchedulerTriggerCoalesces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var runs int32
	release := make(chan struct{})
	s := NewScheduler(func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		<-release
		return nil
	})
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Trigger("test")
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, 5*time.Second, time.Millisecond)

	// while running these collapse into one pending run
	s.Trigger("a")
	s.Trigger("b")
	s.Trigger("c")
	close(release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 2 }, 5*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))

	cancel()
	assert.Equal(t, context.Canceled, <-done)
}

func TestSchedulerNoOverlap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var active, maxActive, runs int32
	s := NewScheduler(func(ctx context.Context) error {
		n := atomic.AddInt32(&active, 1)
		if n > atomic.LoadInt32(&maxActive) {
			atomic.StoreInt32(&maxActive, n)
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&runs, 1)
		return nil
	})
	go func() { _ = s.Run(ctx) }()
	for i := 0; i < 20; i++ {
		s.Trigger("burst")
		time.Sleep(time.Millisecond)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestSchedulerWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	var runs int32
	s := NewScheduler(func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	s.SetSettle(10 * time.Millisecond)
	require.NoError(t, s.Watch([]string{dir}))
	go func() { _ = s.Run(ctx) }()

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0600))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 1 }, 5*time.Second, 5*time.Millisecond)
}

func TestSchedulerWatchMissing(t *testing.T) {
	s := NewScheduler(func(ctx context.Context) error { return nil })
	assert.Error(t, s.Watch([]string{filepath.Join(t.TempDir(), "gone")}))
}
