package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStarted(t *testing.T) *Scheduler {
	t.Helper()
	sched := New(zerolog.Nop(), time.UTC)
	sched.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sched.Stop(ctx)
	})
	return sched
}

func TestOnceScheduleFloorsPastToNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	past := &onceSchedule{fireAt: now.Add(-time.Hour)}
	assert.Equal(t, now, past.Next(now))
	assert.True(t, past.Next(now).IsZero())

	future := &onceSchedule{fireAt: now.Add(time.Minute)}
	assert.Equal(t, now.Add(time.Minute), future.Next(now))
	assert.True(t, future.Next(now.Add(2*time.Minute)).IsZero())
}

func TestArmPastFiresOnce(t *testing.T) {
	sched := newStarted(t)

	var calls atomic.Int32
	var got atomic.Value
	sched.Arm("m1", time.Now().Add(-time.Hour), func(id string) {
		got.Store(id)
		calls.Add(1)
	})

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "m1", got.Load())

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
	assert.Zero(t, sched.Pending())
}

func TestAfterOrdering(t *testing.T) {
	sched := newStarted(t)

	order := make(chan string, 2)
	sched.After(120*time.Millisecond, func() { order <- "late" })
	sched.After(20*time.Millisecond, func() { order <- "early" })

	assert.Equal(t, "early", <-order)
	assert.Equal(t, "late", <-order)
}

func TestCancelBeforeFire(t *testing.T) {
	sched := newStarted(t)

	var calls atomic.Int32
	id := sched.After(100*time.Millisecond, func() { calls.Add(1) })
	assert.Equal(t, 1, sched.Pending())

	assert.True(t, sched.Cancel(id))
	assert.False(t, sched.Cancel(id))
	assert.Zero(t, sched.Pending())

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestArmBeforeStart(t *testing.T) {
	sched := New(zerolog.Nop(), time.UTC)

	var calls atomic.Int32
	sched.After(0, func() { calls.Add(1) })
	assert.Equal(t, 1, sched.Pending())

	sched.Start()
	defer sched.Stop(context.Background())

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}
