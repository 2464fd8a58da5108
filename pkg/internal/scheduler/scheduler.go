// Package scheduler runs one-shot timers (join triggers, session teardowns)
// and periodic jobs on a single cron instance.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// onceSchedule fires a single time at fireAt, or immediately when fireAt has
// already passed.
type onceSchedule struct {
	fireAt time.Time
	lock   sync.Mutex
	used   bool
}

func (v *onceSchedule) Next(t time.Time) time.Time {
	v.lock.Lock()
	defer v.lock.Unlock()

	if v.used {
		return time.Time{}
	}
	v.used = true
	if v.fireAt.After(t) {
		return v.fireAt
	}
	return t
}

type onceJob struct {
	scheduler *Scheduler
	run       func()
	id        cron.EntryID
	ready     chan struct{}
}

func (v *onceJob) Run() {
	<-v.ready
	if !v.scheduler.release(v.id) {
		return
	}
	v.run()
}

type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	lock    sync.Mutex
	pending map[cron.EntryID]struct{}
}

func New(log zerolog.Logger, location *time.Location) *Scheduler {
	if location == nil {
		location = time.Local
	}
	printf := cron.VerbosePrintfLogger(&log)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(printf),
			cron.WithChain(cron.Recover(printf)),
		),
		log:     log,
		pending: make(map[cron.EntryID]struct{}),
	}
}

// At runs job once at fireAt. A fireAt in the past runs as soon as possible.
func (v *Scheduler) At(fireAt time.Time, job func()) cron.EntryID {
	entry := &onceJob{scheduler: v, run: job, ready: make(chan struct{})}

	v.lock.Lock()
	entry.id = v.cron.Schedule(&onceSchedule{fireAt: fireAt}, entry)
	v.pending[entry.id] = struct{}{}
	v.lock.Unlock()

	close(entry.ready)
	return entry.id
}

// After runs job once after d.
func (v *Scheduler) After(d time.Duration, job func()) cron.EntryID {
	return v.At(time.Now().Add(d), job)
}

// Arm schedules run(id) for fireAt.
func (v *Scheduler) Arm(id string, fireAt time.Time, run func(id string)) cron.EntryID {
	delay := max(time.Until(fireAt), 0)
	v.log.Info().
		Str("meeting", id).
		Time("fire_at", fireAt).
		Dur("delay", delay).
		Msg("Trigger armed")
	return v.At(fireAt, func() {
		run(id)
	})
}

// Every registers a periodic job with a cron spec such as "@every 60m".
func (v *Scheduler) Every(spec string, job func()) (cron.EntryID, error) {
	return v.cron.AddFunc(spec, job)
}

// Cancel stops a timer that has not fired yet. It reports whether the timer
// was still pending; a job that already started keeps running.
func (v *Scheduler) Cancel(id cron.EntryID) bool {
	return v.release(id)
}

func (v *Scheduler) release(id cron.EntryID) bool {
	v.lock.Lock()
	_, ok := v.pending[id]
	delete(v.pending, id)
	v.lock.Unlock()

	if ok {
		v.cron.Remove(id)
	}
	return ok
}

// Pending is the number of one-shot timers that have not fired or been
// cancelled.
func (v *Scheduler) Pending() int {
	v.lock.Lock()
	defer v.lock.Unlock()
	return len(v.pending)
}

func (v *Scheduler) Start() {
	v.cron.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (v *Scheduler) Stop(ctx context.Context) {
	select {
	case <-v.cron.Stop().Done():
	case <-ctx.Done():
		v.log.Warn().Msg("Scheduler stopped before running jobs finished")
	}
}
