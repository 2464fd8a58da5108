package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/adapters"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/models"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/store"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/transcription"
)

type memoryStore struct {
	mu        sync.Mutex
	seq       int
	meetings  map[string]models.Meeting
	failPatch atomic.Bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{meetings: make(map[string]models.Meeting)}
}

func (v *memoryStore) Create(_ context.Context, meeting *models.Meeting) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	meeting.ID = "meeting-" + strconv.Itoa(v.seq)
	if meeting.Status == "" {
		meeting.Status = models.MeetingStatusScheduled
	}
	v.meetings[meeting.ID] = *meeting
	return meeting.ID, nil
}

func (v *memoryStore) Get(_ context.Context, id string) (models.Meeting, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	meeting, ok := v.meetings[id]
	if !ok {
		return meeting, store.ErrNotFound
	}
	return meeting, nil
}

func (v *memoryStore) Update(_ context.Context, id string, patch models.MeetingPatch) error {
	if v.failPatch.Load() {
		return errors.New("store unavailable")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	meeting, ok := v.meetings[id]
	if !ok {
		return store.ErrNotFound
	}
	patch.Apply(&meeting)
	v.meetings[id] = meeting
	return nil
}

func (v *memoryStore) Transition(_ context.Context, id string, to models.MeetingStatus, patch models.MeetingPatch) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	meeting, ok := v.meetings[id]
	if !ok {
		return store.ErrNotFound
	}
	if !lo.Contains(models.MeetingStatusPredecessors[to], meeting.Status) {
		return store.ErrStaleTransition
	}
	meeting.Status = to
	patch.Apply(&meeting)
	v.meetings[id] = meeting
	return nil
}

func (v *memoryStore) ListByOwner(_ context.Context, owner string, desc bool) ([]models.Meeting, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := lo.Filter(lo.Values(v.meetings), func(item models.Meeting, _ int) bool {
		return item.OwnerID == owner
	})
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (v *memoryStore) ListByStatus(_ context.Context, status models.MeetingStatus) ([]models.Meeting, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return lo.Filter(lo.Values(v.meetings), func(item models.Meeting, _ int) bool {
		return item.Status == status
	}), nil
}

func (v *memoryStore) status(id string) models.MeetingStatus {
	meeting, _ := v.Get(context.Background(), id)
	return meeting.Status
}

type fakePage struct {
	closed atomic.Int32
}

func (v *fakePage) Navigate(context.Context, string, time.Duration) error { return nil }

func (v *fakePage) Find(context.Context, browser.Selector, browser.FindOptions) (browser.Element, error) {
	return nil, browser.ErrNotFound
}

func (v *fakePage) Snapshot(context.Context) ([]byte, error) { return nil, nil }

func (v *fakePage) Close() error {
	v.closed.Add(1)
	return nil
}

// fakeAdapter hands out a fresh page per join unless err or panicWith is set.
type fakeAdapter struct {
	provider  models.Provider
	confirmed bool
	err       error
	panicWith any
	delay     time.Duration

	calls atomic.Int32
	mu    sync.Mutex
	pages []*fakePage
	names []string
}

func (v *fakeAdapter) Provider() models.Provider {
	return v.provider
}

func (v *fakeAdapter) Join(_ context.Context, req adapters.Request) (adapters.Result, error) {
	v.calls.Add(1)
	time.Sleep(v.delay)
	if v.panicWith != nil {
		panic(v.panicWith)
	}
	if v.err != nil {
		return adapters.Result{}, v.err
	}

	page := &fakePage{}
	v.mu.Lock()
	v.pages = append(v.pages, page)
	v.names = append(v.names, req.DisplayName)
	v.mu.Unlock()
	return adapters.Result{Page: page, Confirmed: v.confirmed}, nil
}

func (v *fakeAdapter) displayNames() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.names...)
}

func (v *fakeAdapter) lastPage() *fakePage {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.pages) == 0 {
		return nil
	}
	return v.pages[len(v.pages)-1]
}

// scriptedEngine replays events on every stream and reports EOF once the
// stream is closed.
type scriptedEngine struct {
	events []transcription.Event
	err    error
	opened atomic.Int32
	closed atomic.Int32
}

func (v *scriptedEngine) OpenStream(context.Context, transcription.Config) (transcription.Stream, error) {
	if v.err != nil {
		return nil, v.err
	}
	v.opened.Add(1)
	ch := make(chan transcription.Event, len(v.events))
	for _, event := range v.events {
		ch <- event
	}
	return &scriptedStream{engine: v, events: ch, done: make(chan struct{})}, nil
}

type scriptedStream struct {
	engine *scriptedEngine
	events chan transcription.Event
	done   chan struct{}
	once   sync.Once
}

func (v *scriptedStream) Send([]byte) error { return nil }

func (v *scriptedStream) Recv() (transcription.Event, error) {
	select {
	case event := <-v.events:
		return event, nil
	default:
	}
	select {
	case event := <-v.events:
		return event, nil
	case <-v.done:
		return transcription.Event{}, io.EOF
	}
}

func (v *scriptedStream) Close() error {
	v.once.Do(func() {
		v.engine.closed.Add(1)
		close(v.done)
	})
	return nil
}
