package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/transcription"
)

type countingPage struct {
	closed atomic.Int32
}

func (v *countingPage) Navigate(context.Context, string, time.Duration) error { return nil }

func (v *countingPage) Find(context.Context, browser.Selector, browser.FindOptions) (browser.Element, error) {
	return nil, browser.ErrNotFound
}

func (v *countingPage) Snapshot(context.Context) ([]byte, error) { return nil, nil }

func (v *countingPage) Close() error {
	v.closed.Add(1)
	return nil
}

func TestRegisterFailsOnDuplicate(t *testing.T) {
	reg := New()
	first := &ActiveSession{MeetingID: "m1"}

	require.NoError(t, reg.Register("m1", first))
	err := reg.Register("m1", &ActiveSession{MeetingID: "m1"})
	require.ErrorIs(t, err, ErrAlreadyActive)

	got, ok := reg.Lookup("m1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRemove(t *testing.T) {
	reg := New()
	session := &ActiveSession{MeetingID: "m1"}
	require.NoError(t, reg.Register("m1", session))

	assert.False(t, reg.RemoveIf("m1", &ActiveSession{}))
	assert.Equal(t, 1, reg.Len())

	got, ok := reg.Remove("m1")
	require.True(t, ok)
	assert.Same(t, session, got)

	_, ok = reg.Remove("m1")
	assert.False(t, ok)
	_, ok = reg.Lookup("m1")
	assert.False(t, ok)
}

func TestConcurrentRegisterKeepsOne(t *testing.T) {
	reg := New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.Register("shared", &ActiveSession{MeetingID: "shared"}) == nil {
				wins.Add(1)
			}
			_ = reg.Register(fmt.Sprintf("own-%d", i), &ActiveSession{})
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.Equal(t, 33, reg.Len())
	assert.Contains(t, reg.IDs(), "shared")
}

func TestReleaseClosesOnce(t *testing.T) {
	page := &countingPage{}
	session := &ActiveSession{MeetingID: "m1", Page: page}

	session.Release(zerolog.Nop())
	session.Release(zerolog.Nop())
	assert.EqualValues(t, 1, page.closed.Load())

	var none *ActiveSession
	assert.NotPanics(t, func() { none.Release(zerolog.Nop()) })
}

func TestAttachAfterReleaseStopsTranscription(t *testing.T) {
	session := &ActiveSession{MeetingID: "m1", Page: &countingPage{}}
	session.Release(zerolog.Nop())

	var none *transcription.Session
	assert.False(t, session.AttachTranscription(none, "transcript.txt"))
	assert.Empty(t, session.TranscriptPath())
	assert.False(t, session.SetTeardown(7))
	assert.Zero(t, session.Teardown())
}
