// Package registry keeps the live sessions of the process, at most one per
// meeting.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"git.solsynth.dev/hypernet/autojoin/pkg/internal/browser"
	"git.solsynth.dev/hypernet/autojoin/pkg/internal/transcription"
)

var ErrAlreadyActive = errors.New("meeting already has an active session")

// ActiveSession is the in-memory state of a joined meeting: the browser page
// and the transcription attached to it.
type ActiveSession struct {
	MeetingID string
	Page      browser.Page
	StartedAt time.Time

	lock           sync.Mutex
	released       bool
	transcription  *transcription.Session
	transcriptPath string
	teardown       cron.EntryID
}

// AttachTranscription hands a running transcription to the session. It
// returns false and stops the transcription if the session was already
// released.
func (v *ActiveSession) AttachTranscription(session *transcription.Session, path string) bool {
	v.lock.Lock()
	if v.released {
		v.lock.Unlock()
		session.Stop()
		return false
	}
	v.transcription = session
	v.transcriptPath = path
	v.lock.Unlock()
	return true
}

func (v *ActiveSession) TranscriptPath() string {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.transcriptPath
}

// SetTeardown records the teardown timer. It returns false if the session
// was already released, in which case the caller should cancel the timer.
func (v *ActiveSession) SetTeardown(id cron.EntryID) bool {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.released {
		return false
	}
	v.teardown = id
	return true
}

func (v *ActiveSession) Teardown() cron.EntryID {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.teardown
}

// Release stops transcription and closes the browser. Only the first call
// has any effect.
func (v *ActiveSession) Release(log zerolog.Logger) {
	if v == nil {
		return
	}

	v.lock.Lock()
	if v.released {
		v.lock.Unlock()
		return
	}
	v.released = true
	session := v.transcription
	v.lock.Unlock()

	session.Stop()
	if v.Page != nil {
		if err := v.Page.Close(); err != nil {
			log.Warn().Err(err).Str("meeting", v.MeetingID).Msg("An error occurred when closing browser")
		}
	}
	log.Debug().Str("meeting", v.MeetingID).Msg("Session resources released")
}

type Registry struct {
	lock     sync.Mutex
	sessions map[string]*ActiveSession
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*ActiveSession)}
}

// Register fails when id already has a session.
func (v *Registry) Register(id string, session *ActiveSession) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if _, ok := v.sessions[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyActive, id)
	}
	v.sessions[id] = session
	return nil
}

func (v *Registry) Lookup(id string) (*ActiveSession, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	session, ok := v.sessions[id]
	return session, ok
}

// Remove deletes and returns the session of id, if any.
func (v *Registry) Remove(id string) (*ActiveSession, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	session, ok := v.sessions[id]
	if ok {
		delete(v.sessions, id)
	}
	return session, ok
}

// RemoveIf deletes the entry of id only when it still points at session.
func (v *Registry) RemoveIf(id string, session *ActiveSession) bool {
	v.lock.Lock()
	defer v.lock.Unlock()

	if current, ok := v.sessions[id]; ok && current == session {
		delete(v.sessions, id)
		return true
	}
	return false
}

func (v *Registry) Len() int {
	v.lock.Lock()
	defer v.lock.Unlock()

	return len(v.sessions)
}

func (v *Registry) IDs() []string {
	v.lock.Lock()
	defer v.lock.Unlock()

	out := make([]string, 0, len(v.sessions))
	for id := range v.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
