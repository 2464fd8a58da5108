// Package transcription streams meeting audio into a speech engine and
// appends every recognized utterance to a transcript sink.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const UnknownSpeaker = "Unknown"

// Event is one recognition result. SpeakerTag is zero when the engine did not
// attribute the utterance to a speaker.
type Event struct {
	SpeakerTag int32
	Transcript string
	IsFinal    bool
}

// Speaker renders the tag used in transcript lines.
func (v Event) Speaker() string {
	if v.SpeakerTag <= 0 {
		return UnknownSpeaker
	}
	return fmt.Sprintf("%d", v.SpeakerTag)
}

type Config struct {
	Language        string
	SampleRateHertz int32
	MinSpeakers     int32
	MaxSpeakers     int32
}

func DefaultConfig() Config {
	return Config{
		Language:        "en-US",
		SampleRateHertz: 16000,
		MinSpeakers:     2,
		MaxSpeakers:     6,
	}
}

// Stream is a single bidirectional recognition stream. Send and Recv are
// called from different goroutines. Recv returns io.EOF once the engine has
// delivered everything after Close.
type Stream interface {
	Send(chunk []byte) error
	Recv() (Event, error)
	Close() error
}

type Engine interface {
	OpenStream(ctx context.Context, cfg Config) (Stream, error)
}

// StartError means the engine could not open a stream. The join the session
// belongs to is still considered successful.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("unable to start transcription: %v", e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// NoopEngine accepts audio and never recognizes anything.
type NoopEngine struct{}

func (NoopEngine) OpenStream(ctx context.Context, _ Config) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	return &noopStream{ctx: ctx, cancel: cancel}, nil
}

type noopStream struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (v *noopStream) Send([]byte) error {
	if v.ctx.Err() != nil {
		return io.ErrClosedPipe
	}
	return nil
}

func (v *noopStream) Recv() (Event, error) {
	<-v.ctx.Done()
	if errors.Is(v.ctx.Err(), context.Canceled) {
		return Event{}, io.EOF
	}
	return Event{}, v.ctx.Err()
}

func (v *noopStream) Close() error {
	v.cancel()
	return nil
}
