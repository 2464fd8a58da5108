// Package audio provides the meeting audio fed into transcription.
package audio

import (
	"context"
	"fmt"
	"io"
)

// Source opens a raw 16kHz mono s16le audio stream. Closing the returned
// reader releases the capture.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SilentSource yields no audio; reads block until the stream is closed.
type SilentSource struct{}

func (SilentSource) Open(context.Context) (io.ReadCloser, error) {
	reader, _ := io.Pipe()
	return reader, nil
}

// New resolves the configured audio source.
func New(kind, pulseSource string) (Source, error) {
	switch kind {
	case "", "none":
		return SilentSource{}, nil
	case "pulse":
		return &PulseSource{SourceName: pulseSource}, nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", kind)
	}
}

// closeOnDone closes c once ctx is done. The returned stop detaches the
// watch and must be called when c is closed by its owner.
func closeOnDone(ctx context.Context, c io.Closer) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
}
