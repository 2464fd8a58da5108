package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	audioChunkSize = 3200 // 100ms of 16kHz mono s16
	drainTimeout   = 5 * time.Second
)

// Session pumps audio into one engine stream and writes final results as
// "Speaker {tag}: {text}\n" lines, one write per utterance in arrival order.
type Session struct {
	stream Stream
	audio  io.ReadCloser
	sink   io.WriteCloser
	cancel context.CancelFunc
	log    zerolog.Logger

	pumpDone chan struct{}
	recvDone chan struct{}
	stopOnce sync.Once
	lines    int
}

// Start opens a stream on engine and begins transcribing. The session owns
// audio and sink from here on, including when Start fails.
func Start(ctx context.Context, engine Engine, cfg Config, audio io.ReadCloser, sink io.WriteCloser, log zerolog.Logger) (*Session, error) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	stream, err := engine.OpenStream(ctx, cfg)
	if err != nil {
		cancel()
		_ = audio.Close()
		_ = sink.Close()
		return nil, &StartError{Err: err}
	}

	v := &Session{
		stream:   stream,
		audio:    audio,
		sink:     sink,
		cancel:   cancel,
		log:      log,
		pumpDone: make(chan struct{}),
		recvDone: make(chan struct{}),
	}
	go v.pump()
	go v.receive()

	log.Info().Msg("Transcription started")
	return v, nil
}

func (v *Session) pump() {
	defer close(v.pumpDone)

	buf := make([]byte, audioChunkSize)
	for {
		n, err := v.audio.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if serr := v.stream.Send(chunk); serr != nil {
				v.log.Warn().Err(serr).Msg("An error occurred when sending audio to speech engine")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				v.log.Warn().Err(err).Msg("An error occurred when reading meeting audio")
			}
			return
		}
	}
}

func (v *Session) receive() {
	defer close(v.recvDone)

	for {
		event, err := v.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				v.log.Error().Err(err).Msg("An error occurred when receiving transcription results")
			}
			return
		}
		if !event.IsFinal || len(event.Transcript) == 0 {
			continue
		}

		line := fmt.Sprintf("Speaker %s: %s\n", event.Speaker(), event.Transcript)
		if _, err := io.WriteString(v.sink, line); err != nil {
			v.log.Error().Err(err).Msg("An error occurred when appending to transcript")
			continue
		}
		v.lines++
		v.log.Debug().Str("speaker", event.Speaker()).Msg("Transcript line written")
	}
}

// Stop ends the session. It is safe to call more than once and on a nil
// session.
func (v *Session) Stop() {
	if v == nil {
		return
	}
	v.stopOnce.Do(func() {
		// Close must not race an in-flight Send.
		_ = v.audio.Close()
		if !waitFor(v.pumpDone, drainTimeout) {
			v.log.Warn().Msg("Audio pump did not stop in time, cancelling...")
			v.cancel()
			<-v.pumpDone
		}
		if err := v.stream.Close(); err != nil {
			v.log.Warn().Err(err).Msg("An error occurred when closing transcription stream")
		}

		if !waitFor(v.recvDone, drainTimeout) {
			v.log.Warn().Msg("Transcription stream did not drain in time, cancelling...")
		}
		v.cancel()
		<-v.recvDone

		if err := v.sink.Close(); err != nil {
			v.log.Warn().Err(err).Msg("An error occurred when closing transcript")
		}
		v.log.Info().Int("lines", v.lines).Msg("Transcription stopped")
	})
}

func waitFor(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
