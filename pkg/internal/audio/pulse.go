package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const pulseFragmentBytes = 3200

// PulseSource records from a PulseAudio source, usually the monitor of the
// sink the browser plays meeting audio into. An empty SourceName uses the
// server's default source.
type PulseSource struct {
	SourceName string
}

func (v *PulseSource) Open(ctx context.Context) (io.ReadCloser, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("autojoin"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	var source *pulse.Source
	if len(v.SourceName) > 0 {
		source, err = client.SourceByID(v.SourceName)
	} else {
		source, err = client.DefaultSource()
	}
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", v.SourceName, err)
	}

	reader, writer := io.Pipe()
	capture := &pulseCapture{client: client, reader: reader, writer: writer}

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(writer.Write), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(16000),
		pulse.RecordBufferFragmentSize(pulseFragmentBytes),
		pulse.RecordMediaName("meeting audio"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	capture.stream = stream
	stream.Start()
	unwatch := closeOnDone(ctx, capture)
	capture.lock.Lock()
	capture.unwatch = unwatch
	capture.lock.Unlock()

	return capture, nil
}

type pulseCapture struct {
	client *pulse.Client
	stream *pulse.RecordStream
	reader *io.PipeReader
	writer *io.PipeWriter
	once   sync.Once

	lock    sync.Mutex
	unwatch func() bool
}

func (v *pulseCapture) Read(p []byte) (int, error) {
	return v.reader.Read(p)
}

func (v *pulseCapture) Close() error {
	v.once.Do(func() {
		v.lock.Lock()
		unwatch := v.unwatch
		v.lock.Unlock()
		if unwatch != nil {
			unwatch()
		}
		_ = v.reader.Close()
		if v.stream != nil {
			v.stream.Stop()
			v.stream.Close()
		}
		v.client.Close()
		_ = v.writer.Close()
	})
	return nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}
