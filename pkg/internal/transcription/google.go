package transcription

import (
	"context"
	"fmt"
	"sync"

	speech "cloud.google.com/go/speech/apiv1p1beta1"
	"cloud.google.com/go/speech/apiv1p1beta1/speechpb"
	"google.golang.org/api/option"
)

// GoogleEngine recognizes LINEAR16 audio with Cloud Speech-to-Text and
// speaker diarization.
type GoogleEngine struct {
	client *speech.Client
}

func NewGoogleEngine(ctx context.Context, opts ...option.ClientOption) (*GoogleEngine, error) {
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create speech client: %w", err)
	}
	return &GoogleEngine{client: client}, nil
}

func (v *GoogleEngine) Close() error {
	return v.client.Close()
}

func (v *GoogleEngine) OpenStream(ctx context.Context, cfg Config) (Stream, error) {
	stream, err := v.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognitionConfig(cfg),
				InterimResults: true,
			},
		},
	})
	if err != nil {
		_ = stream.CloseSend()
		return nil, fmt.Errorf("unable to send streaming config: %w", err)
	}

	return &googleStream{stream: stream}, nil
}

func recognitionConfig(cfg Config) *speechpb.RecognitionConfig {
	return &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            cfg.SampleRateHertz,
		LanguageCode:               cfg.Language,
		EnableAutomaticPunctuation: true,
		DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          cfg.MinSpeakers,
			MaxSpeakerCount:          cfg.MaxSpeakers,
		},
	}
}

type googleStream struct {
	stream  speechpb.Speech_StreamingRecognizeClient
	pending []Event
	once    sync.Once
}

func (v *googleStream) Send(chunk []byte) error {
	return v.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
	})
}

func (v *googleStream) Recv() (Event, error) {
	for len(v.pending) == 0 {
		resp, err := v.stream.Recv()
		if err != nil {
			return Event{}, err
		}
		if status := resp.GetError(); status != nil {
			return Event{}, fmt.Errorf("speech engine error %d: %s", status.GetCode(), status.GetMessage())
		}
		v.pending = append(v.pending, eventsOf(resp)...)
	}

	event := v.pending[0]
	v.pending = v.pending[1:]
	return event, nil
}

func (v *googleStream) Close() error {
	var err error
	v.once.Do(func() {
		err = v.stream.CloseSend()
	})
	return err
}

// eventsOf takes the top alternative of every result. The speaker is the tag
// of the alternative's first word.
func eventsOf(resp *speechpb.StreamingRecognizeResponse) []Event {
	var out []Event
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		top := alternatives[0]

		var tag int32
		if words := top.GetWords(); len(words) > 0 {
			tag = words[0].GetSpeakerTag()
		}
		out = append(out, Event{
			SpeakerTag: tag,
			Transcript: top.GetTranscript(),
			IsFinal:    result.GetIsFinal(),
		})
	}
	return out
}
