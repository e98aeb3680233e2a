// Package google provides a Google Cloud Speech-to-Text streaming engine.
package google

import (
	"context"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"consult-transcript-service/internal/service/stt"
)

// Config holds the recognition settings sent with every stream.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
	Model          string
}

// DefaultConfig returns settings for 16kHz LINEAR16 browser/microphone audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-IN",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// Adapter implements stt.Engine using Google Cloud Speech-to-Text.
// One adapter holds at most one open stream.
type Adapter struct {
	client *speech.Client
	cfg    Config

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc
}

// New creates a new Google STT engine.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c, cfg: cfg}, nil
}

// Start opens a streaming recognition session and sends the initial config.
// An empty locale falls back to the configured language code.
func (a *Adapter) Start(ctx context.Context, locale string, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil {
		return stt.ErrAlreadyStarted
	}
	if locale == "" {
		locale = a.cfg.LanguageCode
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := a.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return &stt.Error{Code: classify(err), Err: err}
	}

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz:            a.cfg.SampleRateHz,
					LanguageCode:               locale,
					Model:                      a.cfg.Model,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		cancel()
		return &stt.Error{Code: classify(err), Err: err}
	}

	a.stream = stream
	a.cancel = cancel
	go a.listen(stream, cb)
	return nil
}

// SendAudio sends audio bytes to the open stream. Audio sent while no
// stream is open is dropped.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes and cancels the open stream.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		return nil
	}
	err := a.stream.CloseSend()
	a.cancel()
	a.stream = nil
	a.cancel = nil
	return err
}

// Close stops any stream and closes the underlying client.
func (a *Adapter) Close() error {
	_ = a.Stop()
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// listen receives responses for one stream and forwards them to cb.
// It exits silently if the stream was stopped or replaced.
func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	for {
		resp, err := stream.Recv()
		if err != nil {
			if !a.release(stream) {
				return
			}
			if err == io.EOF {
				cb.OnEnd()
				return
			}
			code := classify(err)
			log.Debug().Err(err).Str("code", string(code)).Msg("speech stream failed")
			cb.OnError(&stt.Error{Code: code, Err: err})
			return
		}

		if resp.Error != nil && resp.Error.Code != 0 {
			if !a.release(stream) {
				return
			}
			serr := status.ErrorProto(resp.Error)
			cb.OnError(&stt.Error{Code: classify(serr), Err: serr})
			return
		}

		ev := stt.Event{}
		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			ev.Results = append(ev.Results, stt.Alternative{
				Transcript: r.Alternatives[0].Transcript,
				IsFinal:    r.IsFinal,
			})
		}
		if len(ev.Results) > 0 {
			cb.OnResults(ev)
		}
	}
}

// release clears the stream if it is still current and reports whether the
// caller owns the termination.
func (a *Adapter) release(stream speechpb.Speech_StreamingRecognizeClient) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream != stream {
		return false
	}
	a.cancel()
	a.stream = nil
	a.cancel = nil
	return true
}

// classify maps gRPC failures to engine error codes. The 305s stream limit
// surfaces as OutOfRange and is treated like an aborted stream.
func classify(err error) stt.ErrorCode {
	switch status.Code(err) {
	case codes.Canceled, codes.OutOfRange, codes.Aborted:
		return stt.CodeAborted
	case codes.Unavailable, codes.DeadlineExceeded:
		return stt.CodeNetwork
	case codes.PermissionDenied, codes.Unauthenticated:
		return stt.CodeNotAllowed
	case codes.ResourceExhausted:
		return stt.CodeServiceNotAllowed
	case codes.InvalidArgument:
		if strings.Contains(strings.ToLower(err.Error()), "language") {
			return stt.CodeLanguageNotSupported
		}
	}
	return stt.CodeUnknown
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]; ok && v != 0 {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}
