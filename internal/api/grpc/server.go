package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"consult-transcript-service/internal/models"
	"consult-transcript-service/internal/service/analysis"
	"consult-transcript-service/internal/service/capture"
	"consult-transcript-service/internal/service/consultation"
	"consult-transcript-service/internal/service/upstream"
)

const errorDomain = "consult-transcript-service"

// Consultations opens and looks up live consultations.
type Consultations interface {
	Open(ctx context.Context, req consultation.OpenRequest) (*consultation.Consultation, bool, error)
	Get(id string) (*consultation.Consultation, bool)
}

// Server implements TranscriptServiceServer.
type Server struct {
	consultations Consultations
	analyzer      analysis.Analyzer
}

// NewServer creates the gRPC service implementation.
func NewServer(consultations Consultations, analyzer analysis.Analyzer) *Server {
	return &Server{consultations: consultations, analyzer: analyzer}
}

// Register registers s on g.
func Register(g *grpc.Server, s *Server) {
	RegisterTranscriptServiceServer(g, s)
}

// StreamAudio feeds audio frames into the consultation's capture session.
// Capture stops when the client closes the stream; pending analysis keeps
// running.
func (s *Server) StreamAudio(stream StreamAudioServer) error {
	ctx := stream.Context()
	md, _ := metadata.FromIncomingContext(ctx)

	id := firstValue(md, MetadataConsultationID)
	if id == "" {
		return status.Error(codes.InvalidArgument, "missing consultation-id metadata")
	}
	speakerValue := firstValue(md, MetadataSpeaker)
	req := consultation.OpenRequest{
		ID:      id,
		Speaker: models.ParseSpeaker(speakerValue),
	}
	// Without language metadata the manager applies its default.
	if v := firstValue(md, MetadataLanguage); v != "" {
		req.Language = models.ParseLanguage(v)
	}

	c, created, err := s.consultations.Open(ctx, req)
	if err != nil {
		return openError(err)
	}
	if !created {
		var speaker models.Speaker
		if speakerValue != "" {
			speaker = req.Speaker
		}
		if err := c.ResumeCapture(speaker, req.Language); err != nil {
			return openError(err)
		}
	}

	logger := log.With().Str("consultation_id", id).Logger()
	logger.Info().
		Str("speaker", string(c.Session.Speaker())).
		Str("language", string(c.Language())).
		Bool("created", created).
		Msg("Audio stream opened")

	var frames, bytes int64
	start := time.Now()
	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.StopCapture()
			return err
		}
		frames++
		bytes += int64(len(frame.GetValue()))
		if err := c.SendAudio(ctx, frame.GetValue()); err != nil {
			c.StopCapture()
			if errors.Is(err, capture.ErrNotListening) {
				return status.Error(codes.FailedPrecondition, "capture stopped: no longer listening")
			}
			return status.Errorf(codes.Internal, "send audio: %v", err)
		}
	}
	c.StopCapture()

	logger.Info().
		Int64("frames", frames).
		Int64("bytes", bytes).
		Int("utterances", c.Utterances()).
		Dur("duration", time.Since(start)).
		Msg("Audio stream closed")

	summary, err := structpb.NewStruct(map[string]interface{}{
		"consultationId":  id,
		"frames":          float64(frames),
		"bytes":           float64(bytes),
		"utterances":      float64(c.Utterances()),
		"transcript":      strings.TrimSpace(c.Transcript()),
		"analysisPending": c.Dispatcher.Pending() || c.Dispatcher.InFlight(),
	})
	if err != nil {
		return status.Errorf(codes.Internal, "build summary: %v", err)
	}
	return stream.SendAndClose(summary)
}

// AnalyzeTranscript analyzes "transcript", or the live transcript of
// "consultationId" when no transcript is given.
func (s *Server) AnalyzeTranscript(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	transcript := strings.TrimSpace(fields["transcript"].GetStringValue())
	consultationID := fields["consultationId"].GetStringValue()
	lang := models.ParseLanguage(fields["language"].GetStringValue())

	if transcript == "" && consultationID != "" {
		if c, ok := s.consultations.Get(consultationID); ok {
			transcript = strings.TrimSpace(c.Transcript())
			if lang == models.LanguageAuto {
				lang = c.Language()
			}
		}
	}
	if transcript == "" {
		return nil, status.Error(codes.InvalidArgument, "transcript is required")
	}

	result, err := s.analyzer.Analyze(ctx, transcript, lang)
	if err != nil {
		return nil, upstreamStatus(err)
	}
	if consultationID != "" {
		result.ConsultationID = consultationID
	}
	return toStruct(result)
}

func openError(err error) error {
	switch {
	case errors.Is(err, capture.ErrUnsupported):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, consultation.ErrMissingID):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Errorf(codes.Internal, "open consultation: %v", err)
	}
}

// upstreamStatus maps an upstream failure to a gRPC status carrying the
// original HTTP status and details as ErrorInfo metadata.
func upstreamStatus(err error) error {
	code := httpToCode(upstream.StatusOf(err))
	msg := err.Error()
	meta := map[string]string{"status": strconv.Itoa(upstream.StatusOf(err))}
	if e, ok := upstream.AsError(err); ok {
		msg = e.Message
		if e.Details != "" {
			meta["details"] = e.Details
		}
	}
	st, detailErr := status.New(code, msg).WithDetails(&errdetails.ErrorInfo{
		Reason:   "UPSTREAM_ERROR",
		Domain:   errorDomain,
		Metadata: meta,
	})
	if detailErr != nil {
		return status.Error(code, msg)
	}
	return st.Err()
}

func httpToCode(s int) codes.Code {
	switch s {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func firstValue(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}
