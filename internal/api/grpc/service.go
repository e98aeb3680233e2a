package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "consult.transcript.v1.TranscriptService"

const (
	streamAudioMethod       = "/" + ServiceName + "/StreamAudio"
	analyzeTranscriptMethod = "/" + ServiceName + "/AnalyzeTranscript"
)

// Metadata keys read by StreamAudio.
const (
	MetadataConsultationID = "consultation-id"
	MetadataSpeaker        = "speaker"
	MetadataLanguage       = "language"
)

// StreamAudioServer is the server side of a StreamAudio call.
type StreamAudioServer = grpc.ClientStreamingServer[wrapperspb.BytesValue, structpb.Struct]

// StreamAudioClient is the client side of a StreamAudio call.
type StreamAudioClient = grpc.ClientStreamingClient[wrapperspb.BytesValue, structpb.Struct]

// TranscriptServiceServer is the server API for TranscriptService. Messages
// are protobuf well-known types so no generated code is needed.
type TranscriptServiceServer interface {
	// StreamAudio receives raw audio frames for the consultation named in
	// metadata and replies with a summary when the client closes the stream.
	StreamAudio(StreamAudioServer) error
	// AnalyzeTranscript runs a clinical analysis immediately.
	AnalyzeTranscript(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes TranscriptService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TranscriptServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AnalyzeTranscript",
			Handler:    analyzeTranscriptHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamAudio",
			Handler:       streamAudioHandler,
			ClientStreams: true,
		},
	},
	Metadata: "consult/transcript/v1/transcript.proto",
}

// RegisterTranscriptServiceServer registers srv on s.
func RegisterTranscriptServiceServer(s grpc.ServiceRegistrar, srv TranscriptServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func streamAudioHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(TranscriptServiceServer).StreamAudio(&grpc.GenericServerStream[wrapperspb.BytesValue, structpb.Struct]{ServerStream: stream})
}

func analyzeTranscriptHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TranscriptServiceServer).AnalyzeTranscript(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: analyzeTranscriptMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TranscriptServiceServer).AnalyzeTranscript(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls TranscriptService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// StreamAudio opens an audio stream. Attach consultation metadata to ctx.
func (c *Client) StreamAudio(ctx context.Context, opts ...grpc.CallOption) (StreamAudioClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamAudioMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, structpb.Struct]{ClientStream: stream}, nil
}

// AnalyzeTranscript requests an immediate analysis.
func (c *Client) AnalyzeTranscript(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeTranscriptMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
