package codec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/magscore/internal/catalog"
	"github.com/danielpatrickdp/magscore/internal/flow"
	"github.com/danielpatrickdp/magscore/internal/gate"
	"github.com/danielpatrickdp/magscore/internal/memory"
	"github.com/danielpatrickdp/magscore/internal/pipeline"
	"github.com/danielpatrickdp/magscore/internal/signals"
)

// #region service-names
const (
	AnalysisServiceName = "magscore.v1.AnalysisService"
	VisionServiceName   = "magscore.v1.VisionService"

	analyzeMethod = "/" + AnalysisServiceName + "/Analyze"
	extractMethod = "/" + VisionServiceName + "/Extract"
)

// #endregion service-names

// #region analysis-server
// Analyzer runs one match. *pipeline.Pipeline satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, in pipeline.MatchInput) (pipeline.Result, error)
}

// AnalysisServer exposes an Analyzer over gRPC. Requests and responses are
// google.protobuf.Struct objects shaped like the JSON MatchInput and Result.
type AnalysisServer struct {
	gate     *gate.Gate
	analyzer Analyzer
	logger   *zap.Logger
}

// NewAnalysisServer creates a server. A nil logger discards output.
func NewAnalysisServer(g *gate.Gate, a Analyzer, logger *zap.Logger) *AnalysisServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisServer{gate: g, analyzer: a, logger: logger}
}

// Analyze gate-checks and decodes the request, then runs the analyzer.
func (s *AnalysisServer) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := pipeline.DecodeMap(s.gate, req.AsMap())
	if err != nil {
		return nil, StatusFor(err)
	}
	res, err := s.analyzer.Analyze(ctx, in)
	if err != nil {
		return nil, StatusFor(err)
	}
	out, err := toStruct(res)
	if err != nil {
		s.logger.Error("encode result", zap.String("run_id", res.RunID), zap.Error(err))
		return nil, status.Error(codes.Internal, "encode result")
	}
	return out, nil
}

type analysisHandler interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var analysisServiceDesc = grpc.ServiceDesc{
	ServiceName: AnalysisServiceName,
	HandlerType: (*analysisHandler)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Analyze",
		Handler:    analyzeHandler,
	}},
	Metadata: "magscore/v1/analysis.proto",
}

func analyzeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(analysisHandler).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(analysisHandler).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterAnalysisServer registers srv on s.
func RegisterAnalysisServer(s grpc.ServiceRegistrar, srv *AnalysisServer) {
	s.RegisterService(&analysisServiceDesc, srv)
}

// #endregion analysis-server

// #region status-mapping
// StatusFor maps engine errors to gRPC status codes. Errors that already
// carry a status pass through.
func StatusFor(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, gate.ErrForbiddenField),
		errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, signals.ErrInvalidSignalSequence),
		errors.Is(err, catalog.ErrUnknownSignalCategory),
		errors.Is(err, flow.ErrInvalidPoint),
		errors.Is(err, memory.ErrEmptyTeam):
		code = codes.InvalidArgument
	case errors.Is(err, memory.ErrDuplicateEpisode):
		code = codes.AlreadyExists
	case errors.Is(err, flow.ErrIncompleteTimeline),
		errors.Is(err, catalog.ErrUnknownBehaviorReference),
		errors.Is(err, memory.ErrClosed):
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// UnaryLogger logs each call's method, status code and latency.
func UnaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}

// #endregion status-mapping

// #region struct-conversion

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}

// #endregion struct-conversion
