package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/magscore/internal/pipeline"
	"github.com/danielpatrickdp/magscore/internal/signals"
)

// #region client-struct
// AnalysisClient calls a remote AnalysisService.
type AnalysisClient struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// VisionClient calls the vision collaborator. It satisfies pipeline.VisionSource.
type VisionClient struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewAnalysisClient connects to an AnalysisService.
func NewAnalysisClient(addr string) (*AnalysisClient, error) {
	conn, err := dial(addr)
	if err != nil {
		return nil, err
	}
	return &AnalysisClient{conn: conn, cc: conn}, nil
}

// NewAnalysisClientWithConn uses an existing connection, e.g. bufconn in tests.
func NewAnalysisClientWithConn(cc grpc.ClientConnInterface) *AnalysisClient {
	return &AnalysisClient{cc: cc}
}

// NewVisionClient connects to a VisionService.
func NewVisionClient(addr string) (*VisionClient, error) {
	conn, err := dial(addr)
	if err != nil {
		return nil, err
	}
	return &VisionClient{conn: conn, cc: conn}, nil
}

// NewVisionClientWithConn uses an existing connection.
func NewVisionClientWithConn(cc grpc.ClientConnInterface) *VisionClient {
	return &VisionClient{cc: cc}
}

func dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return conn, nil
}

// #endregion constructor

// #region close
// Close shuts down an owned connection. Injected connections are left open.
func (c *AnalysisClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Close shuts down an owned connection. Injected connections are left open.
func (c *VisionClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region analyze
// Analyze sends in to the service and decodes the result.
func (c *AnalysisClient) Analyze(ctx context.Context, in pipeline.MatchInput) (pipeline.Result, error) {
	req, err := toStruct(in)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("encode input: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeMethod, req, resp); err != nil {
		return pipeline.Result{}, fmt.Errorf("analyze rpc: %w", err)
	}
	var res pipeline.Result
	if err := fromStruct(resp, &res); err != nil {
		return pipeline.Result{}, err
	}
	return res, nil
}

// #endregion analyze

// #region extract
// extractResponse is the VisionService reply shape.
type extractResponse struct {
	Signals []signals.RawSignal `json:"signals"`
}

// Extract asks the vision service for the match's VIS signals.
func (c *VisionClient) Extract(ctx context.Context, matchID string) ([]signals.RawSignal, error) {
	req, err := structpb.NewStruct(map[string]any{"match_id": matchID})
	if err != nil {
		return nil, fmt.Errorf("encode extract request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, extractMethod, req, resp); err != nil {
		return nil, fmt.Errorf("extract rpc: %w", err)
	}
	var out extractResponse
	if err := fromStruct(resp, &out); err != nil {
		return nil, err
	}
	return out.Signals, nil
}

// #endregion extract
