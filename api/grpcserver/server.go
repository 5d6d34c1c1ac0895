// Package grpcserver serves a run's results over gRPC: the summary, the
// trade log in pages, and the book snapshots as a stream that follows a
// live run.
package grpcserver

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultPageSize = 100
	maxPageSize     = 10000
)

type Server struct {
	store *Store
	grpc  *grpc.Server
	log   *zap.Logger
	wg    sync.WaitGroup
}

var _ ResultsServer = (*Server)(nil)

func New(store *Store, log *zap.Logger, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{store: store, log: log.Named("grpc")}
	opts = append(opts,
		grpc.ChainUnaryInterceptor(s.logUnary),
		grpc.ChainStreamInterceptor(s.logStream),
	)
	s.grpc = grpc.NewServer(opts...)
	RegisterResultsServer(s.grpc, s)
	return s
}

// Start serves on lis until Stop.
func (s *Server) Start(lis net.Listener) {
	s.log.Info("serving", zap.String("addr", lis.Addr().String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("serve failed", zap.Error(err))
		}
	}()
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
	s.wg.Wait()
}

func (s *Server) GetSummary(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res := s.store.Result()
	if res == nil {
		return nil, status.Error(codes.Unavailable, "run still in progress")
	}
	return toStruct(map[string]any{
		"run_id":   res.RunID,
		"summary":  res.Summary,
		"counters": res.Counters,
	})
}

// ListTrades reads "offset" and "limit" from the request.
func (s *Server) ListTrades(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	offset, limit := 0, defaultPageSize
	if v, ok := req.GetFields()["offset"]; ok {
		offset = int(v.GetNumberValue())
	}
	if v, ok := req.GetFields()["limit"]; ok {
		limit = int(v.GetNumberValue())
	}
	if offset < 0 || limit <= 0 || limit > maxPageSize {
		return nil, status.Errorf(codes.InvalidArgument, "offset %d limit %d", offset, limit)
	}

	page, total := s.store.Trades(offset, limit)
	return toStruct(map[string]any{
		"offset": offset,
		"total":  total,
		"trades": page,
	})
}

// StreamSnapshots sends every snapshot so far, then follows the run until
// it finishes or the client goes away.
func (s *Server) StreamSnapshots(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	cursor := 0
	for {
		batch, done, changed := s.store.since(cursor)
		for _, snap := range batch {
			msg, err := toStruct(snap)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
		cursor += len(batch)
		if done && len(batch) == 0 {
			return nil
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case <-changed:
		}
	}
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug("unary", zap.String("method", info.FullMethod), zap.Duration("took", time.Since(start)), zap.Error(err))
	return resp, err
}

func (s *Server) logStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.log.Debug("stream", zap.String("method", info.FullMethod), zap.Duration("took", time.Since(start)), zap.Error(err))
	return err
}

// toStruct carries v's JSON form, so field names match the archive and the
// websocket feed.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}
