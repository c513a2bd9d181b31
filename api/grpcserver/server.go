// Package grpcserver exposes the waiter board service over gRPC.
package grpcserver

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"waiterboard/domain/waiter"
	"waiterboard/service"
)

// Server adapts WaiterService to gRPC.
type Server struct {
	svc *service.WaiterService
	log *zap.Logger
}

func NewServer(svc *service.WaiterService, log *zap.Logger) *Server {
	return &Server{svc: svc, log: log.Named("grpc")}
}

var _ WaiterBoardServer = (*Server)(nil)

// NewGRPCServer builds a grpc.Server with recovery, logging and metrics
// interceptors and registers s on it.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	recovery := grpc_recovery.WithRecoveryHandler(func(p any) error {
		s.log.Error("handler panic", zap.Any("panic", p))
		return status.Errorf(codes.Internal, "internal error")
	})
	opts = append(opts, grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
		grpc_ctxtags.UnaryServerInterceptor(),
		grpc_prometheus.UnaryServerInterceptor,
		grpc_zap.UnaryServerInterceptor(s.log),
		grpc_recovery.UnaryServerInterceptor(recovery),
	)))

	srv := grpc.NewServer(opts...)
	RegisterWaiterBoardServer(srv, s)
	grpc_prometheus.Register(srv)
	return srv
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	srv := NewGRPCServer(s)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "grpc server")
	case <-ctx.Done():
	}

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		srv.Stop()
	}
	return nil
}

// -------------------- Commands --------------------

func (s *Server) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in waiter.NewOrder
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	o, err := s.svc.CreateOrder(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(o)
}

type updateRequest struct {
	ID int64 `json:"id"`
	waiter.Patch
	StaffInitials string `json:"staff_initials"`
}

func (s *Server) UpdateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in updateRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	o, err := s.svc.UpdateOrder(ctx, in.ID, in.Patch, in.StaffInitials)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(o)
}

type deleteRequest struct {
	ID            int64  `json:"id"`
	StaffInitials string `json:"staff_initials"`
}

func (s *Server) DeleteOrder(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	var in deleteRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	if err := s.svc.DeleteOrder(ctx, in.ID, in.StaffInitials); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) UpdateSettings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	settings, err := s.svc.UpdateSettings(ctx, req.AsMap())
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(settings)
}

// -------------------- Queries --------------------

func (s *Server) GetOrder(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	o, err := s.svc.GetOrder(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(o)
}

type boardEntry struct {
	waiter.Order
	TimeRemaining string `json:"time_remaining"`
	Overdue       bool   `json:"overdue"`
}

func (s *Server) ProductionBoard(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	board, err := s.svc.ProductionBoard(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	mail, err := s.svc.MailQueue(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	now := s.svc.Now()
	entries := func(orders []waiter.Order) []boardEntry {
		out := make([]boardEntry, 0, len(orders))
		for _, o := range orders {
			out = append(out, boardEntry{
				Order:         o,
				TimeRemaining: waiter.FormatTimeRemaining(o.DueTime, now),
				Overdue:       o.Overdue(now),
			})
		}
		return out
	}
	return toStruct(map[string]any{
		"orders":        entries(board),
		"mail_queue":    entries(mail),
		"overdue_count": waiter.CountOverdue(board, now),
		"generated_at":  now,
	})
}

type maskedEntry struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	NumPrescriptions int       `json:"num_prescriptions"`
	ReadyAt          time.Time `json:"ready_at"`
}

func (s *Server) PatientBoard(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	board, err := s.svc.PatientBoard(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]maskedEntry, 0, len(board))
	for _, o := range board {
		out = append(out, maskedEntry{
			ID:               o.ID,
			Name:             waiter.MaskName(o.FirstName, o.LastName),
			NumPrescriptions: o.NumPrescriptions,
			ReadyAt:          *o.ReadyAt,
		})
	}
	return toStruct(map[string]any{"orders": out})
}

func (s *Server) GetSettings(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	settings, err := s.svc.Settings(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(settings)
}

func (s *Server) AuditLog(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.Struct, error) {
	entries, err := s.svc.AuditLog(ctx, int(req.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	if entries == nil {
		entries = []waiter.AuditEntry{}
	}
	return toStruct(map[string]any{"entries": entries})
}

func (s *Server) LookupPatient(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	p, err := s.svc.LookupPatient(ctx, req.GetValue())
	switch {
	case errors.Is(err, waiter.ErrNotFound):
		return toStruct(map[string]any{"found": false})
	case err != nil:
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"found": true, "patient": p})
}

// -------------------- Converters --------------------

// toStruct round-trips v through its JSON encoding so the gRPC payload
// matches the HTTP one field for field.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, waiter.ErrInvalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, waiter.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
