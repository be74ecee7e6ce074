package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/sequencer"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

// OrderService is the engine surface the gRPC API needs.
type OrderService interface {
	Asset() string
	Submit(ctx context.Context, req domain.OrderRequest) ([]domain.OrderResult, error)
	RestingOrders(ctx context.Context, side domain.Side) ([]domain.Order, error)
	Levels(ctx context.Context, side domain.Side, depth int) ([]domain.PriceLevel, error)
}

// Server implements OrderServiceServer on top of an OrderService.
type Server struct {
	service OrderService
	logger  *slog.Logger
}

func NewServer(service OrderService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service: service,
		logger:  logger.With(slog.String("component", "grpc")),
	}
}

// NewGRPCServer builds a grpc.Server with the logging, tracing and metrics
// interceptor and registers srv on it.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(srv.logger)),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterOrderServiceServer(s, srv)
	return s
}

// SendOrder validates the request and runs it through the engine. Business
// rejections come back as ok=false; transport-level failures as status
// errors.
func (s *Server) SendOrder(ctx context.Context, in *OrderRequest) (*OrderResponse, error) {
	if err := in.CheckAsset(s.service.Asset()); err != nil {
		return s.rejected(err), nil
	}

	req, err := in.ToDomain()
	if err != nil {
		return s.rejected(err), nil
	}

	results, err := s.service.Submit(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}

	for _, r := range results {
		s.logger.InfoContext(ctx, r.String())
	}
	return &OrderResponse{OK: true, Results: results}, nil
}

// GetRestingOrders returns one side of the book. Depth limits the
// aggregated levels only; 0 means all.
func (s *Server) GetRestingOrders(ctx context.Context, in *BookRequest) (*BookResponse, error) {
	side, err := domain.ParseSide(in.Side)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.Depth < 0 {
		return nil, status.Error(codes.InvalidArgument, "depth must not be negative")
	}

	orders, err := s.service.RestingOrders(ctx, side)
	if err != nil {
		return nil, toStatus(err)
	}
	levels, err := s.service.Levels(ctx, side, in.Depth)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BookResponse{Orders: orders, Levels: levels}, nil
}

func (s *Server) rejected(err error) *OrderResponse {
	telemetry.OrdersRejectedTotal.WithLabelValues("grpc").Inc()
	return &OrderResponse{OK: false, Error: ErrorMessage(err)}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, sequencer.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// UnaryServerInterceptor wraps every call in a server span, logs it and
// counts it by method and status code.
func UnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = extractTraceContext(ctx)
		ctx, span := telemetry.Tracer.Start(ctx, "gRPC "+info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("rpc.system", "grpc"),
				attribute.String("rpc.method", info.FullMethod),
			),
		)
		defer span.End()

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		telemetry.GRPCRequestsTotal.WithLabelValues(info.FullMethod, code.String()).Inc()
		span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))

		attrs := []any{
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			span.SetStatus(otelcodes.Error, err.Error())
			logger.WarnContext(ctx, "grpc call failed", append(attrs, slog.String("error", err.Error()))...)
		} else {
			span.SetStatus(otelcodes.Ok, "")
			logger.DebugContext(ctx, "grpc call", attrs...)
		}
		return resp, err
	}
}
