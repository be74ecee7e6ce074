package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/rpc"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

// Subject is where order requests for asset are sent.
func Subject(asset string) string {
	return "engine." + asset + ".orders"
}

// OrderService is the engine surface the responder needs.
type OrderService interface {
	Asset() string
	Submit(ctx context.Context, req domain.OrderRequest) ([]domain.OrderResult, error)
}

// Connect opens a NATS connection with reconnect logging.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Responder answers order requests arriving over NATS request-reply. It
// speaks the same JSON messages as the gRPC service.
type Responder struct {
	conn    *nats.Conn
	service OrderService
	subject string
	timeout time.Duration
	logger  *slog.Logger

	sub      *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewResponder(conn *nats.Conn, service OrderService, timeout time.Duration, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Responder{
		conn:    conn,
		service: service,
		subject: Subject(service.Asset()),
		timeout: timeout,
		logger:  logger.With(slog.String("component", "nats")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the asset's order subject.
func (r *Responder) Start() error {
	sub, err := r.conn.Subscribe(r.subject, r.handleMsg)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.subject, err)
	}
	r.sub = sub
	r.logger.Info("responder started", slog.String("subject", r.subject))
	return nil
}

// Stop unsubscribes and waits for in-flight requests.
func (r *Responder) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		if r.sub != nil {
			err = r.sub.Unsubscribe()
		}
		r.wg.Wait()
		r.cancel()
	})
	return err
}

func (r *Responder) handleMsg(msg *nats.Msg) {
	r.wg.Add(1)
	defer r.wg.Done()

	resp := r.Handle(r.ctx, msg.Data)

	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("failed to marshal response", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil && !errors.Is(err, nats.ErrMsgNoReply) {
		r.logger.Warn("failed to respond", slog.String("error", err.Error()))
	}
}

// Handle decodes one request payload, runs it and builds the reply.
func (r *Responder) Handle(ctx context.Context, data []byte) *rpc.OrderResponse {
	ctx, span := telemetry.Tracer.Start(ctx, "nats.handleOrder",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("messaging.destination", r.subject),
		),
	)
	defer span.End()

	telemetry.NATSMessagesReceived.WithLabelValues(r.subject).Inc()

	var in rpc.OrderRequest
	if err := json.Unmarshal(data, &in); err != nil {
		return r.reject(span, errors.New("invalid request format"))
	}
	if err := in.CheckAsset(r.service.Asset()); err != nil {
		return r.reject(span, err)
	}
	req, err := in.ToDomain()
	if err != nil {
		return r.reject(span, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results, err := r.service.Submit(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		r.logger.ErrorContext(ctx, "order failed", slog.String("error", err.Error()))
		return &rpc.OrderResponse{OK: false, Error: err.Error()}
	}

	for _, res := range results {
		r.logger.InfoContext(ctx, res.String())
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.Int("results_count", len(results)))
	return &rpc.OrderResponse{OK: true, Results: results}
}

func (r *Responder) reject(span trace.Span, err error) *rpc.OrderResponse {
	telemetry.OrdersRejectedTotal.WithLabelValues("nats").Inc()
	span.SetStatus(codes.Error, err.Error())
	return &rpc.OrderResponse{OK: false, Error: rpc.ErrorMessage(err)}
}

// Client sends orders to a responder.
type Client struct {
	conn    *nats.Conn
	asset   string
	subject string
}

func NewClient(conn *nats.Conn, asset string) *Client {
	return &Client{conn: conn, asset: asset, subject: Subject(asset)}
}

// PlaceOrder sends one request and waits for the reply or ctx.
func (c *Client) PlaceOrder(ctx context.Context, in *rpc.OrderRequest) (*rpc.OrderResponse, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	msg, err := c.conn.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to send order: %w", err)
	}

	var resp rpc.OrderResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// Submit adapts PlaceOrder to the local sequencer's signature.
func (c *Client) Submit(ctx context.Context, req domain.OrderRequest) ([]domain.OrderResult, error) {
	resp, err := c.PlaceOrder(ctx, &rpc.OrderRequest{
		AssetCode: c.asset,
		Side:      string(req.Side),
		Quantity:  req.Quantity,
		Price:     req.Price.String(),
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, errors.New(resp.Error)
	}
	return resp.Results, nil
}
