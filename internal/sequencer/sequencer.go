package sequencer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/matching"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

// ErrStopped is returned for commands submitted after Stop.
var ErrStopped = errors.New("sequencer stopped")

type command struct {
	run  func(*matching.Engine)
	done chan struct{}
}

// Sequencer is the single writer in front of a matching engine. Every
// command, reads included, runs on one goroutine in arrival order, so an
// AddOrder never interleaves with another book access.
//
// It stamps inbound sequence numbers on processed orders and outbound
// sequence numbers on executions.
type Sequencer struct {
	inboundSeq  atomic.Uint64
	outboundSeq atomic.Uint64
	engine      *matching.Engine
	logger      *slog.Logger

	commands chan *command

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewSequencer creates a new sequencer wired to the given matching engine.
func NewSequencer(engine *matching.Engine, bufferSize int, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		engine:   engine,
		logger:   logger.With(slog.String("component", "sequencer"), slog.String("asset", engine.Asset())),
		commands: make(chan *command, bufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the sequencer's application loop in a goroutine.
func (s *Sequencer) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

// Stop signals the loop to exit and waits for it. Commands already running
// complete; queued ones fail with ErrStopped.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	if s.started.Load() {
		<-s.stopped
	}
}

// Asset returns the asset of the underlying engine.
func (s *Sequencer) Asset() string {
	return s.engine.Asset()
}

func (s *Sequencer) run() {
	defer close(s.stopped)

	s.logger.Info("sequencer started")
	for {
		select {
		case cmd := <-s.commands:
			cmd.run(s.engine)
			close(cmd.done)
		case <-s.done:
			s.logger.Info("sequencer stopped",
				slog.Uint64("inbound_seq", s.inboundSeq.Load()),
				slog.Uint64("outbound_seq", s.outboundSeq.Load()),
			)
			return
		}
	}
}

// do hands fn to the loop and waits for it to finish. ctx only bounds the
// wait for a queue slot; once queued, the command is waited on until the
// loop runs it, and fn itself decides whether ctx has ended by then.
func (s *Sequencer) do(ctx context.Context, fn func(*matching.Engine)) error {
	cmd := &command{run: fn, done: make(chan struct{})}

	select {
	case <-s.done:
		return ErrStopped
	default:
	}

	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.done:
		return nil
	case <-s.stopped:
		select {
		case <-cmd.done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Submit sequences one order through the engine and returns its results.
// An order whose ctx has ended before the loop reaches it is dropped
// without touching the book, and ctx.Err() is returned.
func (s *Sequencer) Submit(ctx context.Context, req domain.OrderRequest) ([]domain.OrderResult, error) {
	var (
		results   []domain.OrderResult
		submitErr error
	)
	err := s.do(ctx, func(e *matching.Engine) {
		if submitErr = ctx.Err(); submitErr != nil {
			return
		}
		results, submitErr = s.process(e, req)
	})
	if err != nil {
		return nil, err
	}
	return results, submitErr
}

// RestingOrders returns one side of the book, best priority first.
func (s *Sequencer) RestingOrders(ctx context.Context, side domain.Side) ([]domain.Order, error) {
	var orders []domain.Order
	var readErr error
	err := s.do(ctx, func(e *matching.Engine) {
		if readErr = ctx.Err(); readErr == nil {
			orders = e.RestingOrders(side)
		}
	})
	if err != nil {
		return nil, err
	}
	return orders, readErr
}

// Levels returns aggregated price levels for one side, best first.
func (s *Sequencer) Levels(ctx context.Context, side domain.Side, depth int) ([]domain.PriceLevel, error) {
	var levels []domain.PriceLevel
	var readErr error
	err := s.do(ctx, func(e *matching.Engine) {
		if readErr = ctx.Err(); readErr == nil {
			levels = e.Levels(side, depth)
		}
	})
	if err != nil {
		return nil, err
	}
	return levels, readErr
}

// process runs on the loop goroutine.
func (s *Sequencer) process(e *matching.Engine, req domain.OrderRequest) ([]domain.OrderResult, error) {
	start := time.Now()
	results, err := e.Submit(req)
	if err != nil {
		return nil, err
	}
	telemetry.OrderProcessingDuration.Observe(time.Since(start).Seconds())

	seq := s.inboundSeq.Add(1)
	telemetry.SequencerInboundSeq.Set(float64(seq))
	telemetry.OrdersTotal.WithLabelValues(string(req.Side)).Inc()

	for _, r := range results {
		telemetry.ResultsTotal.WithLabelValues(string(r.Kind), string(r.Side)).Inc()
		if r.Kind == domain.ResultExecuted {
			outSeq := s.outboundSeq.Add(1)
			telemetry.SequencerOutboundSeq.Set(float64(outSeq))
			telemetry.ExecutedQuantityTotal.WithLabelValues(string(r.Side)).Add(float64(r.Quantity))
		}
	}

	telemetry.OrderBookDepth.WithLabelValues(string(domain.SideBid)).Set(float64(e.Depth(domain.SideBid)))
	telemetry.OrderBookDepth.WithLabelValues(string(domain.SideAsk)).Set(float64(e.Depth(domain.SideAsk)))

	s.logger.Debug("order processed",
		slog.Uint64("seq", seq),
		slog.String("side", string(req.Side)),
		slog.Uint64("quantity", req.Quantity),
		slog.String("price", req.Price.String()),
		slog.Int("results", len(results)),
	)
	return results, nil
}

// CurrentInboundSeq returns the number of orders processed so far.
func (s *Sequencer) CurrentInboundSeq() uint64 {
	return s.inboundSeq.Load()
}

// CurrentOutboundSeq returns the number of executions emitted so far.
func (s *Sequencer) CurrentOutboundSeq() uint64 {
	return s.outboundSeq.Load()
}
