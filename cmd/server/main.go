package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/nathanyu/matching-engine/internal/config"
	"github.com/nathanyu/matching-engine/internal/handler"
	"github.com/nathanyu/matching-engine/internal/matching"
	"github.com/nathanyu/matching-engine/internal/middleware"
	"github.com/nathanyu/matching-engine/internal/queue"
	"github.com/nathanyu/matching-engine/internal/rpc"
	"github.com/nathanyu/matching-engine/internal/sequencer"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

var errMissingAsset = errors.New("you need to inform the asset code to accept orders")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	envPath := flag.String("env", "", "path to a .env file (default ./.env)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-env file] ASSET\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*envPath)
	if err != nil {
		return err
	}
	if flag.NArg() > 0 {
		cfg.Asset = flag.Arg(0)
	}
	if cfg.Asset == "" {
		return errMissingAsset
	}

	logger, err := telemetry.NewLogger(cfg.Telemetry.ServiceName, cfg.Telemetry.LogLevel, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx := context.Background()
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("starting matching engine", slog.String("asset", cfg.Asset))

	// --- Core components ---

	engine := matching.NewEngine(cfg.Asset)
	seq := sequencer.NewSequencer(engine, cfg.QueueSize, logger)
	seq.Start()

	// --- HTTP Server ---

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Tracing(), middleware.PrometheusMiddleware())
	handler.NewHandler(seq, cfg.RequestTimeout, logger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: r,
	}

	// --- Metrics Server ---

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.MetricsPort),
		Handler: metricsMux,
	}

	// --- gRPC Server ---

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		seq.Stop()
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr, err)
	}
	grpcSrv := rpc.NewGRPCServer(rpc.NewServer(seq, logger))

	// --- NATS responder (optional) ---

	var (
		natsConn  *nats.Conn
		responder *queue.Responder
	)
	if cfg.NATSURL != "" {
		natsConn, err = queue.Connect(cfg.NATSURL, cfg.Telemetry.ServiceName, logger)
		if err != nil {
			seq.Stop()
			return err
		}
		responder = queue.NewResponder(natsConn, seq, cfg.RequestTimeout, logger)
		if err := responder.Start(); err != nil {
			natsConn.Close()
			seq.Stop()
			return err
		}
	}

	// Start servers
	errCh := make(chan error, 3)
	go func() {
		logger.Info("metrics server listening", slog.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("gRPC server listening", slog.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// --- Graceful shutdown ---

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", slog.String("error", runErr.Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if responder != nil {
		if err := responder.Stop(); err != nil {
			logger.Warn("NATS responder stop error", slog.String("error", err.Error()))
		}
		if err := natsConn.Drain(); err != nil {
			logger.Warn("NATS drain error", slog.String("error", err.Error()))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.String("error", err.Error()))
	}
	grpcSrv.GracefulStop()
	seq.Stop()
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracer(ctx); err != nil {
		logger.Warn("tracer shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("matching engine stopped",
		slog.Uint64("inbound_seq", seq.CurrentInboundSeq()),
		slog.Uint64("outbound_seq", seq.CurrentOutboundSeq()),
	)
	return runErr
}
