package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nathanyu/matching-engine/internal/cli"
	"github.com/nathanyu/matching-engine/internal/matching"
	"github.com/nathanyu/matching-engine/internal/queue"
	"github.com/nathanyu/matching-engine/internal/rpc"
	"github.com/nathanyu/matching-engine/internal/sequencer"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

func main() {
	remote := flag.String("remote", "", "gRPC address of a running engine (host:port)")
	natsURL := flag.String("nats", "", "NATS URL of a running engine's responder")
	logLevel := flag.String("log-level", "error", "log level for the embedded engine")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-remote host:port | -nats url] ASSET\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "You need to inform the asset code to accept orders.")
		flag.Usage()
		os.Exit(2)
	}
	asset := flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	submitter, closer, err := newSubmitter(asset, *remote, *natsURL, *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	fmt.Printf("Starting matching engine for %s\n", asset)
	if err := cli.NewREPL(asset, submitter).Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// newSubmitter picks the engine the REPL talks to: a gRPC server, a NATS
// responder, or an engine embedded in this process.
func newSubmitter(asset, remote, natsURL, logLevel string) (cli.Submitter, io.Closer, error) {
	switch {
	case remote != "" && natsURL != "":
		return nil, nil, fmt.Errorf("use either -remote or -nats, not both")
	case remote != "":
		client, err := rpc.NewClient(remote, asset)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case natsURL != "":
		conn, err := queue.Connect(natsURL, "matching-engine-cli", nil)
		if err != nil {
			return nil, nil, err
		}
		return queue.NewClient(conn, asset), closeFunc(func() error {
			conn.Close()
			return nil
		}), nil
	}

	logger, err := telemetry.NewLogger("matching-engine-cli", logLevel, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	seq := sequencer.NewSequencer(matching.NewEngine(asset), 0, logger)
	seq.Start()
	return seq, closeFunc(func() error {
		seq.Stop()
		return nil
	}), nil
}
