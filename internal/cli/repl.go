package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/nathanyu/matching-engine/internal/command"
	"github.com/nathanyu/matching-engine/internal/domain"
)

const prompt = "Enter your order command in the format: BID|ASK QTY PRICE"

// Submitter runs one order and returns its results. The local sequencer,
// the gRPC client and the NATS client all satisfy it.
type Submitter interface {
	Submit(ctx context.Context, req domain.OrderRequest) ([]domain.OrderResult, error)
}

// REPL reads order commands line by line and prints every result.
type REPL struct {
	asset     string
	submitter Submitter
}

func NewREPL(asset string, submitter Submitter) *REPL {
	return &REPL{asset: asset, submitter: submitter}
}

// Run loops until quit, end of input or ctx is done. Bad lines are reported
// and the loop continues.
func (r *REPL) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines, readErr := readLines(readCtx, in)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintln(out, prompt)

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out, "Bye!")
				return <-readErr
			}
			line = l
		}

		cmd, err := command.Parse(line)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if cmd.Quit {
			fmt.Fprintln(out, "Bye!")
			return nil
		}

		order := cmd.Order
		fmt.Fprintf(out, "Received an order for asset %s: %s %d units for %s\n",
			r.asset, order.Side, order.Quantity, order.Price.String())

		results, err := r.submitter.Submit(ctx, order)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		for _, res := range results {
			fmt.Fprintln(out, res.String())
		}
	}
}

// readLines scans in on its own goroutine so a blocked read never holds up
// cancellation. lines is closed at end of input; the scan error (nil at EOF)
// is then sent on the second channel. The goroutine exits once ctx is done
// and its pending read returns.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		errCh <- scanner.Err()
	}()

	return lines, errCh
}
