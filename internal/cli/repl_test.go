package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/matching"
	"github.com/nathanyu/matching-engine/internal/sequencer"
)

func newLocalREPL(t *testing.T) *REPL {
	t.Helper()
	seq := sequencer.NewSequencer(matching.NewEngine("QWERTY"), 16, nil)
	seq.Start()
	t.Cleanup(seq.Stop)
	return NewREPL("QWERTY", seq)
}

func TestREPL_Session(t *testing.T) {
	r := newLocalREPL(t)
	in := strings.NewReader("BID 100 9.90\nASK 40 9.5\nq\nASK 1 1\n")
	var out bytes.Buffer

	require.NoError(t, r.Run(context.Background(), in, &out))

	got := out.String()
	assert.Contains(t, got, "Enter your order command in the format: BID|ASK QTY PRICE")
	assert.Contains(t, got, "Received an order for asset QWERTY: BID 100 units for 9.9")
	assert.Contains(t, got, "Order QUEUED BID => 100 x 9.9\n")
	assert.Contains(t, got, "Order EXECUTED ASK => 40 x 9.9\n")
	assert.True(t, strings.HasSuffix(got, "Bye!\n"))
	// nothing after quit is processed
	assert.NotContains(t, got, "ASK 1 units")
}

func TestREPL_BadLinesDoNotStopTheLoop(t *testing.T) {
	r := newLocalREPL(t)
	in := strings.NewReader("BID 100\nHOLD 1 1\nBID x 1\nBID 1 1\n")
	var out bytes.Buffer

	require.NoError(t, r.Run(context.Background(), in, &out))

	got := out.String()
	assert.Contains(t, got, "Error: wrong number of arguments in your command")
	assert.Contains(t, got, "Error: invalid side")
	assert.Contains(t, got, "Error: quantity must be a positive integer")
	assert.Contains(t, got, "Order QUEUED BID => 1 x 1")
	// EOF ends the session politely
	assert.True(t, strings.HasSuffix(got, "Bye!\n"))
}

type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, domain.OrderRequest) ([]domain.OrderResult, error) {
	return nil, errors.New("engine unavailable")
}

func TestREPL_SubmitError(t *testing.T) {
	r := NewREPL("QWERTY", failingSubmitter{})
	var out bytes.Buffer

	require.NoError(t, r.Run(context.Background(), strings.NewReader("ASK 1 1\nquit\n"), &out))
	assert.Contains(t, out.String(), "Error: engine unavailable")
}

func TestREPL_ContextCanceled(t *testing.T) {
	r := newLocalREPL(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, strings.NewReader("BID 1 1\n"), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestREPL_CancelWhileWaitingForInput(t *testing.T) {
	r := newLocalREPL(t)
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx, pr, io.Discard)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run still blocked after ctx was canceled")
	}
}

func TestREPL_ReadsFromPipe(t *testing.T) {
	r := newLocalREPL(t)
	pr, pw := io.Pipe()

	var out bytes.Buffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(context.Background(), pr, &out)
	}()

	_, err := io.WriteString(pw, "ASK 3 2.5\n")
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not finish at end of input")
	}
	assert.Contains(t, out.String(), "Order QUEUED ASK => 3 x 2.5")
	assert.True(t, strings.HasSuffix(out.String(), "Bye!\n"))
}
