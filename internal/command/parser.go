package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// ErrWrongArgs is returned when a line is not SIDE QTY PRICE.
var ErrWrongArgs = errors.New("wrong number of arguments in your command")

// Command is one parsed input line: either a quit request or an order.
type Command struct {
	Quit  bool
	Order domain.OrderRequest
}

// Parse reads "SIDE QTY PRICE" (for example "BID 100 9.90"). A line that is
// not three tokens long and starts with q, quit or exit (any case) asks to
// leave; a three-token line is always read as an order.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)

	if len(fields) != 3 {
		if len(fields) > 0 && isQuit(fields[0]) {
			return Command{Quit: true}, nil
		}
		return Command{}, ErrWrongArgs
	}

	side, err := domain.ParseSide(fields[0])
	if err != nil {
		return Command{}, err
	}

	qty, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil || qty == 0 {
		return Command{}, fmt.Errorf("%w: %q", domain.ErrInvalidQuantity, fields[1])
	}

	price, err := domain.ParsePrice(fields[2])
	if err != nil {
		return Command{}, err
	}

	return Command{
		Order: domain.OrderRequest{Side: side, Quantity: qty, Price: price},
	}, nil
}

func isQuit(word string) bool {
	switch strings.ToLower(word) {
	case "q", "quit", "exit":
		return true
	}
	return false
}
