package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// Client talks to a remote matching.OrderService.
type Client struct {
	conn  *grpc.ClientConn
	asset string
}

// NewClient creates a client for target. Connections are plaintext unless
// opts override the transport credentials.
func NewClient(target, asset string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithChainUnaryInterceptor(unaryClientTracing),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", target, err)
	}
	return &Client{conn: conn, asset: asset}, nil
}

func (c *Client) SendOrder(ctx context.Context, in *OrderRequest) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.conn.Invoke(ctx, SendOrderMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRestingOrders(ctx context.Context, in *BookRequest) (*BookResponse, error) {
	out := new(BookResponse)
	if err := c.conn.Invoke(ctx, GetRestingOrdersMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Submit sends req for the client's asset and unwraps the response, so a
// Client can stand in for a local sequencer.
func (c *Client) Submit(ctx context.Context, req domain.OrderRequest) ([]domain.OrderResult, error) {
	resp, err := c.SendOrder(ctx, &OrderRequest{
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

func (c *Client) Close() error {
	return c.conn.Close()
}
