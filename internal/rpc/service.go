package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"

	"github.com/nathanyu/matching-engine/internal/domain"
)

const (
	ServiceName = "matching.OrderService"

	SendOrderMethod        = "/matching.OrderService/SendOrder"
	GetRestingOrdersMethod = "/matching.OrderService/GetRestingOrders"
)

// OrderRequest asks the engine to process one limit order. Side accepts
// BID/ASK and BUY/SELL; Price is a decimal string.
type OrderRequest struct {
	AssetCode string `json:"asset_code"`
	Side      string `json:"side"`
	Quantity  uint64 `json:"quantity"`
	Price     string `json:"price"`
}

// ErrInvalidOrderType is returned by ToDomain for an unrecognized side.
var ErrInvalidOrderType = errors.New("invalid order type")

// InvalidOrderTypeMessage is the OrderResponse.Error text sent for
// ErrInvalidOrderType.
const InvalidOrderTypeMessage = "Invalid order type."

// ErrorMessage renders err as OrderResponse.Error text.
func ErrorMessage(err error) string {
	if errors.Is(err, ErrInvalidOrderType) {
		return InvalidOrderTypeMessage
	}
	return err.Error()
}

// CheckAsset accepts an empty asset code or one equal to asset.
func (in *OrderRequest) CheckAsset(asset string) error {
	if in.AssetCode != "" && in.AssetCode != asset {
		return fmt.Errorf("%w: %q", domain.ErrUnknownAsset, in.AssetCode)
	}
	return nil
}

// ToDomain parses and validates the wire request.
func (in *OrderRequest) ToDomain() (domain.OrderRequest, error) {
	side, err := domain.ParseSide(in.Side)
	if err != nil {
		return domain.OrderRequest{}, ErrInvalidOrderType
	}
	price, err := domain.ParsePrice(in.Price)
	if err != nil {
		return domain.OrderRequest{}, err
	}
	req := domain.OrderRequest{Side: side, Quantity: in.Quantity, Price: price}
	if err := req.Validate(); err != nil {
		return domain.OrderRequest{}, err
	}
	return req, nil
}

// OrderResponse reports whether the order was accepted. Results is only set
// when OK is true.
type OrderResponse struct {
	OK      bool                 `json:"ok"`
	Error   string               `json:"error,omitempty"`
	Results []domain.OrderResult `json:"results,omitempty"`
}

type BookRequest struct {
	Side  string `json:"side"`
	Depth int    `json:"depth"`
}

type BookResponse struct {
	Orders []domain.Order      `json:"orders"`
	Levels []domain.PriceLevel `json:"levels"`
}

// OrderServiceServer is the server API for matching.OrderService.
type OrderServiceServer interface {
	SendOrder(context.Context, *OrderRequest) (*OrderResponse, error)
	GetRestingOrders(context.Context, *BookRequest) (*BookResponse, error)
}

// RegisterOrderServiceServer attaches srv to a gRPC server.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func sendOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(OrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).SendOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SendOrderMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).SendOrder(ctx, req.(*OrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getRestingOrdersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BookRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).GetRestingOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetRestingOrdersMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).GetRestingOrders(ctx, req.(*BookRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// OrderServiceDesc describes matching.OrderService. There is no generated
// code; messages are plain structs carried by the json codec.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendOrder",
			Handler:    sendOrderHandler,
		},
		{
			MethodName: "GetRestingOrders",
			Handler:    getRestingOrdersHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matching.proto",
}
