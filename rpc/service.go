package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "relayer.RelayerService"

// RelayerServiceServer is the upstream API of the daemon.
type RelayerServiceServer interface {
	SubmitSwap(context.Context, *SubmitSwapRequest) (*SubmitSwapResponse, error)
	GetSwapStatus(context.Context, *GetSwapStatusRequest) (*SwapStatus, error)
	RevealSecret(context.Context, *RevealSecretRequest) (*RevealSecretResponse, error)
	GetQuote(context.Context, *GetQuoteRequest) (*Quote, error)
	ListSwaps(context.Context, *ListSwapsRequest) (*ListSwapsResponse, error)
}

type RelayerServiceClient interface {
	SubmitSwap(ctx context.Context, in *SubmitSwapRequest, opts ...grpc.CallOption) (*SubmitSwapResponse, error)
	GetSwapStatus(ctx context.Context, in *GetSwapStatusRequest, opts ...grpc.CallOption) (*SwapStatus, error)
	RevealSecret(ctx context.Context, in *RevealSecretRequest, opts ...grpc.CallOption) (*RevealSecretResponse, error)
	GetQuote(ctx context.Context, in *GetQuoteRequest, opts ...grpc.CallOption) (*Quote, error)
	ListSwaps(ctx context.Context, in *ListSwapsRequest, opts ...grpc.CallOption) (*ListSwapsResponse, error)
}

var relayerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitSwap", RelayerServiceServer.SubmitSwap),
		unary("GetSwapStatus", RelayerServiceServer.GetSwapStatus),
		unary("RevealSecret", RelayerServiceServer.RevealSecret),
		unary("GetQuote", RelayerServiceServer.GetQuote),
		unary("ListSwaps", RelayerServiceServer.ListSwaps),
	},
	Metadata: "relayer.proto",
}

func RegisterRelayerServiceServer(s grpc.ServiceRegistrar, srv RelayerServiceServer) {
	s.RegisterService(&relayerServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(RelayerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RelayerServiceServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RelayerServiceServer), ctx, req.(*Req))
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}

type relayerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRelayerServiceClient(cc grpc.ClientConnInterface) RelayerServiceClient {
	return &relayerServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *relayerServiceClient) SubmitSwap(ctx context.Context, in *SubmitSwapRequest, opts ...grpc.CallOption) (*SubmitSwapResponse, error) {
	return invoke[SubmitSwapResponse](ctx, c.cc, "SubmitSwap", in, opts)
}

func (c *relayerServiceClient) GetSwapStatus(ctx context.Context, in *GetSwapStatusRequest, opts ...grpc.CallOption) (*SwapStatus, error) {
	return invoke[SwapStatus](ctx, c.cc, "GetSwapStatus", in, opts)
}

func (c *relayerServiceClient) RevealSecret(ctx context.Context, in *RevealSecretRequest, opts ...grpc.CallOption) (*RevealSecretResponse, error) {
	return invoke[RevealSecretResponse](ctx, c.cc, "RevealSecret", in, opts)
}

func (c *relayerServiceClient) GetQuote(ctx context.Context, in *GetQuoteRequest, opts ...grpc.CallOption) (*Quote, error) {
	return invoke[Quote](ctx, c.cc, "GetQuote", in, opts)
}

func (c *relayerServiceClient) ListSwaps(ctx context.Context, in *ListSwapsRequest, opts ...grpc.CallOption) (*ListSwapsResponse, error) {
	return invoke[ListSwapsResponse](ctx, c.cc, "ListSwaps", in, opts)
}
