package rpcapi

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// requestTimeout bounds every RPC call end-to-end (spec §6: 120s).
const requestTimeout = 120 * time.Second

// keepaliveInterval matches the TCP keepalive the original server
// configures (spec §6: 120s).
const keepaliveInterval = 120 * time.Second

// serviceName identifies this service on the wire; since there is no
// protoc-generated .proto-derived name to inherit, it's named after the
// package it lives in.
const serviceName = "vecembed.VecEmbed"

// serviceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit from a .proto file: one entry per unary method, each
// deserializing into the request type declared in messages.go via the
// codec registered in codec.go.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StoreVectorEmbedding",
			Handler:    storeVectorEmbeddingHandler,
		},
		{
			MethodName: "StoreVectorEmbeddings",
			Handler:    storeVectorEmbeddingsHandler,
		},
		{
			MethodName: "RetrieveDocuments",
			Handler:    retrieveDocumentsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vecembed.proto",
}

func storeVectorEmbeddingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(VectorEmbeddingRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	svc := srv.(*Service)
	if interceptor == nil {
		return svc.StoreVectorEmbedding(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: svc, FullMethod: "/" + serviceName + "/StoreVectorEmbedding"}
	handler := func(ctx context.Context, req any) (any, error) {
		return svc.StoreVectorEmbedding(ctx, req.(*VectorEmbeddingRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func storeVectorEmbeddingsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(StoreVectorEmbeddingsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	svc := srv.(*Service)
	if interceptor == nil {
		return svc.StoreVectorEmbeddings(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: svc, FullMethod: "/" + serviceName + "/StoreVectorEmbeddings"}
	handler := func(ctx context.Context, req any) (any, error) {
		return svc.StoreVectorEmbeddings(ctx, req.(*StoreVectorEmbeddingsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func retrieveDocumentsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RetrieveDocumentsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	svc := srv.(*Service)
	if interceptor == nil {
		return svc.RetrieveDocuments(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: svc, FullMethod: "/" + serviceName + "/RetrieveDocuments"}
	handler := func(ctx context.Context, req any) (any, error) {
		return svc.RetrieveDocuments(ctx, req.(*RetrieveDocumentsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// Server wraps a grpc.Server bound to a single Service.
type Server struct {
	grpcServer *grpc.Server
	port       int
}

// NewServer builds a grpc.Server with the keepalive and timeout policy
// from spec §6, registers svc, and binds it to port.
func NewServer(svc *Service, port int) *Server {
	timeoutInterceptor := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		return handler(ctx, req)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(timeoutInterceptor),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    keepaliveInterval,
			Timeout: keepaliveInterval,
		}),
	)
	grpcServer.RegisterService(&serviceDesc, svc)

	return &Server{grpcServer: grpcServer, port: port}
}

// Serve listens on s.port and blocks until the listener or server stops.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("rpcapi: listen on port %d: %w", s.port, err)
	}

	go func() {
		<-ctx.Done()
		s.grpcServer.GracefulStop()
	}()

	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("rpcapi: serve: %w", err)
	}
	return nil
}

// Stop immediately terminates all in-flight RPCs.
func (s *Server) Stop() { s.grpcServer.Stop() }
