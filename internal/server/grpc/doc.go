// Package grpcserver exposes the standard grpc.health.v1 service so
// orchestrators can probe a flocheck process over gRPC.
//
// Example:
//
//	s := grpcserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
