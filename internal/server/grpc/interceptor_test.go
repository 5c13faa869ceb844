package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	s := newTestServer(pinger{})
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := s.loggingInterceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return req.(string) + "-ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req-ok", resp)
}

func TestLoggingInterceptor_ReturnsHandlerError(t *testing.T) {
	s := newTestServer(pinger{})
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Service/Method"}
	want := status.Error(codes.NotFound, "nope")

	_, err := s.loggingInterceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
		return nil, want
	})
	assert.True(t, errors.Is(err, want))
	assert.Equal(t, codes.NotFound, status.Code(err))
}
