package grpc

import (
	"context"

	"github.com/dmitrijs2005/authmaker/internal/api"
	"github.com/dmitrijs2005/authmaker/internal/auth"
	"github.com/dmitrijs2005/authmaker/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const operatorKey ctxKey = "operator"

// OperatorFromContext returns the operator named by the caller's service
// token.
func OperatorFromContext(ctx context.Context) (string, bool) {
	op, ok := ctx.Value(operatorKey).(string)
	return op, ok
}

var publicMethods = map[string]struct{}{
	api.FullMethod(api.MethodPing): {},
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if _, ok := publicMethods[info.FullMethod]; ok {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	operator, err := auth.GetOperatorFromToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	s.logger.Debug(ctx, "authorized call", "method", info.FullMethod, "operator", operator)
	ctx = context.WithValue(ctx, operatorKey, operator)

	return handler(ctx, req)
}
