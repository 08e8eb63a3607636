package logger

import (
	"context"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// grpcLevel 상태 코드와 메서드에 따라 로그 레벨을 결정합니다.
// 헬스 체크는 프로브가 자주 호출하므로 Debug로 기록합니다.
func grpcLevel(fullMethod string, code codes.Code) zapcore.Level {
	switch code {
	case codes.OK:
		if strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/") {
			return zapcore.DebugLevel
		}
		return zapcore.InfoLevel
	case codes.Canceled, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Unavailable, codes.NotFound, codes.InvalidArgument:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func grpcFields(fullMethod string, code codes.Code, duration time.Duration, err error) []zap.Field {
	fields := []zap.Field{
		zap.String("grpc.service", path.Dir(fullMethod)[1:]),
		zap.String("grpc.method", path.Base(fullMethod)),
		zap.String("grpc.code", code.String()),
		zap.Duration("grpc.duration", duration),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

// NewGrpcUnaryServerInterceptor는 단일 요청/응답 gRPC 메서드에 대한 로깅 인터셉터를 생성합니다.
func NewGrpcUnaryServerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		startTime := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		if ce := logger.Check(grpcLevel(info.FullMethod, code), "gRPC request"); ce != nil {
			ce.Write(grpcFields(info.FullMethod, code, time.Since(startTime), err)...)
		}
		return resp, err
	}
}

// NewGrpcStreamServerInterceptor는 스트리밍 gRPC 메서드(헬스 Watch 등)에 대한 로깅 인터셉터를 생성합니다.
func NewGrpcStreamServerInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		startTime := time.Now()
		err := handler(srv, ss)

		code := status.Code(err)
		if ce := logger.Check(grpcLevel(info.FullMethod, code), "gRPC stream closed"); ce != nil {
			ce.Write(grpcFields(info.FullMethod, code, time.Since(startTime), err)...)
		}
		return err
	}
}
