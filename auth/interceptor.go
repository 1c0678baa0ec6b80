package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"orchestra/contract"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Map of gRPC methods that do not require JWT authentication.
var publicMethods = map[string]struct{}{
	grpc_health_v1.Health_Check_FullMethodName: {},
}

type contextKey string

const (
	CallerKey     contextKey = "caller"
	CredentialKey contextKey = "credential"
)

// Credential extracts the raw token of an HTTP request:
// the standard "Bearer <token>" header, or the token query parameter
// for clients unable to set headers on a WebSocket upgrade.
func Credential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func CallerFromContext(ctx context.Context) (meeting.Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(meeting.Caller)
	return caller, ok
}

func CredentialFromContext(ctx context.Context) (string, bool) {
	credential, ok := ctx.Value(CredentialKey).(string)
	return credential, ok && credential != ""
}

// Middleware rejects unauthenticated HTTP requests with 401 and injects
// the caller and its raw credential into the request context.
func Middleware(authenticator contract.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := Credential(r)
			caller, err := authenticator.Authenticate(r.Context(), credential)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"code":    errors.Code(err),
					"message": err.Error(),
				})
				return
			}
			ctx := context.WithValue(r.Context(), CallerKey, caller)
			ctx = context.WithValue(ctx, CredentialKey, credential)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UnaryAuthInterceptor handles JWT validation for incoming gRPC calls.
// Health checks stay public so probes work without a token.
func UnaryAuthInterceptor(authenticator contract.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := publicMethods[info.FullMethod]; ok {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "metadata is missing")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization token is missing")
		}
		credential := strings.TrimPrefix(values[0], "Bearer ")
		caller, err := authenticator.Authenticate(ctx, credential)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		ctx = context.WithValue(ctx, CallerKey, caller)
		ctx = context.WithValue(ctx, CredentialKey, credential)
		return handler(ctx, req)
	}
}
