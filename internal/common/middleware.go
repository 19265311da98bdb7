package common

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var publicPaths = map[string]bool{
	"/health": true,
}

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

// HTTPAuth rejects requests without a valid bearer token and injects the caller identity.
func HTTPAuth(verifier TokenVerifier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, nil, Unauthenticated("authorization required"))
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				WriteError(w, nil, err)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, Handle: claims.Handle})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request. Websocket upgrades are logged by the gateway.
func RequestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		})
	}
}

// authenticatedStream overrides Context so handlers see the injected identity.
type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}

func identityFromMetadata(ctx context.Context, verifier TokenVerifier) (Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Identity{}, Unauthenticated("missing metadata")
	}
	vals := md["authorization"]
	if len(vals) == 0 {
		return Identity{}, Unauthenticated("authorization required")
	}
	token, ok := BearerToken(vals[0])
	if !ok {
		return Identity{}, Unauthenticated("invalid auth header")
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID, Handle: claims.Handle}, nil
}

// StreamAuthInterceptor authenticates every stream before the handler runs.
func StreamAuthInterceptor(verifier TokenVerifier) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		id, err := identityFromMetadata(ss.Context(), verifier)
		if err != nil {
			return status.Error(GRPCCode(err), PublicMessage(err))
		}
		return handler(srv, &authenticatedStream{
			ServerStream: ss,
			ctx:          WithIdentity(ss.Context(), id),
		})
	}
}

func LoggingStreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger.Debug("stream started", "method", info.FullMethod)
		err := handler(srv, ss)
		if err != nil {
			logger.Warn("stream ended with error", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		} else {
			logger.Debug("stream completed", "method", info.FullMethod, "duration", time.Since(start))
		}
		return err
	}
}
