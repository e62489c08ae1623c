package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tracklet/goals-service/internal/auth"
	"github.com/tracklet/goals-service/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=$GOFILE -destination=auth_mocks_test.go -package=middleware_test

type credentialsChecker interface {
	GetCredentials(ctx context.Context, token string) (auth.Credentials, error)
}

type CredentialsMiddlewareHandler struct {
	checker      credentialsChecker
	allowedPaths map[string]bool
}

func NewCredentialsMiddlewareHandler(checker credentialsChecker) *CredentialsMiddlewareHandler {
	return &CredentialsMiddlewareHandler{
		checker: checker,
		allowedPaths: map[string]bool{
			"/":                  true,
			"/version":           true,
			"/goals/healthcheck": true,
		},
	}
}

// CredentialsCheck resolves the Authorization bearer token into caller
// credentials via the auth service and stores them in the request
// context. Handlers downstream read them with auth.CredentialsFromCtx.
func (h *CredentialsMiddlewareHandler) CredentialsCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.credentials")
			defer span.End()

			if r.Method == http.MethodOptions {
				w.Header().Add("Allow", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.WriteHeader(http.StatusOK)
				span.SetStatus(codes.Ok, "options-ok")
				return
			}

			if h.allowedPaths[r.URL.Path] {
				span.SetStatus(codes.Ok, "ok")
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

			creds, err := h.checker.GetCredentials(ctx, token)
			switch {
			case err == nil:
				// credentials resolved, proceed below
			case errors.Is(err, auth.ErrNoToken):
				log.Tracef("[missing token] [credentials middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "missing-auth-token")
				return
			case errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrTokenFormat):
				log.Tracef("[invalid token] [credentials middleware] forbidden => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusForbidden)
				span.SetStatus(codes.Error, "invalid-auth-token")
				return
			default:
				log.Errorf("[failed credentials check] => %s: %s", r.URL.Path, err)
				http.Error(w, "no can do", http.StatusInternalServerError)
				span.SetStatus(codes.Error, "check-credentials-err")
				span.RecordError(err)
				return
			}

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r.WithContext(auth.CtxWithCredentials(ctx, creds)))
		})
	}
}
