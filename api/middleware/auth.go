package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/receipt-generator/api/responses"
	pkgAuth "github.com/angelmondragon/receipt-generator/pkg/auth"
	"github.com/angelmondragon/receipt-generator/pkg/config"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

type ctxKey string

const ctxOperator ctxKey = "operator"

// Auth validates a helpdesk bearer token and seeds the request context with the operator.
func Auth(cfg config.AuthConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseOperatorToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxOperator, claims.Operator)
			if logg != nil {
				ctx = logg.WithField(ctx, "operator", claims.Operator)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext returns the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(ctxOperator).(string)
	return operator, ok && operator != ""
}
