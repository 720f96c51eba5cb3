package middleware

import (
	"net/http"
	"strings"

	"github.com/nvquang/storefront-core/api/responses"
	pkgauth "github.com/nvquang/storefront-core/pkg/auth"
	"github.com/nvquang/storefront-core/pkg/backend"
	"github.com/nvquang/storefront-core/pkg/config"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/logger"
)

// Auth validates the bearer token and seeds the request context with the user
// identity. The raw token is also kept on the context so outbound backend
// calls can pass it through unchanged.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAuthExpired, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAuthExpired, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeAuthExpired, err, "invalid token"))
				return
			}
			if claims.UserID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAuthExpired, "missing user id"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID)
			ctx = backend.WithToken(ctx, token)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
