package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/sbp-gateway/internal/auth"
	"github.com/josh-kwaku/sbp-gateway/internal/handler"
	"github.com/josh-kwaku/sbp-gateway/internal/logging"
)

// Auth admits requests carrying a merchant token signed with secret. The
// merchant id lands in the context and on the request logger; matching it
// against the path is left to the handlers.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(appErr *handler.AppError, reason string) {
				logging.FromContext(r.Context()).Debug("admin request rejected", "reason", reason, "path", r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Bearer realm="sbp-gateway"`)
				handler.RespondAppError(w, appErr, nil)
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				reject(handler.ErrMissingToken, "no authorization header")
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				reject(handler.ErrInvalidToken, "not a bearer token")
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				reject(handler.ErrInvalidToken, err.Error())
				return
			}

			ctx := auth.ContextWithMerchantID(r.Context(), claims.MerchantID)
			ctx, _ = logging.With(ctx, "merchant_id", claims.MerchantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
