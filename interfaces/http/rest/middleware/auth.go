package middleware

import (
	"errors"
	"net/http"
	"strings"

	"clickchain/pkg/auth"
	"clickchain/pkg/common"

	"go.uber.org/zap"
)

// Authenticate rejects requests without a valid bearer token and stores the
// token's claims on the request context
func Authenticate(validator *auth.JWTValidator, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if token := r.URL.Query().Get("token"); header == "" && token != "" {
				// Browsers cannot set headers on websocket upgrades.
				header = "Bearer " + token
			}
			if header == "" {
				respondUnauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondUnauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				logger.Debug("Rejected token", zap.Error(err))
				message := "Invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					message = "Token has expired"
				}
				respondUnauthorized(w, message)
				return
			}

			ctx := auth.WithClaims(r.Context(), claims)
			ctx = common.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="clickchain"`)
	common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, message)
}
