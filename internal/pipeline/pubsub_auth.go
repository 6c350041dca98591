package pipeline

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/idtoken"
)

// PubSubAuthMiddleware validates the OIDC bearer token Cloud Pub/Sub
// attaches to push requests: bypassed in local dev, otherwise checked
// against the configured audience and service-account email claim.
func PubSubAuthMiddleware(isLocalDev bool, audience, expectedEmail string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isLocalDev {
				next.ServeHTTP(w, r)
				return
			}
			if audience == "" || expectedEmail == "" {
				logger.Error().Msg("pubsub push: auth middleware configured without an audience or expected email, denying")
				http.Error(w, "server misconfigured", http.StatusInternalServerError)
				return
			}

			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, "missing or malformed authorization header", http.StatusUnauthorized)
				return
			}

			payload, err := idtoken.Validate(context.Background(), parts[1], audience)
			if err != nil {
				logger.Warn().Err(err).Msg("pubsub push: token validation failed")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			email, _ := payload.Claims["email"].(string)
			if email == "" || email != expectedEmail {
				logger.Warn().Str("token_email", email).Msg("pubsub push: email claim does not match expected service account")
				http.Error(w, "token does not match expected service account", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
