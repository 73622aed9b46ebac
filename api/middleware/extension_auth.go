package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type extensionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.ExtensionToken, error)
}

type profileLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// ExtensionAuth resolves an extension bearer token. The owner's id and current
// role land in the context like a user session, with the token row alongside.
func ExtensionAuth(authenticator extensionAuthenticator, lookup profileLookup, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing extension token"))
				return
			}
			token, err := authenticator.Authenticate(r.Context(), raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			profile, err := lookup.FindByID(r.Context(), token.UserID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load token owner"))
				return
			}
			if profile == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token owner not found"))
				return
			}

			ctx := WithExtensionToken(r.Context(), token)
			ctx = WithUserID(ctx, token.UserID.String())
			ctx = WithRole(ctx, string(profile.Role))
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":      token.UserID.String(),
					"actor_role":   string(profile.Role),
					"token_prefix": token.TokenPrefix,
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
