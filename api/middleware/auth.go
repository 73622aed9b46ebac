package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/internal/profiles"
	pkgAuth "github.com/simcheck/simcheck-backend/pkg/auth"
	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type profileEnsurer interface {
	Ensure(ctx context.Context, identity profiles.Identity) (*models.Profile, error)
}

// Auth validates the auth provider's bearer token, loads (or creates) the
// caller's profile and seeds the request context with its id and role.
func Auth(cfg config.JWTConfig, ensurer profileEnsurer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid subject"))
				return
			}

			profile, err := ensurer.Ensure(r.Context(), profiles.Identity{
				UserID:   userID,
				Email:    claims.Email,
				FullName: claims.FullName(),
			})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithUserID(r.Context(), profile.ID.String())
			ctx = WithRole(ctx, string(profile.Role))
			ctx = WithEmail(ctx, profile.Email)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    profile.ID.String(),
					"actor_role": string(profile.Role),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
