package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/api/responses"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

const (
	actorIDHeader   = "X-Actor-Id"
	actorRoleHeader = "X-Actor-Role"
)

// Actor reads the caller identity from X-Actor-Id and X-Actor-Role.
// The system role is reserved for internal transitions and is refused here.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID := strings.TrimSpace(r.Header.Get(actorIDHeader))
			rawRole := strings.TrimSpace(r.Header.Get(actorRoleHeader))
			if rawID == "" || rawRole == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor headers required"))
				return
			}

			id, err := uuid.Parse(rawID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor id"))
				return
			}
			role, err := enums.ParseActorRole(rawRole)
			if err != nil || role == enums.ActorRoleSystem {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid actor role"))
				return
			}

			ctx := WithActor(r.Context(), id, role)
			if logg != nil {
				ctx = logg.WithActor(ctx, id.String(), role.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
