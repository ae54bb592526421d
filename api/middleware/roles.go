package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/angelmondragon/orderflow/api/responses"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

// RequireRole rejects actors whose role is not in allowed with 403. It must run after Actor.
func RequireRole(logg *logger.Logger, allowed ...enums.ActorRole) func(http.Handler) http.Handler {
	names := make([]string, 0, len(allowed))
	for _, role := range allowed {
		names = append(names, role.String())
	}
	msg := "requires role " + strings.Join(names, " or ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(allowed, RoleFromContext(r.Context())) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, msg))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
