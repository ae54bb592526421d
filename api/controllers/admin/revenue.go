package admin

import (
	"net/http"

	"github.com/angelmondragon/orderflow/api/responses"
	"github.com/angelmondragon/orderflow/internal/revenue"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

// Revenue reports admin fee income bucketed by day, week and month.
func Revenue(svc revenue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
