package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"willitrain/internal/climate"
	"willitrain/internal/core"
	"willitrain/internal/types"
)

// CurrentConditionsService returns a live snapshot for a coordinate.
type CurrentConditionsService interface {
	Current(ctx context.Context, lat, lon float64) (*types.CurrentConditions, error)
}

// ConditionsHandler serves live conditions and the static activity catalog.
type ConditionsHandler struct {
	service CurrentConditionsService
	logger  *slog.Logger
}

func NewConditionsHandler(svc CurrentConditionsService, logger *slog.Logger) *ConditionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConditionsHandler{service: svc, logger: logger}
}

// RegisterRoutes mounts the endpoints onto the /v1 router.
func (h *ConditionsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/conditions/current", h.HandleGetCurrent)
	r.Get("/activities", h.HandleListActivities)
}

// HandleGetCurrent handles GET /v1/conditions/current?lat=&lon=.
func (h *ConditionsHandler) HandleGetCurrent(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseCoordinates(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	cur, err := h.service.Current(r.Context(), lat, lon)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cur})
}

// HandleListActivities handles GET /v1/activities.
func (h *ConditionsHandler) HandleListActivities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: climate.Catalog()})
}
