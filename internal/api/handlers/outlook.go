package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"willitrain/internal/climate"
	"willitrain/internal/core"
	"willitrain/internal/outlook"
	"willitrain/internal/types"
)

// OutlookService evaluates one location and day.
type OutlookService interface {
	Evaluate(ctx context.Context, req outlook.Request) (*outlook.Result, error)
}

// OutlookHandler serves the outlook and its CSV export.
type OutlookHandler struct {
	service   OutlookService
	validator *core.Validator
	logger    *slog.Logger
}

func NewOutlookHandler(svc OutlookService, v *core.Validator, logger *slog.Logger) *OutlookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutlookHandler{
		service:   svc,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the outlook endpoints onto the /v1 router.
func (h *OutlookHandler) RegisterRoutes(r chi.Router) {
	r.Get("/outlook", h.HandleGetOutlook)
	r.Get("/outlook/export.csv", h.HandleExportCSV)
}

// HandleGetOutlook handles GET /v1/outlook?lat=&lon=&date=&name=.
func (h *OutlookHandler) HandleGetOutlook(w http.ResponseWriter, r *http.Request) {
	res, ok := h.evaluate(w, r)
	if !ok {
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=300")

	resp := core.APIResponse{Data: res}
	if len(res.Warnings) > 0 {
		resp.Meta = &core.ResponseMeta{Warnings: res.Warnings}
	}
	core.JSON(w, r, http.StatusOK, resp)
}

// HandleExportCSV handles GET /v1/outlook/export.csv?lat=&lon=&date=.
func (h *OutlookHandler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	res, ok := h.evaluate(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := climate.WriteCSV(&buf, res.Sample, res.Outlook); err != nil {
		h.logger.ErrorContext(r.Context(), "csv export failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build export", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, climate.ExportFilename(res.Date)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *OutlookHandler) evaluate(w http.ResponseWriter, r *http.Request) (*outlook.Result, bool) {
	lat, lon, err := parseCoordinates(r)
	if err != nil {
		core.Error(w, r, err)
		return nil, false
	}

	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse(types.DateLayout, date); err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidDate,
				"date must be a valid YYYY-MM-DD date",
				nil,
			))
			return nil, false
		}
	}

	res, err := h.service.Evaluate(r.Context(), outlook.Request{
		Lat:  lat,
		Lon:  lon,
		Date: date,
		Name: r.URL.Query().Get("name"),
	})
	if err != nil {
		core.Error(w, r, err)
		return nil, false
	}
	return res, true
}
