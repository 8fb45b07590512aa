package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"willitrain/internal/core"
	"willitrain/internal/queue"
	"willitrain/internal/types"
)

const maxSavedQueryPage = 100

// SavedQueryStore is satisfied by db.SavedQueryRepository and db.MemoryStore.
type SavedQueryStore interface {
	List(ctx context.Context, limit int) ([]*types.SavedQuery, error)
	Create(ctx context.Context, q *types.SavedQuery) error
	GetByID(ctx context.Context, id string) (*types.SavedQuery, error)
	Delete(ctx context.Context, id string) error
}

// PrefetchEnqueuer schedules a cache warm for a new saved query.
type PrefetchEnqueuer interface {
	EnqueuePrefetch(ctx context.Context, q *types.SavedQuery, reason string) error
}

// SavedQueryHandler manages the saved query list.
type SavedQueryHandler struct {
	store     SavedQueryStore
	prefetch  PrefetchEnqueuer
	validator *core.Validator
	logger    *slog.Logger
}

// NewSavedQueryHandler builds the handler. prefetch may be nil, in which
// case new queries are not warmed ahead of time.
func NewSavedQueryHandler(
	store SavedQueryStore,
	prefetch PrefetchEnqueuer,
	v *core.Validator,
	logger *slog.Logger,
) *SavedQueryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SavedQueryHandler{
		store:     store,
		prefetch:  prefetch,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the saved query endpoints onto the /v1 router.
func (h *SavedQueryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/saved-queries", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Delete("/{id}", h.HandleDelete)
	})
}

// HandleList handles GET /v1/saved-queries?limit=. Newest first.
func (h *SavedQueryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := maxSavedQueryPage
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxSavedQueryPage {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidBody,
				"limit must be an integer between 1 and 100",
				nil,
			))
			return
		}
		limit = n
	}

	queries, err := h.store.List(r.Context(), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: queries})
}

// HandleCreate handles POST /v1/saved-queries.
func (h *SavedQueryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSavedQueryRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	q := &types.SavedQuery{
		ID:          uuid.New().String(),
		Location:    req.Location,
		Date:        req.Date,
		Time:        req.Time,
		Lat:         req.Lat,
		Lon:         req.Lon,
		Conditions:  req.Conditions,
		Temperature: req.Temperature,
		WeatherIcon: req.WeatherIcon,
	}
	if err := h.store.Create(r.Context(), q); err != nil {
		core.Error(w, r, err)
		return
	}

	logger := types.LoggerFromContext(r.Context(), h.logger)
	if h.prefetch != nil {
		if err := h.prefetch.EnqueuePrefetch(r.Context(), q, queue.ReasonSavedQueryCreated); err != nil {
			logger.WarnContext(r.Context(), "failed to enqueue prefetch", "query_id", q.ID, "error", err)
		}
	}

	logger.InfoContext(r.Context(), "saved query created", "query_id", q.ID)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: q})
}

// HandleGet handles GET /v1/saved-queries/{id}.
func (h *SavedQueryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundSavedQuery, "saved query not found", nil))
		return
	}

	q, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: q})
}

// HandleDelete handles DELETE /v1/saved-queries/{id}.
func (h *SavedQueryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundSavedQuery, "saved query not found", nil))
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	core.NoContent(w)
}
