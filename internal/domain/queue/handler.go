package queue

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/visit"
	"github.com/triage/triage/internal/platform/auth"
)

// Refresher pushes a fresh topic snapshot to realtime listeners.
type Refresher interface {
	Refresh(topic string)
}

type Handler struct {
	mgr    *Manager
	visits visit.Repository
	rt     Refresher
	log    zerolog.Logger
}

func NewHandler(mgr *Manager, visits visit.Repository, rt Refresher, log zerolog.Logger) *Handler {
	return &Handler{mgr: mgr, visits: visits, rt: rt, log: log}
}

// RegisterRoutes mounts under the doctor-role group.
func (h *Handler) RegisterRoutes(doc *echo.Group) {
	doc.GET("/queue", h.Waiting)
	doc.POST("/queue/:visitID/call", h.CallPatient)
	doc.POST("/queue/:visitID/complete", h.Complete)
	doc.GET("/statistics", h.Statistics)
}

func (h *Handler) Waiting(c echo.Context) error {
	entries, err := h.mgr.Waiting(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"queue": entries,
		"count": len(entries),
	})
}

func (h *Handler) CallPatient(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("visitID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	doctorID, err := auth.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	ctx := c.Request().Context()

	e, err := h.mgr.CallPatient(ctx, visitID, doctorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not in queue")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.visits.MarkInProgress(ctx, visitID, doctorID); err != nil {
		h.log.Warn().Err(err).Str("visit_id", visitID.String()).Msg("visit transition after call")
	}
	h.rt.Refresh("queue")
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Complete(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("visitID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	ctx := c.Request().Context()

	if err := h.mgr.Complete(ctx, visitID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not in queue")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.visits.MarkCompleted(ctx, visitID); err != nil && !errors.Is(err, visit.ErrCompleted) {
		h.log.Warn().Err(err).Str("visit_id", visitID.String()).Msg("visit transition after complete")
	}
	h.rt.Refresh("queue")
	return c.JSON(http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) Statistics(c echo.Context) error {
	stats, err := h.mgr.Statistics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
