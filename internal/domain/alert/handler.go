package alert

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/triage/triage/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts under the doctor-role group.
func (h *Handler) RegisterRoutes(doc *echo.Group) {
	doc.GET("/alerts", h.Active)
	doc.POST("/alerts/:id/acknowledge", h.Acknowledge)
}

func (h *Handler) Active(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	alerts, err := h.svc.Active(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if alerts == nil {
		alerts = []*Alert{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}
	doctorID, err := auth.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	a, err := h.svc.Acknowledge(c.Request().Context(), id, doctorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "alert not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}
