package assessment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/triage/triage/internal/domain/patient"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/domain/visit"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/triage/assess", h.Assess)
	api.POST("/triage/follow-up", h.FollowUp)
	api.GET("/triage/result/:visitID", h.Result)
}

func (h *Handler) Assess(c echo.Context) error {
	var req AssessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.Assess(c.Request().Context(), &req)
	if err != nil {
		var scoreErr *triage.ScoreError
		switch {
		case errors.Is(err, patient.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		case errors.As(err, &scoreErr):
			return echo.NewHTTPError(http.StatusBadGateway, scoreErr.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) FollowUp(c echo.Context) error {
	var req FollowUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.FollowUp(c.Request().Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, visit.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "visit not found")
		case errors.Is(err, visit.ErrCompleted):
			return echo.NewHTTPError(http.StatusConflict, "visit already completed")
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Result(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("visitID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	result, err := h.svc.Result(c.Request().Context(), visitID)
	if err != nil {
		if errors.Is(err, triage.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no triage result for visit")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
