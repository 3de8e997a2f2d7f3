package doctor

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/triage/triage/internal/domain/visit"
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
	doc.POST("/notes", h.SaveNote)
	doc.GET("/notes/:visitID", h.NotesByVisit)
	doc.POST("/devices", h.RegisterDevice)
}

type noteRequest struct {
	VisitID          uuid.UUID  `json:"visit_id"`
	Diagnosis        string     `json:"diagnosis"`
	TreatmentPlan    string     `json:"treatment_plan"`
	Prescriptions    []string   `json:"prescriptions"`
	FollowUpRequired bool       `json:"follow_up_required"`
	FollowUpDate     *time.Time `json:"follow_up_date"`
	Notes            string     `json:"notes"`
}

func (h *Handler) SaveNote(c echo.Context) error {
	doctorID, err := auth.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n := &Note{
		VisitID:          req.VisitID,
		DoctorID:         doctorID,
		Diagnosis:        req.Diagnosis,
		TreatmentPlan:    req.TreatmentPlan,
		Prescriptions:    req.Prescriptions,
		FollowUpRequired: req.FollowUpRequired,
		FollowUpDate:     req.FollowUpDate,
		Notes:            req.Notes,
	}
	if err := h.svc.SaveNote(c.Request().Context(), n); err != nil {
		if errors.Is(err, visit.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "visit not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) NotesByVisit(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("visitID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	notes, err := h.svc.NotesByVisit(c.Request().Context(), visitID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if notes == nil {
		notes = []*Note{}
	}
	return c.JSON(http.StatusOK, notes)
}

type deviceRequest struct {
	DeviceToken string `json:"device_token"`
}

func (h *Handler) RegisterDevice(c echo.Context) error {
	doctorID, err := auth.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req deviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RegisterDevice(c.Request().Context(), doctorID, req.DeviceToken); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "registered"})
}
