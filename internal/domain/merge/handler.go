package merge

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician"))
	g.POST("/patients/merge/preview", h.PreviewMerge)
	g.POST("/patients/merge", h.ExecuteMerge)
	g.GET("/patients/:id/merge-history", h.MergeHistory)
}

type mergeRequest struct {
	SourcePatientID uuid.UUID `json:"source_patient_id"`
	TargetPatientID uuid.UUID `json:"target_patient_id"`
	ActingUserID    string    `json:"acting_user_id"`
}

func (h *Handler) PreviewMerge(c echo.Context) error {
	var req mergeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SourcePatientID == uuid.Nil || req.TargetPatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "source_patient_id and target_patient_id are required")
	}

	preview, err := h.svc.Preview(c.Request().Context(), req.SourcePatientID, req.TargetPatientID)
	if err != nil {
		return mapMergeError(err)
	}
	return c.JSON(http.StatusOK, preview)
}

func (h *Handler) ExecuteMerge(c echo.Context) error {
	var req mergeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SourcePatientID == uuid.Nil || req.TargetPatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "source_patient_id and target_patient_id are required")
	}

	actor := auth.UserIDFromContext(c.Request().Context())
	if actor == "" {
		actor = req.ActingUserID
	}
	if actor == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "acting user is required")
	}

	result, err := h.svc.Execute(c.Request().Context(), req.SourcePatientID, req.TargetPatientID, actor)
	if err != nil {
		return mapMergeError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) MergeHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return mapMergeError(err)
	}
	if entries == nil {
		entries = []*AuditEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func mapMergeError(err error) error {
	switch {
	case errors.Is(err, ErrSamePatient):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyMerging):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrStorage):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
