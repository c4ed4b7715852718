package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/rules"
	"github.com/jakechorley/shift-roster/pkg/core/services"
	"github.com/jakechorley/shift-roster/pkg/db"
	"github.com/jakechorley/shift-roster/pkg/export"
)

// OptionsFunc builds the generation options for a run over [from, to].
// Either bound is zero when a rerun inherits its dates.
type OptionsFunc func(from, to time.Time) (services.RosterOptions, error)

// Handler serves the run trigger, manual edits and exports
type Handler struct {
	DB       db.Database
	Registry *rules.Registry
	Options  OptionsFunc
	Logger   *zap.Logger
}

// NewRouter registers every route on a new gin engine
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1/schedules")
	{
		v1.POST("/generate", h.Generate)
		v1.POST("/:id/slots/:slotId/lock", h.Lock)
		v1.GET("/:id/export", h.Export)
	}
	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Logger.Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Generate runs one schedule generation
func (h *Handler) Generate(c *gin.Context) {
	var body generateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	req, err := body.toService()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	opts, err := h.Options(req.StartDate, req.EndDate)
	if err != nil {
		h.fail(c, fmt.Errorf("failed to build roster options: %w", err))
		return
	}

	res, err := services.GenerateRoster(c.Request.Context(), h.DB, h.Registry, opts, h.Logger, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newScheduleResponse(res))
}

// Lock records a manual, locked assignment on one slot
func (h *Handler) Lock(c *gin.Context) {
	var body lockRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	a, err := services.LockAssignment(c.Request.Context(), h.DB, h.Logger, services.LockAssignmentRequest{
		ScheduleID: c.Param("id"),
		SlotID:     c.Param("slotId"),
		EmployeeID: body.EmployeeID,
		TeamID:     body.TeamID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newAssignmentResponse(*a))
}

// Export downloads a stored schedule as xlsx or ics
func (h *Handler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatXLSX)))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	scheduleID := c.Param("id")
	var buf bytes.Buffer
	if err := services.ExportSchedule(c.Request.Context(), h.DB, h.Logger, scheduleID, format, &buf); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="roster-%s.%s"`, scheduleID, format))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// fail maps a service error to a status code. Internal errors are logged
// and not echoed to the caller.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, errorResponse{Error: "internal error"})
		return
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrScheduleNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoShiftTemplates), errors.Is(err, services.ErrNoActiveEmployees):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
