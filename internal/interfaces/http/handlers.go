package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// SetTemplateStatusRequest is the body of POST /api/templates/:id/status
type SetTemplateStatusRequest struct {
	Status entity.TemplateStatus `json:"status" binding:"required,oneof=DRAFT ACTIVE ARCHIVED"`
}

// CreateProcessRequest is the body of POST /api/processes
type CreateProcessRequest struct {
	TemplateID int64                  `json:"template_id" binding:"required,gt=0"`
	FormData   map[string]interface{} `json:"form_data"`
}

// StepActionRequest is the body of POST /api/processes/:id/steps/:stepId/actions
type StepActionRequest struct {
	Action   string  `json:"action" binding:"required"`
	Comments *string `json:"comments"`
}

// ListProcessesRequest represents query parameters for listing processes
type ListProcessesRequest struct {
	TemplateID int64  `form:"template_id"`
	Status     string `form:"status"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// ListAuditRequest represents query parameters for listing audit entries
type ListAuditRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var def entity.TemplateDefinition
	if !h.bindJSON(c, &def) {
		return
	}

	tmpl, err := h.services.Templates.CreateTemplate(c.Request.Context(), actorFrom(c), def)
	if err != nil {
		h.respondError(c, "Failed to create template", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: tmpl})
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	status := entity.TemplateStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid status filter"})
		return
	}

	templates, err := h.services.Templates.ListTemplates(c.Request.Context(), status)
	if err != nil {
		h.respondError(c, "Failed to list templates", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: templates})
}

// GetTemplate handles GET /api/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	tmpl, err := h.services.Templates.GetTemplate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get template", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tmpl})
}

// ReplaceTemplate handles PUT /api/templates/:id
func (h *Handlers) ReplaceTemplate(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	var def entity.TemplateDefinition
	if !h.bindJSON(c, &def) {
		return
	}

	tmpl, err := h.services.Templates.ReplaceTemplateDefinition(c.Request.Context(), actorFrom(c), id, def)
	if err != nil {
		h.respondError(c, "Failed to replace template", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tmpl})
}

// SetTemplateStatus handles POST /api/templates/:id/status
func (h *Handlers) SetTemplateStatus(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	var req SetTemplateStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}

	tmpl, err := h.services.Templates.SetTemplateStatus(c.Request.Context(), actorFrom(c), id, req.Status)
	if err != nil {
		h.respondError(c, "Failed to set template status", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tmpl})
}

// DeleteTemplate handles DELETE /api/templates/:id
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	if err := h.services.Templates.DeleteTemplate(c.Request.Context(), actorFrom(c), id); err != nil {
		h.respondError(c, "Failed to delete template", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateProcess handles POST /api/processes
func (h *Handlers) CreateProcess(c *gin.Context) {
	var req CreateProcessRequest
	if !h.bindJSON(c, &req) {
		return
	}

	proc, err := h.services.Processes.CreateProcess(c.Request.Context(), actorFrom(c), req.TemplateID, req.FormData)
	if err != nil {
		h.respondError(c, "Failed to create process", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: proc})
}

// ListProcesses handles GET /api/processes
func (h *Handlers) ListProcesses(c *gin.Context) {
	var req ListProcessesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	procs, err := h.services.Processes.ListProcesses(c.Request.Context(), actorFrom(c), port.ProcessFilter{
		TemplateID: req.TemplateID,
		Status:     entity.ProcessStatus(req.Status),
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		h.respondError(c, "Failed to list processes", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: procs})
}

// GetProcess handles GET /api/processes/:id
func (h *Handlers) GetProcess(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	proc, err := h.services.Processes.GetProcess(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, "Failed to get process", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: proc})
}

// ActStep handles POST /api/processes/:id/steps/:stepId/actions
func (h *Handlers) ActStep(c *gin.Context) {
	processID, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	stepID, ok := h.paramID(c, "stepId")
	if !ok {
		return
	}
	var req StepActionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	action, err := workflow.ParseAction(req.Action)
	if err != nil {
		h.respondError(c, "Invalid step action", err)
		return
	}

	proc, err := h.services.Processes.ActStep(c.Request.Context(), actorFrom(c), processID, stepID, action, req.Comments)
	if err != nil {
		h.respondError(c, "Failed to act on step", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: proc})
}

// ListProcessAudit handles GET /api/processes/:id/audit
func (h *Handlers) ListProcessAudit(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	entries, err := h.services.Audit.ListByProcess(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, "Failed to list process audit", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ListAudit handles GET /api/audit
func (h *Handlers) ListAudit(c *gin.Context) {
	var req ListAuditRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	entries, err := h.services.Audit.List(c.Request.Context(), actorFrom(c), req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, "Failed to list audit", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))

	notifications, err := h.services.Notifications.ListForUser(c.Request.Context(), actorFrom(c), unreadOnly)
	if err != nil {
		h.respondError(c, "Failed to list notifications", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: notifications})
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	n, err := h.services.Notifications.MarkRead(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.respondError(c, "Failed to mark notification read", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: n})
}

func (h *Handlers) paramID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid " + name,
		})
		return 0, false
	}
	return id, true
}

func (h *Handlers) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

// respondError maps an application error to a status code. Internal errors
// are logged and hidden from the caller.
func (h *Handlers) respondError(c *gin.Context, msg string, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperror.KindNotFound:
		status = http.StatusNotFound
	case apperror.KindForbidden:
		status = http.StatusForbidden
	case apperror.KindValidation:
		status = http.StatusBadRequest
		if len(appErr.Fields) > 0 {
			status = http.StatusUnprocessableEntity
		}
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	c.JSON(status, Response{
		Success: false,
		Error:   appErr.Message,
		Fields:  appErr.Fields,
	})
}
