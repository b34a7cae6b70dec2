package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxResourceID lets a handler name the resource it created, for audit entries
// on routes without an :id parameter.
const CtxResourceID = "audit_resource_id"

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditRoutes maps "METHOD route-pattern" to the audited action.
var auditRoutes = map[string]auditRoute{
	"POST /api/v1/sims/:id/activate":   {domain.AuditActionActivate, "sim"},
	"POST /api/v1/sims/:id/deactivate": {domain.AuditActionDeactivate, "sim"},
	"POST /api/v1/sims/:id/block":      {domain.AuditActionBlock, "sim"},
	"POST /api/v1/sims/:id/unblock":    {domain.AuditActionUnblock, "sim"},
	"POST /api/v1/webhooks":            {domain.AuditActionRegisterWebhook, "webhook"},
	"DELETE /api/v1/webhooks/:id":      {domain.AuditActionDeleteWebhook, "webhook"},
	"POST /api/v1/webhooks/:id/pause":  {domain.AuditActionPauseWebhook, "webhook"},
	"POST /api/v1/webhooks/:id/resume": {domain.AuditActionResumeWebhook, "webhook"},
}

// AuditLog creates an audit middleware that records successful write operations.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}

		route, ok := auditRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		var ownerID *uuid.UUID
		if id, ok := OwnerID(c); ok {
			ownerID = &id
		}

		resourceID := c.Param("id")
		if resourceID == "" {
			resourceID = c.GetString(CtxResourceID)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"status":         status,
			"request_id":     c.GetString(CtxRequestID),
			"correlation_id": c.GetHeader(HeaderCorrelationID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			OwnerID:      ownerID,
			Actor:        Actor(c),
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}
