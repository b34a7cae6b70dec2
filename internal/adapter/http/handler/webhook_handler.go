package handler

import (
	"sim-provisioning-notifier/internal/adapter/http/dto"
	"sim-provisioning-notifier/internal/adapter/http/middleware"
	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/core/ports"
	"sim-provisioning-notifier/pkg/apperror"
	"sim-provisioning-notifier/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler exposes the caller's webhook subscriptions.
type WebhookHandler struct {
	registry ports.WebhookRegistry
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(registry ports.WebhookRegistry) *WebhookHandler {
	return &WebhookHandler{registry: registry}
}

// Register creates a subscription. The secret appears only in this response.
func (h *WebhookHandler) Register(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RegisterWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	events := make([]domain.EventType, len(req.Events))
	for i, e := range req.Events {
		events[i] = domain.EventType(e)
	}

	result, err := h.registry.Register(c.Request.Context(), ports.RegisterWebhookRequest{
		OwnerID: ownerID,
		URL:     req.URL,
		Events:  events,
		Secret:  req.Secret,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, result.Webhook.ID.String())
	response.Created(c, dto.RegisteredWebhookResponse{
		WebhookResponse: dto.NewWebhookResponse(result.Webhook),
		Secret:          result.Secret,
	})
}

// List returns all of the caller's webhooks.
func (h *WebhookHandler) List(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	hooks, err := h.registry.List(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WebhookResponse, len(hooks))
	for i := range hooks {
		items[i] = dto.NewWebhookResponse(&hooks[i])
	}
	response.OK(c, dto.NewListResponse(items))
}

// Get returns one webhook.
func (h *WebhookHandler) Get(c *gin.Context) {
	ownerID, id, ok := h.ids(c)
	if !ok {
		return
	}

	hook, err := h.registry.Get(c.Request.Context(), id, ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWebhookResponse(hook))
}

// Delete removes a webhook.
func (h *WebhookHandler) Delete(c *gin.Context) {
	ownerID, id, ok := h.ids(c)
	if !ok {
		return
	}

	if err := h.registry.Delete(c.Request.Context(), id, ownerID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Pause stops fan-out to a webhook.
func (h *WebhookHandler) Pause(c *gin.Context) {
	h.setStatus(c, domain.WebhookStatusPaused)
}

// Resume re-enables a paused or failed webhook and resets its failure count.
func (h *WebhookHandler) Resume(c *gin.Context) {
	h.setStatus(c, domain.WebhookStatusActive)
}

func (h *WebhookHandler) setStatus(c *gin.Context, status domain.WebhookStatus) {
	ownerID, id, ok := h.ids(c)
	if !ok {
		return
	}

	hook, err := h.registry.SetStatus(c.Request.Context(), id, ownerID, status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWebhookResponse(hook))
}

// ListDeliveries returns a webhook's delivery ledger, newest first.
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	ownerID, id, ok := h.ids(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	records, err := h.registry.ListDeliveries(c.Request.Context(), id, ownerID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.DeliveryResponse, len(records))
	for i := range records {
		items[i] = dto.NewDeliveryResponse(&records[i])
	}
	response.OK(c, dto.NewListResponse(items))
}

// ids resolves the caller and the :id path parameter. A malformed id is
// reported the same way as a missing webhook.
func (h *WebhookHandler) ids(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrWebhookNotFound())
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, id, true
}
