package handler

import (
	"errors"
	"io"
	"strconv"

	"sim-provisioning-notifier/internal/adapter/http/dto"
	"sim-provisioning-notifier/internal/adapter/http/middleware"
	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/core/ports"
	"sim-provisioning-notifier/pkg/apperror"
	"sim-provisioning-notifier/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SimHandler exposes the SIM state machine.
type SimHandler struct {
	lifecycleSvc ports.LifecycleService
}

// NewSimHandler creates a new SIM handler.
func NewSimHandler(lifecycleSvc ports.LifecycleService) *SimHandler {
	return &SimHandler{lifecycleSvc: lifecycleSvc}
}

// Activate moves a SIM to ACTIVE.
func (h *SimHandler) Activate(c *gin.Context) {
	h.transition(c, domain.SimStatusActive, "")
}

// Deactivate moves a SIM to INACTIVE.
func (h *SimHandler) Deactivate(c *gin.Context) {
	h.transition(c, domain.SimStatusInactive, "")
}

// Block moves a SIM to BLOCKED. A reason is required.
func (h *SimHandler) Block(c *gin.Context) {
	h.transition(c, domain.SimStatusBlocked, "")
}

// Unblock lifts a block. The target defaults to ACTIVE; INACTIVE is also accepted.
func (h *SimHandler) Unblock(c *gin.Context) {
	h.transition(c, "", domain.SimStatusBlocked)
}

func (h *SimHandler) transition(c *gin.Context, target, from domain.SimStatus) {
	simID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrSimNotFound())
		return
	}

	var req dto.TransitionRequest
	if c.Request.Body != nil {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
	}
	dto.SanitizeStruct(&req)

	if from == domain.SimStatusBlocked {
		target = domain.SimStatusActive
		if req.TargetStatus != nil && *req.TargetStatus != "" {
			target = domain.SimStatus(*req.TargetStatus)
		}
		if target != domain.SimStatusActive && target != domain.SimStatusInactive {
			response.Error(c, apperror.ErrInvalidTargetStatus(string(target)))
			return
		}
	}

	correlationID := req.CorrelationID
	if correlationID == nil {
		if hdr := c.GetHeader(middleware.HeaderCorrelationID); hdr != "" {
			if !dto.ValidCorrelationID(hdr) {
				response.Error(c, apperror.Validation("Invalid X-Correlation-ID header"))
				return
			}
			correlationID = &hdr
		}
	}

	treq := ports.TransitionRequest{
		SimID:         simID,
		Target:        target,
		From:          from,
		Notes:         req.Notes,
		InitiatedBy:   initiatorFor(middleware.Actor(c)),
		Actor:         middleware.Actor(c),
		CorrelationID: correlationID,
	}
	if req.Reason != nil {
		reason := domain.BlockReason(*req.Reason)
		treq.Reason = &reason
	}

	sim, err := h.lifecycleSvc.Transition(c.Request.Context(), treq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewSimResponse(sim))
}

// GetSim returns a SIM's current state.
func (h *SimHandler) GetSim(c *gin.Context) {
	simID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrSimNotFound())
		return
	}

	sim, err := h.lifecycleSvc.GetSim(c.Request.Context(), simID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewSimResponse(sim))
}

// ListEvents returns a SIM's lifecycle events, newest first.
func (h *SimHandler) ListEvents(c *gin.Context) {
	simID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrSimNotFound())
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	events, err := h.lifecycleSvc.ListEvents(c.Request.Context(), simID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewListResponse(events))
}

// initiatorFor maps the token actor onto the event initiator.
func initiatorFor(actor string) domain.Initiator {
	if domain.Initiator(actor) == domain.InitiatorUser {
		return domain.InitiatorUser
	}
	return domain.InitiatorAPI
}

// queryLimit parses ?limit=; zero means the service default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		response.Error(c, apperror.Validation("limit must be a non-negative integer"))
		return 0, false
	}
	return limit, true
}
