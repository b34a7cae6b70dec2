package domain

import (
	"time"

	"github.com/google/uuid"
)

// SimStatus represents the lifecycle state of a SIM resource.
type SimStatus string

const (
	SimStatusProvisioned SimStatus = "PROVISIONED"
	SimStatusActive      SimStatus = "ACTIVE"
	SimStatusInactive    SimStatus = "INACTIVE"
	SimStatusBlocked     SimStatus = "BLOCKED"
)

// IsValid reports whether s is a known status.
func (s SimStatus) IsValid() bool {
	switch s {
	case SimStatusProvisioned, SimStatusActive, SimStatusInactive, SimStatusBlocked:
		return true
	}
	return false
}

// BlockReason is the fixed enumeration of reasons accepted when blocking a SIM.
type BlockReason string

const (
	BlockReasonLost            BlockReason = "LOST"
	BlockReasonStolen          BlockReason = "STOLEN"
	BlockReasonFraudSuspected  BlockReason = "FRAUD_SUSPECTED"
	BlockReasonNonPayment      BlockReason = "NON_PAYMENT"
	BlockReasonPolicyViolation BlockReason = "POLICY_VIOLATION"
	BlockReasonCustomerRequest BlockReason = "CUSTOMER_REQUEST"
)

// IsValid reports whether r belongs to the block reason enumeration.
func (r BlockReason) IsValid() bool {
	switch r {
	case BlockReasonLost, BlockReasonStolen, BlockReasonFraudSuspected,
		BlockReasonNonPayment, BlockReasonPolicyViolation, BlockReasonCustomerRequest:
		return true
	}
	return false
}

// allowedTransitions is the complete edge set of the SIM state machine.
var allowedTransitions = map[SimStatus]map[SimStatus]bool{
	SimStatusProvisioned: {SimStatusActive: true},
	SimStatusActive:      {SimStatusInactive: true, SimStatusBlocked: true},
	SimStatusInactive:    {SimStatusActive: true, SimStatusBlocked: true},
	SimStatusBlocked:     {SimStatusActive: true, SimStatusInactive: true},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to SimStatus) bool {
	return allowedTransitions[from][to]
}

// Sim is a provisioned SIM card. Status only changes through a validated transition.
type Sim struct {
	ID          uuid.UUID    `json:"id"`
	ICCID       string       `json:"iccid"`
	Status      SimStatus    `json:"status"`
	BlockReason *BlockReason `json:"block_reason,omitempty"`
	BlockNotes  *string      `json:"block_notes,omitempty"`
	BlockedAt   *time.Time   `json:"blocked_at,omitempty"`
	BlockedBy   *string      `json:"blocked_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IsBlocked returns true if the SIM is currently blocked.
func (s *Sim) IsBlocked() bool {
	return s.Status == SimStatusBlocked
}

// WithStatus returns a copy of s moved to target. Block metadata is set as a
// group when entering BLOCKED and cleared as a group otherwise.
func (s Sim) WithStatus(target SimStatus, reason *BlockReason, notes *string, actor string, at time.Time) Sim {
	s.Status = target
	s.UpdatedAt = at
	if target == SimStatusBlocked {
		blockedAt := at
		blockedBy := actor
		s.BlockReason = reason
		s.BlockNotes = notes
		s.BlockedAt = &blockedAt
		s.BlockedBy = &blockedBy
		return s
	}
	s.BlockReason = nil
	s.BlockNotes = nil
	s.BlockedAt = nil
	s.BlockedBy = nil
	return s
}

// ValidICCID checks the 19-20 digit ICCID format.
func ValidICCID(iccid string) bool {
	if len(iccid) < 19 || len(iccid) > 20 {
		return false
	}
	for _, r := range iccid {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
