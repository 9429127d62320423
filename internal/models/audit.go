package models

import "time"

type AuditAction string

const (
	AuditPublish        AuditAction = "PUBLISH"
	AuditAutoTransition AuditAction = "AUTO_TRANSITION"
	AuditReveal         AuditAction = "REVEAL"
	AuditModerateFlag   AuditAction = "MODERATE_FLAG"
	AuditModerateOk     AuditAction = "MODERATE_APPROVE"
)

// AuditEntry records a single state change. Entries are append-only: they are
// written in the same transaction as the transition they describe and are
// never mutated, removed or reordered.
type AuditEntry struct {
	Id       int64       `json:"id"`
	TenderId string      `json:"tenderId"`
	Action   AuditAction `json:"action"`
	// Actor is empty for scheduler-driven transitions.
	Actor     string    `json:"actor,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
