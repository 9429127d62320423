// Package access holds the pure visibility and permission rules for tenders.
// Every decision is a function of a tender snapshot and the caller's identity,
// with no side effects and no reads of its own; handlers and services consult
// these functions instead of re-deriving rules locally.
package access

import (
	"time"

	"tendermarket/internal/models"
)

// CanView reports whether the caller may see the tender at all.
// Owner and admin can always view; everyone else only sees tenders that have
// left draft, subject to the tender's visibility rule.
func CanView(tender models.Tender, caller models.Caller) bool {
	if tender.IsDeleted {
		return caller.IsAdmin()
	}
	if caller.IsAdmin() || caller.Id == tender.OwnerId {
		return true
	}

	switch tender.Status {
	case models.TenderPublished, models.TenderLocked, models.TenderDeadlineReached, models.TenderClosed:
	default:
		return false
	}

	switch tender.Visibility {
	case models.VisibilityPublic:
		return true
	case models.VisibilityInviteOnly:
		return tender.Invited(caller.Id)
	case models.VisibilityRestricted:
		return caller.Role == tender.Category.ApplicantRole()
	default:
		return false
	}
}

// CanApply reports whether the caller may submit a proposal right now.
// Applications are accepted only while the tender is in a submission state,
// strictly before the deadline, and only from the role the tender category
// permits.
func CanApply(tender models.Tender, caller models.Caller, now time.Time) bool {
	if tender.IsDeleted || !models.AcceptingProposals(tender.Status) {
		return false
	}
	if !now.Before(tender.Deadline) {
		return false
	}
	if caller.Role != tender.Category.ApplicantRole() {
		return false
	}
	if tender.Visibility == models.VisibilityInviteOnly && !tender.Invited(caller.Id) {
		return false
	}
	return true
}

// CanViewProposals reports whether the caller may see the tender's proposal
// set. While a closed-workflow tender is unrevealed the answer is false for
// every caller, owner and admin included; that is the sealed-bid guarantee
// and it has no bypass.
func CanViewProposals(tender models.Tender, caller models.Caller, proposalCount int) bool {
	if tender.Sealed() {
		return false
	}

	ownerOrAdmin := caller.IsAdmin() || caller.Id == tender.OwnerId
	if !ownerOrAdmin {
		return false
	}

	if tender.WorkflowType == models.WorkflowOpen {
		return proposalCount > 0
	}
	// closed workflow, RevealedAt set
	return true
}

// CanEdit reports whether the caller may modify the tender's fields.
// Drafts are freely editable by the owner; open-workflow tenders allow minor
// corrections while published. A sealed tender is immutable from the moment
// it locks, including for its owner.
func CanEdit(tender models.Tender, callerId string) bool {
	if tender.IsDeleted || callerId != tender.OwnerId {
		return false
	}

	switch tender.Status {
	case models.TenderDraft:
		return true
	case models.TenderPublished:
		return tender.WorkflowType == models.WorkflowOpen
	default:
		return false
	}
}
