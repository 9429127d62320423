package models

import "errors"

var (
	ErrInvalidCaller = errors.New("caller identity is missing or unknown")
	ErrForbidden     = errors.New("caller does not have permission for this operation")
	ErrNoTender      = errors.New("requested tender does not exist")
	ErrNoProposal    = errors.New("requested proposal does not exist")
	ErrTenderDeleted = errors.New("requested tender has been deleted")

	ErrWrongStatus        = errors.New("tender status does not permit this operation")
	ErrDeadlinePassed     = errors.New("tender deadline has already passed")
	ErrDeadlineNotSet     = errors.New("tender deadline must be set strictly in the future")
	ErrDeadlineNotReached = errors.New("tender deadline has not been reached yet")

	ErrAlreadyRevealed     = errors.New("tender proposals have already been revealed")
	ErrNotSealed           = errors.New("tender does not use the sealed-bid workflow")
	ErrSealedImmutable     = errors.New("sealed tender cannot be modified")
	ErrWorkflowImmutable   = errors.New("workflow type cannot change after publication")
	ErrAlreadyTransitioned = errors.New("tender was concurrently moved to another status")
	ErrNotFlagged          = errors.New("tender is not flagged by moderation")

	ErrProposalsSealed = errors.New("proposals are sealed until the tender owner reveals them")

	ErrBidTooLarge = errors.New("proposal bid exceeds the allowed bound for this tender")
	ErrWrongRole   = errors.New("caller role may not apply to this tender category")
	ErrNotInvited  = errors.New("caller is not on the tender's invite list")
)
