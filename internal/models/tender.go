package models

import "time"

type TenderStatus string

const (
	TenderDraft           TenderStatus = "draft"
	TenderPublished       TenderStatus = "published"
	TenderLocked          TenderStatus = "locked"
	TenderDeadlineReached TenderStatus = "deadline_reached"
	TenderClosed          TenderStatus = "closed"
	TenderCancelled       TenderStatus = "cancelled"
)

func ValidTenderStatus(t TenderStatus) bool {
	switch t {
	case TenderDraft, TenderPublished, TenderLocked, TenderDeadlineReached, TenderClosed, TenderCancelled:
		return true
	default:
		return false
	}
}

// StatusRank orders statuses along the normal lifecycle. Transitions must
// never lower a tender's rank, except explicit admin moderation.
// TenderCancelled sits outside the ordering and ranks as -1.
func StatusRank(t TenderStatus) int {
	switch t {
	case TenderDraft:
		return 0
	case TenderPublished:
		return 1
	case TenderLocked:
		return 2
	case TenderDeadlineReached:
		return 3
	case TenderClosed:
		return 4
	default:
		return -1
	}
}

// AcceptingProposals reports whether a tender in this status may still
// receive submissions.
func AcceptingProposals(t TenderStatus) bool {
	return t == TenderPublished || t == TenderLocked
}

type WorkflowType string

const (
	WorkflowOpen   WorkflowType = "open"
	WorkflowClosed WorkflowType = "closed"
)

func ValidWorkflowType(t WorkflowType) bool {
	switch t {
	case WorkflowOpen, WorkflowClosed:
		return true
	default:
		return false
	}
}

type TenderCategory string

const (
	CategoryFreelance    TenderCategory = "freelance"
	CategoryProfessional TenderCategory = "professional"
)

func ValidTenderCategory(t TenderCategory) bool {
	switch t {
	case CategoryFreelance, CategoryProfessional:
		return true
	default:
		return false
	}
}

// ApplicantRole returns the caller role allowed to submit proposals for
// tenders of this category.
func (t TenderCategory) ApplicantRole() CallerRole {
	if t == CategoryProfessional {
		return RoleCompany
	}
	return RoleFreelancer
}

type TenderVisibility string

const (
	VisibilityPublic     TenderVisibility = "public"
	VisibilityInviteOnly TenderVisibility = "invite_only"
	VisibilityRestricted TenderVisibility = "restricted"
)

func ValidTenderVisibility(t TenderVisibility) bool {
	switch t {
	case VisibilityPublic, VisibilityInviteOnly, VisibilityRestricted:
		return true
	default:
		return false
	}
}

type Tender struct {
	Id             string           `json:"id"`
	Version        int              `json:"version"`
	OwnerId        string           `json:"ownerId"`
	OrganizationId string           `json:"organizationId"`
	Status         TenderStatus     `json:"status"`
	WorkflowType   WorkflowType     `json:"workflowType"`
	Category       TenderCategory   `json:"category"`
	Visibility     TenderVisibility `json:"visibility"`
	InviteList     []string         `json:"inviteList,omitempty"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Budget         int64            `json:"budget"`
	Deadline       time.Time        `json:"deadline"`

	// Timestamps below are set exactly once by the transition that produced
	// them and never reset. A non-nil value is proof the transition happened.
	PublishedAt       *time.Time `json:"publishedAt,omitempty"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
	DeadlineReachedAt *time.Time `json:"deadlineReachedAt,omitempty"`
	RevealedAt        *time.Time `json:"revealedAt,omitempty"`

	// DaysRemaining is recomputed by the scheduler, informational only.
	DaysRemaining int `json:"daysRemaining"`

	Moderated        bool         `json:"moderated"`
	ModerationReason string       `json:"moderationReason,omitempty"`
	PrevStatus       TenderStatus `json:"-"`

	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}

// Sealed reports whether the tender's proposals are still under the
// sealed-bid guarantee: closed workflow and not yet revealed.
func (t Tender) Sealed() bool {
	return t.WorkflowType == WorkflowClosed && t.RevealedAt == nil
}

// Invited reports whether callerId is on the invite list.
func (t Tender) Invited(callerId string) bool {
	for _, id := range t.InviteList {
		if id == callerId {
			return true
		}
	}
	return false
}
