package models

import "time"

// Proposal is a submission against a tender. The lifecycle core never
// inspects proposal contents, only whether the set may be disclosed.
type Proposal struct {
	Id          string     `json:"id"`
	TenderId    string     `json:"tenderId"`
	AuthorId    string     `json:"authorId"`
	AuthorRole  CallerRole `json:"authorRole"`
	BidAmount   int64      `json:"bidAmount"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// MaxBidFactor bounds a proposal's bid relative to the tender budget,
// enforced at submission time.
const MaxBidFactor = 2
