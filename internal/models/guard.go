package models

// TenderGuard is the compare-and-set condition for a guarded tender update.
// The update applies only while the stored row still matches: its status is
// one of FromStatuses and, when RevealedAtNil is set, RevealedAt is still
// null. A guard miss means another transition won the race.
type TenderGuard struct {
	FromStatuses  []TenderStatus
	RevealedAtNil bool
}

func (g TenderGuard) Matches(t Tender) bool {
	if g.RevealedAtNil && t.RevealedAt != nil {
		return false
	}
	for _, s := range g.FromStatuses {
		if t.Status == s {
			return true
		}
	}
	return false
}
