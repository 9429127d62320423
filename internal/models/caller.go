package models

type CallerRole string

const (
	RoleFreelancer CallerRole = "freelancer"
	RoleCompany    CallerRole = "company"
	RoleAdmin      CallerRole = "admin"
)

func ValidCallerRole(t CallerRole) bool {
	switch t {
	case RoleFreelancer, RoleCompany, RoleAdmin:
		return true
	default:
		return false
	}
}

// Caller is the identity attached to an authenticated request. Authentication
// itself is an external collaborator; handlers only receive {id, role}.
type Caller struct {
	Id   string
	Role CallerRole
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
