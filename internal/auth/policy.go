package auth

// Policy is the single place deciding who may act on what.
// Ownership and role checks used to be scattered equality tests
// around the handlers; keep them here instead.
type Policy struct{}

func NewPolicy() *Policy {
	return &Policy{}
}

// CanActOnUser reports whether the caller may create or list goals
// for the given user. Admins may act on anyone.
func (p *Policy) CanActOnUser(creds Credentials, userID int) bool {
	if creds.Role == RoleAdmin {
		return true
	}
	return creds.ID == userID
}

// CanActOnGoal reports whether the caller may update or delete a goal
// owned by ownerID.
func (p *Policy) CanActOnGoal(creds Credentials, ownerID int) bool {
	if creds.Role == RoleAdmin {
		return true
	}
	return creds.ID == ownerID
}

// CanListMetrics reports whether the caller may read the metric catalog.
func (p *Policy) CanListMetrics(creds Credentials) bool {
	return creds.Role == RoleAdmin || creds.Role == RoleUser
}
