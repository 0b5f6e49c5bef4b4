package models

// Role is the kind of caller behind a token
type Role string

const (
	RoleChild Role = "child"
	RoleAdmin Role = "admin"
)

// Principal is the verified identity of a caller. Subject is the child id
// for RoleChild and zero for RoleAdmin.
type Principal struct {
	Subject int64
	Role    Role
	Name    string
}

// IsChild reports whether p is the child with the given id
func (p Principal) IsChild(childID int64) bool {
	return p.Role == RoleChild && p.Subject == childID
}

// IsAdmin reports whether p has the admin role
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
