package domain

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleKitchen  Role = "kitchen"
	RoleCustomer Role = "customer"
)

// IsStaff reports whether the role may join the staff notification group.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleStaff || r == RoleKitchen
}

// Identity is what a verified credential asserts about its bearer.
// SessionID and TableID are only set on customer session credentials.
type Identity struct {
	SubjectID string
	Username  string
	Role      Role
	SessionID int64
	TableID   int64
}

func (i Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
}
