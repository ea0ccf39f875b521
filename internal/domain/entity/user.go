package entity

// Role is the authorization role of a user
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleApprover Role = "APPROVER"
	RoleUser     Role = "USER"
)

// IsElevated returns true for roles that belong to the approver pool
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleApprover
}

// User is a known identity of the application
type User struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       Role   `json:"role"`
	LarkOpenID string `json:"lark_open_id,omitempty"`
}

// Actor is the identity performing an operation. It is always passed
// explicitly into engine and service calls.
type Actor struct {
	ID          int64
	Role        Role
	DisplayName string
}

// ActorFromUser builds an Actor for a known user
func ActorFromUser(u *User) Actor {
	return Actor{ID: u.ID, Role: u.Role, DisplayName: u.Name}
}
