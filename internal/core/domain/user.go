package domain

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Principal is the authenticated caller of the API.
type Principal struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
