package domain

// Role is the caller role carried by API tokens.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleAgent Role = "AGENT"
	// RoleRelay is held by the inbound mail relay that feeds the webhook.
	RoleRelay Role = "RELAY"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleRelay:
		return true
	}
	return false
}
