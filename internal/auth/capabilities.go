package auth

// Capability names an action the Authorizer can grant.
type Capability string

// Capability constants.
const (
	CapOpenCloseGate       Capability = "open_close_gate"
	CapToggleStateOverride Capability = "toggle_state_override"
	CapManageUsers         Capability = "manage_users"
)

// roleCapabilities is the single source of truth for the authorisation model.
var roleCapabilities = map[Role][]Capability{
	RoleUser: {
		CapOpenCloseGate,
	},
	RoleAdmin: {
		CapOpenCloseGate,
		CapToggleStateOverride,
		CapManageUsers,
	},
}

// HasCapability returns true if role grants c. Unknown roles grant nothing.
func HasCapability(role Role, c Capability) bool {
	for _, granted := range roleCapabilities[role] {
		if granted == c {
			return true
		}
	}
	return false
}
