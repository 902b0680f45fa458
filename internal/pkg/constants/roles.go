package constants

// Session roles. The identity provider assigns them; this service only reads them.
const (
	Admin          = "admin"
	FinanceManager = "finance_manager"
	Accountant     = "accountant"
	Treasury       = "treasury"
	Viewer         = "viewer"
)

var ValidRoles = []string{Viewer, Accountant, Treasury, FinanceManager, Admin}

// IsValidRole returns true if role is one of the known session roles.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
