package constants

import roles "jv-billing-backend/internal/pkg/constants"

// PermissionRoles maps each permission to the roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ViewBilling:      {roles.Viewer, roles.Accountant, roles.Treasury, roles.FinanceManager, roles.Admin},
	ManageBilling:    {roles.Accountant, roles.FinanceManager, roles.Admin},
	ApproveBilling:   {roles.FinanceManager, roles.Admin},
	RecordPayments:   {roles.Treasury, roles.FinanceManager, roles.Admin},
	ManageDisputes:   {roles.Accountant, roles.FinanceManager, roles.Admin},
	ManageCashCalls:  {roles.Accountant, roles.FinanceManager, roles.Admin},
	DeclareDefaults:  {roles.FinanceManager, roles.Admin},
	RunNotifications: {roles.FinanceManager, roles.Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	for _, r := range PermissionRoles[permission] {
		if r == role {
			return true
		}
	}
	return false
}
