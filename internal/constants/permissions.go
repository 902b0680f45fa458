package constants

const (
	ViewBilling      = "view_billing"
	ManageBilling    = "manage_billing"    // draft JIBs and line items
	ApproveBilling   = "approve_billing"   // finalize, issue, cancel
	RecordPayments   = "record_payments"   // JIB payments and cash call funding
	ManageDisputes   = "manage_disputes"
	ManageCashCalls  = "manage_cash_calls" // draft and edit cash calls
	DeclareDefaults  = "declare_defaults"
	RunNotifications = "run_notifications"
)
