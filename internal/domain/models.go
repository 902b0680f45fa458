package domain

// Models lists every table this service migrates, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&Contract{}, &ContractPartner{},
		&JointInterestBilling{}, &JIBLineItem{}, &JIBPartnerShare{}, &JIBPayment{},
		&CashCall{}, &CashCallResponse{},
		&CodeSequence{}, &AuditEvent{},
	}
}
