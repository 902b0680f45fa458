package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type JIBStatus string

const (
	JIBDraft         JIBStatus = "DRAFT"
	JIBSent          JIBStatus = "SENT"
	JIBPartiallyPaid JIBStatus = "PARTIALLY_PAID"
	JIBPaid          JIBStatus = "PAID"
	JIBDisputed      JIBStatus = "DISPUTED"
	JIBCancelled     JIBStatus = "CANCELLED"
)

type ShareStatus string

const (
	ShareInvoiced      ShareStatus = "INVOICED"
	SharePartiallyPaid ShareStatus = "PARTIALLY_PAID"
	SharePaid          ShareStatus = "PAID"
	ShareDisputed      ShareStatus = "DISPUTED"
)

// Cost categories accepted on JIB line items.
var CostCategories = []string{
	"LABOR", "MATERIALS", "SERVICES", "EQUIPMENT", "TRANSPORTATION",
	"DRILLING", "COMPLETION", "FACILITIES", "OVERHEAD", "OTHER",
}

func IsValidCostCategory(c string) bool {
	for _, v := range CostCategories {
		if v == c {
			return true
		}
	}
	return false
}

// JointInterestBilling is one billing period's cost roll-up for a contract.
type JointInterestBilling struct {
	JIBID         uuid.UUID       `gorm:"column:jib_id;type:uuid;primaryKey" json:"jib_id"`
	Code          string          `gorm:"column:code;type:varchar(32);not null;uniqueIndex" json:"code"`
	ContractID    uuid.UUID       `gorm:"column:contract_id;type:uuid;not null;uniqueIndex:idx_jib_contract_period" json:"contract_id"`
	BillingYear   int             `gorm:"column:billing_year;not null;uniqueIndex:idx_jib_contract_period" json:"billing_year"`
	BillingMonth  int             `gorm:"column:billing_month;not null;uniqueIndex:idx_jib_contract_period" json:"billing_month"`
	Status        JIBStatus       `gorm:"column:status;type:varchar(20);not null" json:"status"`
	TotalCosts    decimal.Decimal `gorm:"column:total_costs;type:decimal(20,2);not null" json:"total_costs"`
	OperatorShare decimal.Decimal `gorm:"column:operator_share;type:decimal(20,2);not null" json:"operator_share"`
	PartnersShare decimal.Decimal `gorm:"column:partners_share;type:decimal(20,2);not null" json:"partners_share"`
	Currency      string          `gorm:"column:currency;type:char(3);not null" json:"currency"`
	DueDate       *time.Time      `gorm:"column:due_date" json:"due_date"`
	SentDate      *time.Time      `gorm:"column:sent_date" json:"sent_date"`
	Notes         *string         `gorm:"column:notes" json:"notes"`
	CreatedBy     string          `gorm:"column:created_by;not null" json:"created_by"`
	ApprovedBy    *string         `gorm:"column:approved_by" json:"approved_by"`
	CancelReason  *string         `gorm:"column:cancel_reason" json:"cancel_reason"`
	CreatedAt     time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`

	LineItems []JIBLineItem     `gorm:"foreignKey:JIBID;references:JIBID" json:"line_items,omitempty"`
	Shares    []JIBPartnerShare `gorm:"foreignKey:JIBID;references:JIBID" json:"shares,omitempty"`
}

func (JointInterestBilling) TableName() string {
	return "JointInterestBillings"
}

func (j *JointInterestBilling) BeforeCreate(tx *gorm.DB) error {
	if j.JIBID == uuid.Nil {
		j.JIBID = uuid.New()
	}
	return nil
}

type JIBLineItem struct {
	LineItemID   uuid.UUID       `gorm:"column:line_item_id;type:uuid;primaryKey" json:"line_item_id"`
	JIBID        uuid.UUID       `gorm:"column:jib_id;type:uuid;not null;index" json:"jib_id"`
	CostCategory string          `gorm:"column:cost_category;type:varchar(30);not null" json:"cost_category"`
	Description  string          `gorm:"column:description;not null" json:"description"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	AFEID        *uuid.UUID      `gorm:"column:afe_id;type:uuid" json:"afe_id"`
	ExpenseID    *uuid.UUID      `gorm:"column:expense_id;type:uuid" json:"expense_id"`
	IsBillable   bool            `gorm:"column:is_billable;not null" json:"is_billable"`
	CreatedBy    string          `gorm:"column:created_by;not null" json:"created_by"`
	CreatedAt    time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt    time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (JIBLineItem) TableName() string {
	return "JIBLineItems"
}

func (li *JIBLineItem) BeforeCreate(tx *gorm.DB) error {
	if li.LineItemID == uuid.Nil {
		li.LineItemID = uuid.New()
	}
	return nil
}

// JIBPartnerShare is created once per partner at finalization. ShareAmount and
// WorkingInterest are frozen; payments and write-offs accumulate beside them.
type JIBPartnerShare struct {
	ShareID           uuid.UUID       `gorm:"column:share_id;type:uuid;primaryKey" json:"share_id"`
	JIBID             uuid.UUID       `gorm:"column:jib_id;type:uuid;not null;uniqueIndex:idx_share_jib_partner" json:"jib_id"`
	PartnerID         uuid.UUID       `gorm:"column:partner_id;type:uuid;not null;uniqueIndex:idx_share_jib_partner;index" json:"partner_id"`
	PartnerName       string          `gorm:"column:partner_name;not null" json:"partner_name"`
	IsOperator        bool            `gorm:"column:is_operator;not null" json:"is_operator"`
	WorkingInterest   decimal.Decimal `gorm:"column:working_interest;type:decimal(9,4);not null" json:"working_interest"`
	ShareAmount       decimal.Decimal `gorm:"column:share_amount;type:decimal(20,2);not null" json:"share_amount"`
	PaidAmount        decimal.Decimal `gorm:"column:paid_amount;type:decimal(20,2);not null" json:"paid_amount"`
	WrittenOffAmount  decimal.Decimal `gorm:"column:written_off_amount;type:decimal(20,2);not null" json:"written_off_amount"`
	Status            ShareStatus     `gorm:"column:status;type:varchar(20);not null" json:"status"`
	InvoiceNumber     string          `gorm:"column:invoice_number;type:varchar(40);not null" json:"invoice_number"`
	InvoiceDate       time.Time       `gorm:"column:invoice_date;not null" json:"invoice_date"`
	PaymentDate       *time.Time      `gorm:"column:payment_date" json:"payment_date"`
	PaymentReference  *string         `gorm:"column:payment_reference" json:"payment_reference"`
	DisputeReason     *string         `gorm:"column:dispute_reason" json:"dispute_reason"`
	DisputeDate       *time.Time      `gorm:"column:dispute_date" json:"dispute_date"`
	DisputeResolved   bool            `gorm:"column:dispute_resolved;not null" json:"dispute_resolved"`
	DisputeResolution *string         `gorm:"column:dispute_resolution" json:"dispute_resolution"`
	CreatedAt         time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt         time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (JIBPartnerShare) TableName() string {
	return "JIBPartnerShares"
}

func (s *JIBPartnerShare) BeforeCreate(tx *gorm.DB) error {
	if s.ShareID == uuid.Nil {
		s.ShareID = uuid.New()
	}
	return nil
}

// Remaining is the balance still owed on the share.
func (s JIBPartnerShare) Remaining() decimal.Decimal {
	return s.ShareAmount.Sub(s.PaidAmount).Sub(s.WrittenOffAmount)
}

// HasOpenDispute reports a dispute that has not been resolved yet.
func (s JIBPartnerShare) HasOpenDispute() bool {
	return s.Status == ShareDisputed && !s.DisputeResolved
}

// JIBPayment is an append-only record of a payment applied to a share.
type JIBPayment struct {
	PaymentID  uuid.UUID       `gorm:"column:payment_id;type:uuid;primaryKey" json:"payment_id"`
	ShareID    uuid.UUID       `gorm:"column:share_id;type:uuid;not null;index" json:"share_id"`
	JIBID      uuid.UUID       `gorm:"column:jib_id;type:uuid;not null;index" json:"jib_id"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Reference  string          `gorm:"column:reference;not null" json:"reference"`
	PaidOn     time.Time       `gorm:"column:paid_on;not null" json:"paid_on"`
	RecordedBy string          `gorm:"column:recorded_by;not null" json:"recorded_by"`
	CreatedAt  time.Time       `gorm:"column:createdAt" json:"createdAt"`
}

func (JIBPayment) TableName() string {
	return "JIBPayments"
}

func (p *JIBPayment) BeforeCreate(tx *gorm.DB) error {
	if p.PaymentID == uuid.Nil {
		p.PaymentID = uuid.New()
	}
	return nil
}
