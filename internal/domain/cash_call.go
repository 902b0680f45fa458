package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CashCallStatus string

const (
	CashCallDraft           CashCallStatus = "DRAFT"
	CashCallSent            CashCallStatus = "SENT"
	CashCallPartiallyFunded CashCallStatus = "PARTIALLY_FUNDED"
	CashCallFunded          CashCallStatus = "FUNDED"
	CashCallOverdue         CashCallStatus = "OVERDUE" // derived at read time, never stored
	CashCallCancelled       CashCallStatus = "CANCELLED"
)

type ResponseStatus string

const (
	ResponsePending   ResponseStatus = "PENDING"
	ResponsePartial   ResponseStatus = "PARTIAL"
	ResponseFunded    ResponseStatus = "FUNDED"
	ResponseDefaulted ResponseStatus = "DEFAULTED"
	ResponseExcused   ResponseStatus = "EXCUSED"
)

// CashCall is a capital request issued to partners ahead of spend.
type CashCall struct {
	CashCallID   uuid.UUID       `gorm:"column:cash_call_id;type:uuid;primaryKey" json:"cash_call_id"`
	Code         string          `gorm:"column:code;type:varchar(32);not null;uniqueIndex" json:"code"`
	ContractID   uuid.UUID       `gorm:"column:contract_id;type:uuid;not null;index" json:"contract_id"`
	AFEID        *uuid.UUID      `gorm:"column:afe_id;type:uuid" json:"afe_id"`
	RelatedJIBID *uuid.UUID      `gorm:"column:related_jib_id;type:uuid" json:"related_jib_id"`
	Purpose      string          `gorm:"column:purpose;not null" json:"purpose"`
	Description  *string         `gorm:"column:description" json:"description"`
	TotalAmount  decimal.Decimal `gorm:"column:total_amount;type:decimal(20,2);not null" json:"total_amount"`
	FundedAmount decimal.Decimal `gorm:"column:funded_amount;type:decimal(20,2);not null" json:"funded_amount"`
	Currency     string          `gorm:"column:currency;type:char(3);not null" json:"currency"`
	CallDate     time.Time       `gorm:"column:call_date;not null" json:"call_date"`
	DueDate      time.Time       `gorm:"column:due_date;not null" json:"due_date"`
	SentDate     *time.Time      `gorm:"column:sent_date" json:"sent_date"`
	Status       CashCallStatus  `gorm:"column:status;type:varchar(20);not null" json:"status"`
	CreatedBy    string          `gorm:"column:created_by;not null" json:"created_by"`
	ApprovedBy   *string         `gorm:"column:approved_by" json:"approved_by"`
	CancelReason *string         `gorm:"column:cancel_reason" json:"cancel_reason"`
	CreatedAt    time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt    time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`

	Responses []CashCallResponse `gorm:"foreignKey:CashCallID;references:CashCallID" json:"responses,omitempty"`
}

func (CashCall) TableName() string {
	return "CashCalls"
}

func (c *CashCall) BeforeCreate(tx *gorm.DB) error {
	if c.CashCallID == uuid.Nil {
		c.CashCallID = uuid.New()
	}
	return nil
}

// CashCallResponse is one partner's funding position on a cash call.
type CashCallResponse struct {
	ResponseID       uuid.UUID           `gorm:"column:response_id;type:uuid;primaryKey" json:"response_id"`
	CashCallID       uuid.UUID           `gorm:"column:cash_call_id;type:uuid;not null;uniqueIndex:idx_response_call_partner" json:"cash_call_id"`
	PartnerID        uuid.UUID           `gorm:"column:partner_id;type:uuid;not null;uniqueIndex:idx_response_call_partner;index" json:"partner_id"`
	PartnerName      string              `gorm:"column:partner_name;not null" json:"partner_name"`
	WorkingInterest  decimal.Decimal     `gorm:"column:working_interest;type:decimal(9,4);not null" json:"working_interest"`
	RequestedAmount  decimal.Decimal     `gorm:"column:requested_amount;type:decimal(20,2);not null" json:"requested_amount"`
	FundedAmount     decimal.Decimal     `gorm:"column:funded_amount;type:decimal(20,2);not null" json:"funded_amount"`
	Status           ResponseStatus      `gorm:"column:status;type:varchar(20);not null" json:"status"`
	FundingDate      *time.Time          `gorm:"column:funding_date" json:"funding_date"`
	PaymentReference *string             `gorm:"column:payment_reference" json:"payment_reference"`
	DefaultDate      *time.Time          `gorm:"column:default_date" json:"default_date"`
	DefaultPenalty   decimal.NullDecimal `gorm:"column:default_penalty;type:decimal(20,2)" json:"default_penalty"`
	ExcuseReason     *string             `gorm:"column:excuse_reason" json:"excuse_reason"`
	CreatedAt        time.Time           `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt        gorm.DeletedAt      `gorm:"index" json:"-"`
}

func (CashCallResponse) TableName() string {
	return "CashCallResponses"
}

func (r *CashCallResponse) BeforeCreate(tx *gorm.DB) error {
	if r.ResponseID == uuid.Nil {
		r.ResponseID = uuid.New()
	}
	return nil
}

// Outstanding is the requested amount not yet funded.
func (r CashCallResponse) Outstanding() decimal.Decimal {
	return r.RequestedAmount.Sub(r.FundedAmount)
}
