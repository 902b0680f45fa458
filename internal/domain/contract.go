package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Contract is owned by the external contract registry; this service only reads it.
type Contract struct {
	ContractID uuid.UUID      `gorm:"column:contract_id;type:uuid;primaryKey" json:"contract_id"`
	Code       string         `gorm:"column:code;type:varchar(40);not null;uniqueIndex" json:"code"`
	Name       string         `gorm:"column:name;not null" json:"name"`
	Currency   string         `gorm:"column:currency;type:char(3);not null;default:'USD'" json:"currency"`
	Status     string         `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt  time.Time      `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Contract) TableName() string {
	return "Contracts"
}

func (c *Contract) BeforeCreate(tx *gorm.DB) error {
	if c.ContractID == uuid.Nil {
		c.ContractID = uuid.New()
	}
	return nil
}

// ContractPartner is a working-interest holder on a contract (registry-owned).
type ContractPartner struct {
	PartnerID       uuid.UUID       `gorm:"column:partner_id;type:uuid;primaryKey" json:"partner_id"`
	ContractID      uuid.UUID       `gorm:"column:contract_id;type:uuid;not null;index" json:"contract_id"`
	PartnerName     string          `gorm:"column:partner_name;not null" json:"partner_name"`
	WorkingInterest decimal.Decimal `gorm:"column:working_interest;type:decimal(9,4);not null" json:"working_interest"`
	IsOperator      bool            `gorm:"column:is_operator;not null;default:false" json:"is_operator"`
	IsActive        bool            `gorm:"column:is_active;not null" json:"is_active"`
	Email           *string         `gorm:"column:email" json:"email"`
	CreatedAt       time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (ContractPartner) TableName() string {
	return "ContractPartners"
}

func (p *ContractPartner) BeforeCreate(tx *gorm.DB) error {
	if p.PartnerID == uuid.Nil {
		p.PartnerID = uuid.New()
	}
	return nil
}
