package domain

import "time"

// CodeSequence tracks the last issued number for a code scope and period
// (e.g. scope "JIB", period "2025-03").
type CodeSequence struct {
	Scope     string    `gorm:"column:scope;type:varchar(10);primaryKey" json:"scope"`
	Period    string    `gorm:"column:period;type:varchar(7);primaryKey" json:"period"`
	LastValue int64     `gorm:"column:last_value;not null" json:"last_value"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (CodeSequence) TableName() string {
	return "CodeSequences"
}
