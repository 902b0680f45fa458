// Package registry reads contract and partner reference data owned by the external
// contract registry. Nothing here writes.
package registry

import (
	"context"
	"errors"

	"jv-billing-backend/internal/application/allocation"
	"jv-billing-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PartnerSource is the inbound contract/partner snapshot boundary.
type PartnerSource interface {
	GetContract(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error)
	// GetActivePartners returns the partners active right now, in a stable order.
	GetActivePartners(ctx context.Context, contractID uuid.UUID) ([]allocation.Participant, error)
	// WithTx scopes reads to tx so allocation sees the partners of the locking transaction.
	WithTx(tx *gorm.DB) PartnerSource
}

// GormRegistry reads the registry tables from the shared database.
type GormRegistry struct {
	DB *gorm.DB
}

func (r *GormRegistry) WithTx(tx *gorm.DB) PartnerSource {
	return &GormRegistry{DB: tx}
}

func (r *GormRegistry) GetContract(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error) {
	var c domain.Contract
	if err := r.DB.WithContext(ctx).Where("contract_id = ?", contractID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.Rejectf(domain.ErrNotFound, "contract %s not found", contractID)
		}
		return nil, err
	}
	return &c, nil
}

func (r *GormRegistry) GetActivePartners(ctx context.Context, contractID uuid.UUID) ([]allocation.Participant, error) {
	var rows []domain.ContractPartner
	if err := r.DB.WithContext(ctx).
		Where("contract_id = ? AND is_active = ?", contractID, true).
		Order("partner_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]allocation.Participant, len(rows))
	for i, p := range rows {
		out[i] = allocation.Participant{
			PartnerID:       p.PartnerID,
			PartnerName:     p.PartnerName,
			IsOperator:      p.IsOperator,
			WorkingInterest: p.WorkingInterest,
		}
	}
	return out, nil
}
