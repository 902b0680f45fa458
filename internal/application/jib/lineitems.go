package jib

import (
	"context"
	"errors"
	"strings"

	"jv-billing-backend/internal/application/allocation"
	"jv-billing-backend/internal/application/audit"
	"jv-billing-backend/internal/domain"
	"jv-billing-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LineItemInput struct {
	CostCategory string
	Description  string
	Amount       decimal.Decimal // negative for credit adjustments, never zero
	AFEID        *uuid.UUID
	ExpenseID    *uuid.UUID
	IsBillable   *bool // defaults to true
	Actor        string
}

// LineItemPatch changes only the fields that are set.
type LineItemPatch struct {
	CostCategory *string
	Description  *string
	Amount       *decimal.Decimal
	AFEID        *uuid.UUID
	ExpenseID    *uuid.UUID
	IsBillable   *bool
	Actor        string
}

func editable(j *domain.JointInterestBilling) error {
	if j.Status != domain.JIBDraft {
		return domain.Rejectf(domain.ErrJIBLocked, "JIB %s is %s; line items can only change while DRAFT", j.Code, j.Status)
	}
	return nil
}

func checkLineItem(category, description string, amount decimal.Decimal, currency string) error {
	if !domain.IsValidCostCategory(category) {
		return domain.Rejectf(domain.ErrInvalidInput, "cost category %q is not one of %s", category, strings.Join(domain.CostCategories, ", "))
	}
	if !validation.Required(description) {
		return domain.Rejectf(domain.ErrInvalidInput, "description is required")
	}
	if amount.IsZero() {
		return domain.Rejectf(domain.ErrInvalidInput, "line item amount must be non-zero")
	}
	if places := allocation.MinorUnits(currency); !validation.HasMaxPlaces(amount, places) {
		return domain.Rejectf(domain.ErrInvalidInput, "amount %s has more than %d decimals for %s", amount.String(), places, currency)
	}
	return nil
}

// billableTotal is the live Σ of billable, non-deleted line items.
func billableTotal(tx *gorm.DB, jibID uuid.UUID) (decimal.Decimal, error) {
	var items []domain.JIBLineItem
	if err := tx.Where("jib_id = ? AND is_billable = ?", jibID, true).Find(&items).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total, nil
}

func refreshTotal(tx *gorm.DB, jibID uuid.UUID) error {
	total, err := billableTotal(tx, jibID)
	if err != nil {
		return err
	}
	return tx.Model(&domain.JointInterestBilling{}).Where("jib_id = ?", jibID).Update("total_costs", total).Error
}

func (s *Service) AddLineItem(ctx context.Context, jibID uuid.UUID, in LineItemInput) (*domain.JIBLineItem, error) {
	if !validation.Required(in.Actor) {
		return nil, domain.Rejectf(domain.ErrInvalidInput, "actor is required")
	}
	billable := true
	if in.IsBillable != nil {
		billable = *in.IsBillable
	}
	var item domain.JIBLineItem
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		j, err := lockJIB(tx, jibID)
		if err != nil {
			return err
		}
		if err := editable(j); err != nil {
			return err
		}
		category := strings.ToUpper(strings.TrimSpace(in.CostCategory))
		if err := checkLineItem(category, in.Description, in.Amount, j.Currency); err != nil {
			return err
		}
		item = domain.JIBLineItem{
			JIBID:        jibID,
			CostCategory: category,
			Description:  strings.TrimSpace(in.Description),
			Amount:       in.Amount,
			AFEID:        in.AFEID,
			ExpenseID:    in.ExpenseID,
			IsBillable:   billable,
			CreatedBy:    in.Actor,
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		if err := refreshTotal(tx, jibID); err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			EntityType: domain.EntityJIB,
			EntityID:   jibID,
			Action:     "add_line_item",
			Actor:      in.Actor,
			Data: map[string]interface{}{
				"line_item_id":  item.LineItemID.String(),
				"cost_category": item.CostCategory,
				"amount":        item.Amount.StringFixed(2),
				"is_billable":   item.IsBillable,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Service) UpdateLineItem(ctx context.Context, itemID uuid.UUID, p LineItemPatch) (*domain.JIBLineItem, error) {
	var item domain.JIBLineItem
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := findLineItem(tx, itemID, &item); err != nil {
			return err
		}
		before := item.Amount
		j, err := lockJIB(tx, item.JIBID)
		if err != nil {
			return err
		}
		if err := editable(j); err != nil {
			return err
		}
		if p.CostCategory != nil {
			item.CostCategory = strings.ToUpper(strings.TrimSpace(*p.CostCategory))
		}
		if p.Description != nil {
			item.Description = strings.TrimSpace(*p.Description)
		}
		if p.Amount != nil {
			item.Amount = *p.Amount
		}
		if p.AFEID != nil {
			item.AFEID = p.AFEID
		}
		if p.ExpenseID != nil {
			item.ExpenseID = p.ExpenseID
		}
		if p.IsBillable != nil {
			item.IsBillable = *p.IsBillable
		}
		if err := checkLineItem(item.CostCategory, item.Description, item.Amount, j.Currency); err != nil {
			return err
		}
		if err := tx.Model(&domain.JIBLineItem{}).Where("line_item_id = ?", itemID).Updates(map[string]interface{}{
			"cost_category": item.CostCategory,
			"description":   item.Description,
			"amount":        item.Amount,
			"afe_id":        item.AFEID,
			"expense_id":    item.ExpenseID,
			"is_billable":   item.IsBillable,
		}).Error; err != nil {
			return err
		}
		if err := refreshTotal(tx, item.JIBID); err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			EntityType: domain.EntityJIB,
			EntityID:   item.JIBID,
			Action:     "edit_line_item",
			Actor:      p.Actor,
			Data: map[string]interface{}{
				"line_item_id":    itemID.String(),
				"cost_category":   item.CostCategory,
				"previous_amount": before.StringFixed(2),
				"amount":          item.Amount.StringFixed(2),
				"is_billable":     item.IsBillable,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveLineItem soft-deletes an item from a DRAFT JIB.
func (s *Service) RemoveLineItem(ctx context.Context, itemID uuid.UUID, actor string) error {
	return s.inTx(ctx, func(tx *gorm.DB) error {
		var item domain.JIBLineItem
		if err := findLineItem(tx, itemID, &item); err != nil {
			return err
		}
		j, err := lockJIB(tx, item.JIBID)
		if err != nil {
			return err
		}
		if err := editable(j); err != nil {
			return err
		}
		if err := tx.Delete(&domain.JIBLineItem{}, "line_item_id = ?", itemID).Error; err != nil {
			return err
		}
		if err := refreshTotal(tx, item.JIBID); err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			EntityType: domain.EntityJIB,
			EntityID:   item.JIBID,
			Action:     "remove_line_item",
			Actor:      actor,
			Data: map[string]interface{}{
				"line_item_id": itemID.String(),
				"amount":       item.Amount.StringFixed(2),
			},
		})
	})
}

func findLineItem(tx *gorm.DB, itemID uuid.UUID, out *domain.JIBLineItem) error {
	if err := tx.Where("line_item_id = ?", itemID).First(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Rejectf(domain.ErrNotFound, "line item %s not found", itemID)
		}
		return err
	}
	return nil
}
