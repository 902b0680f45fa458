// Package reporting is the read-only query surface over billed and called amounts. The
// only side effect is NotifyOverdue, which publishes events and never writes billing rows.
package reporting

import (
	"context"
	"sort"
	"time"

	"jv-billing-backend/internal/application/notifications"
	"jv-billing-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	DB       *gorm.DB
	Notifier notifications.Notifier
	Deduper  notifications.Deduper // nil publishes on every scan
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// JIB statuses with money still owed.
var receivableJIB = []domain.JIBStatus{domain.JIBSent, domain.JIBPartiallyPaid, domain.JIBDisputed}

// Cash call statuses still collecting.
var collectingCall = []domain.CashCallStatus{domain.CashCallSent, domain.CashCallPartiallyFunded}

const (
	KindJIB      = "JIB"
	KindCashCall = "CASH_CALL"
)

type StatementLine struct {
	Kind        string          `json:"kind"`
	EntityID    uuid.UUID       `json:"entity_id"`
	Code        string          `json:"code"`
	Document    string          `json:"document"` // invoice number or cash call code
	ContractID  uuid.UUID       `json:"contract_id"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Settled     decimal.Decimal `json:"settled"`
	Outstanding decimal.Decimal `json:"outstanding"`
	DueDate     *time.Time      `json:"due_date"`
	Overdue     bool            `json:"overdue"`
}

type CurrencyTotal struct {
	Currency    string          `json:"currency"`
	Billed      decimal.Decimal `json:"billed"`
	Settled     decimal.Decimal `json:"settled"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type Statement struct {
	PartnerID uuid.UUID       `json:"partner_id"`
	AsOf      time.Time       `json:"as_of"`
	Lines     []StatementLine `json:"lines"`
	Totals    []CurrencyTotal `json:"totals"`
}

// PartnerStatement lists a partner's open JIB shares and cash call responses, optionally
// restricted to one contract. Amounts are totalled per currency; nothing is converted.
func (s *Service) PartnerStatement(ctx context.Context, partnerID uuid.UUID, contractID *uuid.UUID) (*Statement, error) {
	now := s.now()
	db := s.DB.WithContext(ctx)
	st := &Statement{PartnerID: partnerID, AsOf: now, Lines: []StatementLine{}}

	var shares []domain.JIBPartnerShare
	if err := db.Where("partner_id = ?", partnerID).Find(&shares).Error; err != nil {
		return nil, err
	}
	jibs := map[uuid.UUID]domain.JointInterestBilling{}
	if len(shares) > 0 {
		ids := make([]uuid.UUID, len(shares))
		for i, sh := range shares {
			ids[i] = sh.JIBID
		}
		q := db.Where("jib_id IN ? AND status IN ?", ids, receivableJIB)
		if contractID != nil {
			q = q.Where("contract_id = ?", *contractID)
		}
		var rows []domain.JointInterestBilling
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, j := range rows {
			jibs[j.JIBID] = j
		}
	}
	for _, sh := range shares {
		j, ok := jibs[sh.JIBID]
		if !ok {
			continue
		}
		st.Lines = append(st.Lines, StatementLine{
			Kind:        KindJIB,
			EntityID:    j.JIBID,
			Code:        j.Code,
			Document:    sh.InvoiceNumber,
			ContractID:  j.ContractID,
			Currency:    j.Currency,
			Status:      string(sh.Status),
			Amount:      sh.ShareAmount,
			Settled:     sh.PaidAmount.Add(sh.WrittenOffAmount),
			Outstanding: sh.Remaining(),
			DueDate:     j.DueDate,
			Overdue:     sh.Remaining().IsPositive() && j.DueDate != nil && now.After(*j.DueDate),
		})
	}

	var responses []domain.CashCallResponse
	if err := db.Where("partner_id = ?", partnerID).Find(&responses).Error; err != nil {
		return nil, err
	}
	calls := map[uuid.UUID]domain.CashCall{}
	if len(responses) > 0 {
		ids := make([]uuid.UUID, len(responses))
		for i, r := range responses {
			ids[i] = r.CashCallID
		}
		q := db.Where("cash_call_id IN ? AND status IN ?", ids, collectingCall)
		if contractID != nil {
			q = q.Where("contract_id = ?", *contractID)
		}
		var rows []domain.CashCall
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, c := range rows {
			calls[c.CashCallID] = c
		}
	}
	for _, r := range responses {
		c, ok := calls[r.CashCallID]
		if !ok || r.Status == domain.ResponseExcused {
			continue
		}
		due := c.DueDate
		st.Lines = append(st.Lines, StatementLine{
			Kind:        KindCashCall,
			EntityID:    c.CashCallID,
			Code:        c.Code,
			Document:    c.Code,
			ContractID:  c.ContractID,
			Currency:    c.Currency,
			Status:      string(r.Status),
			Amount:      r.RequestedAmount,
			Settled:     r.FundedAmount,
			Outstanding: r.Outstanding(),
			DueDate:     &due,
			Overdue:     r.Outstanding().IsPositive() && now.After(due),
		})
	}

	sort.SliceStable(st.Lines, func(i, k int) bool {
		if st.Lines[i].Kind != st.Lines[k].Kind {
			return st.Lines[i].Kind < st.Lines[k].Kind
		}
		return st.Lines[i].Code < st.Lines[k].Code
	})
	st.Totals = totals(st.Lines)
	return st, nil
}

func totals(lines []StatementLine) []CurrencyTotal {
	byCur := map[string]*CurrencyTotal{}
	var order []string
	for _, l := range lines {
		t, ok := byCur[l.Currency]
		if !ok {
			t = &CurrencyTotal{Currency: l.Currency}
			byCur[l.Currency] = t
			order = append(order, l.Currency)
		}
		t.Billed = t.Billed.Add(l.Amount)
		t.Settled = t.Settled.Add(l.Settled)
		t.Outstanding = t.Outstanding.Add(l.Outstanding)
	}
	sort.Strings(order)
	out := make([]CurrencyTotal, 0, len(order))
	for _, c := range order {
		out = append(out, *byCur[c])
	}
	return out
}

type PartnerBalance struct {
	PartnerID   uuid.UUID       `json:"partner_id"`
	PartnerName string          `json:"partner_name"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

type OverdueItem struct {
	Kind        string           `json:"kind"`
	EntityID    uuid.UUID        `json:"entity_id"`
	Code        string           `json:"code"`
	ContractID  uuid.UUID        `json:"contract_id"`
	Currency    string           `json:"currency"`
	DueDate     time.Time        `json:"due_date"`
	DaysOverdue int              `json:"days_overdue"`
	Outstanding decimal.Decimal  `json:"outstanding"`
	Partners    []PartnerBalance `json:"partners"`
}

// Overdue lists receivable JIBs and collecting cash calls past their due date with
// something still outstanding, oldest due date first.
func (s *Service) Overdue(ctx context.Context, contractID *uuid.UUID) ([]OverdueItem, error) {
	now := s.now()
	db := s.DB.WithContext(ctx)
	items := []OverdueItem{}

	jq := db.Preload("Shares").Where("status IN ? AND due_date < ?", receivableJIB, now)
	if contractID != nil {
		jq = jq.Where("contract_id = ?", *contractID)
	}
	var jibs []domain.JointInterestBilling
	if err := jq.Find(&jibs).Error; err != nil {
		return nil, err
	}
	for _, j := range jibs {
		item := OverdueItem{
			Kind: KindJIB, EntityID: j.JIBID, Code: j.Code, ContractID: j.ContractID,
			Currency: j.Currency, DueDate: *j.DueDate, DaysOverdue: daysBetween(*j.DueDate, now),
		}
		for _, sh := range j.Shares {
			if rem := sh.Remaining(); rem.IsPositive() {
				item.Outstanding = item.Outstanding.Add(rem)
				item.Partners = append(item.Partners, PartnerBalance{PartnerID: sh.PartnerID, PartnerName: sh.PartnerName, Outstanding: rem})
			}
		}
		if item.Outstanding.IsPositive() {
			items = append(items, item)
		}
	}

	cq := db.Preload("Responses").Where("status IN ? AND due_date < ?", collectingCall, now)
	if contractID != nil {
		cq = cq.Where("contract_id = ?", *contractID)
	}
	var calls []domain.CashCall
	if err := cq.Find(&calls).Error; err != nil {
		return nil, err
	}
	for _, c := range calls {
		item := OverdueItem{
			Kind: KindCashCall, EntityID: c.CashCallID, Code: c.Code, ContractID: c.ContractID,
			Currency: c.Currency, DueDate: c.DueDate, DaysOverdue: daysBetween(c.DueDate, now),
		}
		for _, r := range c.Responses {
			if r.Status == domain.ResponseExcused {
				continue
			}
			if out := r.Outstanding(); out.IsPositive() {
				item.Outstanding = item.Outstanding.Add(out)
				item.Partners = append(item.Partners, PartnerBalance{PartnerID: r.PartnerID, PartnerName: r.PartnerName, Outstanding: out})
			}
		}
		if item.Outstanding.IsPositive() {
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, k int) bool {
		if !items[i].DueDate.Equal(items[k].DueDate) {
			return items[i].DueDate.Before(items[k].DueDate)
		}
		return items[i].Code < items[k].Code
	})
	return items, nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

type NotifyResult struct {
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
}

// NotifyOverdue publishes JIB_OVERDUE / CASHCALL_OVERDUE for every overdue item, at most
// once per item per de-dup window.
func (s *Service) NotifyOverdue(ctx context.Context) (*NotifyResult, error) {
	items, err := s.Overdue(ctx, nil)
	if err != nil {
		return nil, err
	}
	res := &NotifyResult{}
	for _, it := range items {
		typ := notifications.JIBOverdue
		if it.Kind == KindCashCall {
			typ = notifications.CashCallOverdue
		}
		if s.Deduper != nil {
			first, err := s.Deduper.FirstInWindow(ctx, typ, it.EntityID)
			if err != nil {
				// de-dup store down: publish anyway, duplicates are harmless downstream
				log.Warn().Err(err).Str("code", it.Code).Msg("overdue de-dup unavailable")
			} else if !first {
				res.Skipped++
				continue
			}
		}
		due := it.DueDate
		ev := notifications.Event{
			Type:       typ,
			EntityID:   it.EntityID,
			Code:       it.Code,
			ContractID: it.ContractID,
			Currency:   it.Currency,
			DueDate:    &due,
		}
		for _, p := range it.Partners {
			ev.PartnerIDs = append(ev.PartnerIDs, p.PartnerID)
			ev.Amounts = append(ev.Amounts, notifications.PartnerAmount{PartnerID: p.PartnerID, Amount: p.Outstanding.StringFixed(2)})
		}
		notifications.Emit(ctx, s.Notifier, ev)
		res.Published++
	}
	return res, nil
}

type ContractSummary struct {
	ContractID     uuid.UUID       `json:"contract_id"`
	Currency       string          `json:"currency"`
	JIBCount       int             `json:"jib_count"`
	Billed         decimal.Decimal `json:"billed"`
	Collected      decimal.Decimal `json:"collected"`
	WrittenOff     decimal.Decimal `json:"written_off"`
	OpenDisputes   int             `json:"open_disputes"`
	CashCallCount  int             `json:"cash_call_count"`
	Called         decimal.Decimal `json:"called"`
	Funded         decimal.Decimal `json:"funded"`
	DefaultedCount int             `json:"defaulted_count"`
}

// ContractSummaries totals issued JIBs and cash calls for a contract, one row per currency.
func (s *Service) ContractSummaries(ctx context.Context, contractID uuid.UUID) ([]ContractSummary, error) {
	db := s.DB.WithContext(ctx)
	byCur := map[string]*ContractSummary{}
	get := func(cur string) *ContractSummary {
		if cs, ok := byCur[cur]; ok {
			return cs
		}
		cs := &ContractSummary{ContractID: contractID, Currency: cur}
		byCur[cur] = cs
		return cs
	}

	var jibs []domain.JointInterestBilling
	if err := db.Preload("Shares").
		Where("contract_id = ? AND status NOT IN ?", contractID, []domain.JIBStatus{domain.JIBDraft, domain.JIBCancelled}).
		Find(&jibs).Error; err != nil {
		return nil, err
	}
	for _, j := range jibs {
		cs := get(j.Currency)
		cs.JIBCount++
		cs.Billed = cs.Billed.Add(j.TotalCosts)
		for _, sh := range j.Shares {
			cs.Collected = cs.Collected.Add(sh.PaidAmount)
			cs.WrittenOff = cs.WrittenOff.Add(sh.WrittenOffAmount)
			if sh.HasOpenDispute() {
				cs.OpenDisputes++
			}
		}
	}

	var calls []domain.CashCall
	if err := db.Preload("Responses").
		Where("contract_id = ? AND status NOT IN ?", contractID, []domain.CashCallStatus{domain.CashCallDraft, domain.CashCallCancelled}).
		Find(&calls).Error; err != nil {
		return nil, err
	}
	for _, c := range calls {
		cs := get(c.Currency)
		cs.CashCallCount++
		cs.Called = cs.Called.Add(c.TotalAmount)
		cs.Funded = cs.Funded.Add(c.FundedAmount)
		for _, r := range c.Responses {
			if r.Status == domain.ResponseDefaulted {
				cs.DefaultedCount++
			}
		}
	}

	keys := make([]string, 0, len(byCur))
	for k := range byCur {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ContractSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byCur[k])
	}
	return out, nil
}
