package jib

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jv-billing-backend/internal/application/allocation"
	"jv-billing-backend/internal/application/codegen"
	"jv-billing-backend/internal/application/notifications"
	"jv-billing-backend/internal/application/registry"
	"jv-billing-backend/internal/domain"
	"jv-billing-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	partnerA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	partnerB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	partnerC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

type captureNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	err    error
}

func (c *captureNotifier) Publish(ctx context.Context, ev notifications.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	db         *gorm.DB
	svc        *Service
	notifier   *captureNotifier
	contractID uuid.UUID
}

func setup(t *testing.T, interests map[uuid.UUID]string) *fixture {
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	contract := domain.Contract{Code: "OML-42", Name: "OML 42 JV", Currency: "USD", Status: "active"}
	require.NoError(t, db.Create(&contract).Error)
	for id, wi := range interests {
		require.NoError(t, db.Create(&domain.ContractPartner{
			PartnerID:       id,
			ContractID:      contract.ContractID,
			PartnerName:     "Partner " + id.String()[35:],
			WorkingInterest: dec(wi),
			IsOperator:      id == partnerA,
			IsActive:        true,
		}).Error)
	}

	n := &captureNotifier{}
	svc := &Service{
		DB:               db,
		Registry:         &registry.GormRegistry{DB: db},
		Codes:            &codegen.Generator{Sequencer: codegen.GormSequencer{}},
		Notifier:         n,
		PaymentTermsDays: 30,
		CodeMaxRetries:   3,
		DBMaxRetries:     3,
		Now:              func() time.Time { return time.Date(2025, 4, 5, 10, 0, 0, 0, time.UTC) },
	}
	return &fixture{db: db, svc: svc, notifier: n, contractID: contract.ContractID}
}

func threePartners(t *testing.T) *fixture {
	return setup(t, map[uuid.UUID]string{partnerA: "50", partnerB: "30", partnerC: "20"})
}

func (f *fixture) draft(t *testing.T, month int, amounts ...string) *domain.JointInterestBilling {
	ctx := context.Background()
	j, err := f.svc.CreateJIB(ctx, CreateInput{ContractID: f.contractID, BillingYear: 2025, BillingMonth: month, CreatedBy: "acct-1"})
	require.NoError(t, err)
	for _, a := range amounts {
		_, err := f.svc.AddLineItem(ctx, j.JIBID, LineItemInput{
			CostCategory: "drilling", Description: "rig day rate", Amount: dec(a), Actor: "acct-1",
		})
		require.NoError(t, err)
	}
	return j
}

func (f *fixture) finalized(t *testing.T, month int, amounts ...string) *domain.JointInterestBilling {
	j := f.draft(t, month, amounts...)
	out, err := f.svc.Finalize(context.Background(), j.JIBID, FinalizeInput{ApprovedBy: "cfo"})
	require.NoError(t, err)
	return out
}

func shareFor(t *testing.T, j *domain.JointInterestBilling, partner uuid.UUID) domain.JIBPartnerShare {
	for _, sh := range j.Shares {
		if sh.PartnerID == partner {
			return sh
		}
	}
	t.Fatalf("no share for partner %s", partner)
	return domain.JIBPartnerShare{}
}

func pay(t *testing.T, f *fixture, shareID uuid.UUID, amount string) *domain.JIBPartnerShare {
	sh, err := f.svc.RecordPayment(context.Background(), shareID, PaymentInput{Amount: dec(amount), Reference: "WIRE-1", Actor: "treasury"})
	require.NoError(t, err)
	return sh
}

func TestCreateJIB_GeneratesCodeAndRejectsDuplicatePeriod(t *testing.T) {
	f := threePartners(t)
	ctx := context.Background()

	j := f.draft(t, 3)
	assert.Equal(t, "JIB-2025-03-0001", j.Code)
	assert.Equal(t, domain.JIBDraft, j.Status)
	assert.Equal(t, "USD", j.Currency)
	assert.True(t, j.TotalCosts.IsZero())

	_, err := f.svc.CreateJIB(ctx, CreateInput{ContractID: f.contractID, BillingYear: 2025, BillingMonth: 3, CreatedBy: "acct-1"})
	assert.ErrorIs(t, err, domain.ErrDuplicatePeriod)

	_, err = f.svc.CreateJIB(ctx, CreateInput{ContractID: f.contractID, BillingYear: 2025, BillingMonth: 13, CreatedBy: "acct-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.CreateJIB(ctx, CreateInput{ContractID: uuid.New(), BillingYear: 2025, BillingMonth: 4, CreatedBy: "acct-1"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLineItems_LiveTotalOfBillableItems(t *testing.T) {
	f := threePartners(t)
	ctx := context.Background()
	j := f.draft(t, 3, "6000.00", "4500.00")

	notBillable := false
	internal, err := f.svc.AddLineItem(ctx, j.JIBID, LineItemInput{
		CostCategory: "OVERHEAD", Description: "internal only", Amount: dec("999.00"), IsBillable: &notBillable, Actor: "acct-1",
	})
	require.NoError(t, err)
	credit, err := f.svc.AddLineItem(ctx, j.JIBID, LineItemInput{
		CostCategory: "SERVICES", Description: "vendor credit", Amount: dec("-500.00"), Actor: "acct-1",
	})
	require.NoError(t, err)

	got, err := f.svc.GetJIB(ctx, j.JIBID)
	require.NoError(t, err)
	assert.Equal(t, "10000.00", got.TotalCosts.StringFixed(2))
	assert.Len(t, got.LineItems, 4)

	amt := dec("-1000.00")
	_, err = f.svc.UpdateLineItem(ctx, credit.LineItemID, LineItemPatch{Amount: &amt, Actor: "acct-1"})
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveLineItem(ctx, internal.LineItemID, "acct-1"))

	got, err = f.svc.GetJIB(ctx, j.JIBID)
	require.NoError(t, err)
	assert.Equal(t, "9500.00", got.TotalCosts.StringFixed(2))
	assert.Len(t, got.LineItems, 3)
}

func TestLineItems_Validation(t *testing.T) {
	f := threePartners(t)
	ctx := context.Background()
	j := f.draft(t, 3)

	cases := []LineItemInput{
		{CostCategory: "CATERING", Description: "x", Amount: dec("1"), Actor: "a"},
		{CostCategory: "LABOR", Description: " ", Amount: dec("1"), Actor: "a"},
		{CostCategory: "LABOR", Description: "x", Amount: dec("0"), Actor: "a"},
		{CostCategory: "LABOR", Description: "x", Amount: dec("1.005"), Actor: "a"},
	}
	for _, in := range cases {
		_, err := f.svc.AddLineItem(ctx, j.JIBID, in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestFinalize_ThreePartnerScenario(t *testing.T) {
	f := threePartners(t)
	j := f.finalized(t, 3, "10000.00")

	assert.Equal(t, domain.JIBSent, j.Status)
	assert.Equal(t, "10000.00", j.TotalCosts.StringFixed(2))
	assert.Equal(t, "5000.00", j.OperatorShare.StringFixed(2))
	assert.Equal(t, "5000.00", j.PartnersShare.StringFixed(2))
	require.NotNil(t, j.SentDate)
	require.NotNil(t, j.DueDate)
	assert.True(t, time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC).Equal(*j.DueDate), "due %s", j.DueDate)

	require.Len(t, j.Shares, 3)
	assert.Equal(t, "5000.00", shareFor(t, j, partnerA).ShareAmount.StringFixed(2))
	assert.Equal(t, "3000.00", shareFor(t, j, partnerB).ShareAmount.StringFixed(2))
	assert.Equal(t, "2000.00", shareFor(t, j, partnerC).ShareAmount.StringFixed(2))

	sum := decimal.Zero
	for _, sh := range j.Shares {
		sum = sum.Add(sh.ShareAmount)
		assert.Equal(t, domain.ShareInvoiced, sh.Status)
		assert.Contains(t, sh.InvoiceNumber, j.Code)
	}
	assert.True(t, sum.Equal(j.TotalCosts))

	require.Len(t, f.notifier.events, 1)
	ev := f.notifier.events[0]
	assert.Equal(t, notifications.JIBSent, ev.Type)
	assert.Equal(t, f.contractID, ev.ContractID)
	assert.Len(t, ev.PartnerIDs, 3)
}

func TestFinalize_RoundingResidualGoesToLargestInterest(t *testing.T) {
	f := setup(t, map[uuid.UUID]string{partnerA: "33.34", partnerB: "33.33", partnerC: "33.33"})
	j := f.finalized(t, 3, "10.00")

	assert.Equal(t, "3.34", shareFor(t, j, partnerA).ShareAmount.StringFixed(2))
	assert.Equal(t, "3.33", shareFor(t, j, partnerB).ShareAmount.StringFixed(2))
	assert.Equal(t, "3.33", shareFor(t, j, partnerC).ShareAmount.StringFixed(2))
}

func TestFinalize_PartnerSumMismatchLeavesDraft(t *testing.T) {
	f := setup(t, map[uuid.UUID]string{partnerA: "50", partnerB: "30", partnerC: "15"})
	j := f.draft(t, 3, "10000.00")

	_, err := f.svc.Finalize(context.Background(), j.JIBID, FinalizeInput{ApprovedBy: "cfo"})
	assert.ErrorIs(t, err, domain.ErrPartnerSumMismatch)

	got, err := f.svc.GetJIB(context.Background(), j.JIBID)
	require.NoError(t, err)
	assert.Equal(t, domain.JIBDraft, got.Status)
	assert.Empty(t, got.Shares)
	assert.Empty(t, f.notifier.events)
}

func TestFinalize_ConcurrentCallsProduceOneSetOfShares(t *testing.T) {
	f := threePartners(t)
	j := f.draft(t, 3, "10000.00")

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		losers    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Finalize(context.Background(), j.JIBID, FinalizeInput{ApprovedBy: "cfo"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyFinalized):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, losers)

	var count int64
	require.NoError(t, f.db.Model(&domain.JIBPartnerShare{}).Where("jib_id = ?", j.JIBID).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestLineItems_LockedAfterFinalize(t *testing.T) {
	f := threePartners(t)
	j := f.finalized(t, 3, "10000.00")
	ctx := context.Background()

	_, err := f.svc.AddLineItem(ctx, j.JIBID, LineItemInput{CostCategory: "LABOR", Description: "late", Amount: dec("1.00"), Actor: "a"})
	assert.ErrorIs(t, err, domain.ErrJIBLocked)

	amt := dec("1.00")
	_, err = f.svc.UpdateLineItem(ctx, j.LineItems[0].LineItemID, LineItemPatch{Amount: &amt, Actor: "a"})
	assert.ErrorIs(t, err, domain.ErrJIBLocked)

	assert.ErrorIs(t, f.svc.RemoveLineItem(ctx, j.LineItems[0].LineItemID, "a"), domain.ErrJIBLocked)

	_, err = f.svc.Finalize(ctx, j.JIBID, FinalizeInput{ApprovedBy: "cfo"})
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
}

func TestRecordPayment_AggregateStatus(t *testing.T) {
	f := threePartners(t)
	j := f.finalized(t, 3, "10000.00")
	ctx := context.Background()

	pay(t, f, shareFor(t, j, partnerA).ShareID, "5000.00")
	pay(t, f, shareFor(t, j, partnerB).ShareID, "3000.00")
	c := pay(t, f, shareFor(t, j, partnerC).ShareID, "500.00")
	assert.Equal(t, domain.SharePartiallyPaid, c.Status)

	got, err := f.svc.GetJIB(ctx, j.JIBID)
	require.NoError(t, err)
	assert.Equal(t, domain.JIBPartiallyPaid, got.Status)
	assert.Equal(t, domain.SharePaid, shareFor(t, got, partnerA).Status)

	c = pay(t, f, shareFor(t, j, partnerC).ShareID, "1500.00")
	assert.Equal(t, domain.SharePaid, c.Status)

	got, err = f.svc.GetJIB(ctx, j.JIBID)
	require.NoError(t, err)
	assert.Equal(t, domain.JIBPaid, got.Status)

	payments, err := f.svc.ListPayments(ctx, j.JIBID)
	require.NoError(t, err)
	assert.Len(t, payments, 4)
}

func TestRecordPayment_OverpaymentRejected(t *testing.T) {
	f := setup(t, map[uuid.UUID]string{partnerA: "50", partnerB: "50"})
	j := f.finalized(t, 3, "2000.00")
	share := shareFor(t, j, partnerB)
	require.Equal(t, "1000.00", share.ShareAmount.StringFixed(2))

	_, err := f.svc.RecordPayment(context.Background(), share.ShareID, PaymentInput{Amount: dec("1000.01"), Reference: "WIRE-9", Actor: "treasury"})
	require.ErrorIs(t, err, domain.ErrOverpaymentRejected)
	assert.Contains(t, err.Error(), "remaining balance is 1,000.00, attempted payment 1,000.01")

	_, err = f.svc.RecordPayment(context.Background(), share.ShareID, PaymentInput{Amount: dec("-5"), Reference: "WIRE-9", Actor: "treasury"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordPayment_UnknownShare(t *testing.T) {
	f := threePartners(t)
	_, err := f.svc.RecordPayment(context.Background(), uuid.New(), PaymentInput{Amount: dec("1"), Reference: "W", Actor: "t"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDispute_BlocksPaidUntilResolved(t *testing.T) {
	f := threePartners(t)
	j := f.finalized(t, 3, "10000.00")
	ctx := context.Background()

	pay(t, f, shareFor(t, j, partnerA).ShareID, "5000.00")
	pay(t, f, shareFor(t, j, partnerB).ShareID, "3000.00")
	c := shareFor(t, j, partnerC)

	_, err := f.svc.DisputeShare(ctx, c.ShareID, "", "partner-c")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	disputed, err := f.svc.DisputeShare(ctx, c.ShareID, "overhead rate above JOA cap", "partner-c")
	require.NoError(t, err)
	assert.Equal(t, domain.ShareDisputed, disputed.Status)

	got, err := f.svc.GetJIB(ctx, j.JIBID)
	require.NoError(t, err)
	assert.Equal(t, domain.JIBDisputed, got.Status)

	_, err = f.svc.RecordPayment(ctx, c.ShareID, PaymentInput{Amount: dec("100"), Reference: "W", Actor: "t"})
	assert.ErrorIs(t, err, domain.ErrShareDisputed)

	_, err = f.svc.DisputeShare(ctx, shareFor(t, j, partnerA).ShareID, "late", "partner-a")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.ResolveDispute(ctx, c.ShareID, ResolveInput{Resolution: "cap applied", WriteOff: dec("2000.01"), Actor: "cfo"})
	assert.ErrorIs(t, err, domain.ErrOverpaymentRejected)

	resolved, err := f.svc.ResolveDispute(ctx, c.ShareID, ResolveInput{Resolution: "cap applied", WriteOff: dec("200.00"), Actor: "cfo"})
	require.NoError(t, err)
	assert.True(t, resolved.DisputeResolved)
	assert.Equal(t, domain.SharePartiallyPaid, resolved.Status)
	assert.Equal(t, "1800.00", resolved.Remaining().StringFixed(2))

	got, err = f.svc.GetJIB(ctx, j.JIBID)
	require.NoError(t, err)
	assert.Equal(t, domain.JIBPartiallyPaid, got.Status)

	pay(t, f, c.ShareID, "1800.00")
	got, err = f.svc.GetJIB(ctx, j.JIBID)
	require.NoError(t, err)
	assert.Equal(t, domain.JIBPaid, got.Status)
}

func TestCancel_Rules(t *testing.T) {
	f := threePartners(t)
	ctx := context.Background()

	draft := f.draft(t, 1, "100.00")
	_, err := f.svc.Cancel(ctx, draft.JIBID, "", "cfo")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	cancelled, err := f.svc.Cancel(ctx, draft.JIBID, "entered twice", "cfo")
	require.NoError(t, err)
	assert.Equal(t, domain.JIBCancelled, cancelled.Status)

	_, err = f.svc.Finalize(ctx, draft.JIBID, FinalizeInput{ApprovedBy: "cfo"})
	assert.ErrorIs(t, err, domain.ErrJIBLocked)

	sent := f.finalized(t, 2, "100.00")
	cancelled, err = f.svc.Cancel(ctx, sent.JIBID, "wrong period", "cfo")
	require.NoError(t, err)
	assert.Equal(t, domain.JIBCancelled, cancelled.Status)
	assert.Len(t, cancelled.Shares, 3)

	paid := f.finalized(t, 3, "100.00")
	pay(t, f, shareFor(t, paid, partnerC).ShareID, "1.00")
	_, err = f.svc.Cancel(ctx, paid.JIBID, "too late", "cfo")
	require.ErrorIs(t, err, domain.ErrCannotCancelPartiallySettled)
	assert.Contains(t, err.Error(), "1.00")
}

func TestFinalize_ZeroTotalAndZeroInterestPartner(t *testing.T) {
	f := setup(t, map[uuid.UUID]string{partnerA: "60", partnerB: "40", partnerC: "0"})
	j := f.finalized(t, 3, "250.00")

	require.Len(t, j.Shares, 3)
	c := shareFor(t, j, partnerC)
	assert.True(t, c.ShareAmount.IsZero())
	assert.Equal(t, domain.SharePaid, c.Status)
	assert.Equal(t, domain.JIBSent, j.Status)

	empty := f.finalized(t, 4)
	assert.True(t, empty.TotalCosts.IsZero())
	assert.Equal(t, domain.JIBPaid, empty.Status)
}

func TestFinalize_NotificationFailureDoesNotRollBack(t *testing.T) {
	f := threePartners(t)
	f.notifier.err = errors.New("broker unavailable")
	j := f.finalized(t, 3, "10000.00")

	assert.Equal(t, domain.JIBSent, j.Status)
	assert.Len(t, j.Shares, 3)
	assert.Len(t, f.notifier.events, 1)
}

func TestFinalize_AuditTrail(t *testing.T) {
	f := threePartners(t)
	j := f.finalized(t, 3, "10000.00")

	var events []domain.AuditEvent
	require.NoError(t, f.db.Where("entity_id = ?", j.JIBID).Order(`"createdAt" ASC`).Find(&events).Error)
	require.Len(t, events, 3)
	assert.Equal(t, "create", events[0].Action)
	assert.Equal(t, "add_line_item", events[1].Action)
	assert.Equal(t, "finalize", events[2].Action)
	require.NotNil(t, events[2].ToStatus)
	assert.Equal(t, "SENT", *events[2].ToStatus)
}

func TestLineItems_EveryChangeIsAudited(t *testing.T) {
	f := threePartners(t)
	ctx := context.Background()
	draft := f.draft(t, 3, "100.00")
	j, err := f.svc.GetJIB(ctx, draft.JIBID)
	require.NoError(t, err)
	require.Len(t, j.LineItems, 1)
	itemID := j.LineItems[0].LineItemID

	amt := dec("250.00")
	_, err = f.svc.UpdateLineItem(ctx, itemID, LineItemPatch{Amount: &amt, Actor: "acct-2"})
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveLineItem(ctx, itemID, "acct-3"))

	var events []domain.AuditEvent
	require.NoError(t, f.db.Where("entity_id = ? AND action LIKE ?", j.JIBID, "%line_item").
		Order(`"createdAt" ASC`).Find(&events).Error)
	require.Len(t, events, 3)
	assert.Equal(t, "add_line_item", events[0].Action)
	assert.Equal(t, "acct-1", events[0].Actor)
	assert.Equal(t, "edit_line_item", events[1].Action)
	assert.Equal(t, "acct-2", events[1].Actor)
	assert.JSONEq(t, `{"line_item_id":"`+itemID.String()+`","cost_category":"DRILLING","previous_amount":"100.00","amount":"250.00","is_billable":true}`,
		string(events[1].EventData))
	assert.Equal(t, "remove_line_item", events[2].Action)
}

// txOnlyRegistry fails the test if partners are read outside the allocation transaction.
type txOnlyRegistry struct {
	registry.PartnerSource
	t      *testing.T
	scoped int
}

func (r *txOnlyRegistry) GetActivePartners(ctx context.Context, contractID uuid.UUID) ([]allocation.Participant, error) {
	r.t.Errorf("active partners read outside the finalize transaction")
	return r.PartnerSource.GetActivePartners(ctx, contractID)
}

func (r *txOnlyRegistry) WithTx(tx *gorm.DB) registry.PartnerSource {
	r.scoped++
	return r.PartnerSource.WithTx(tx)
}

func TestFinalize_AllocatesOverPartnersReadUnderLock(t *testing.T) {
	f := threePartners(t)
	j := f.draft(t, 3, "10000.00")

	// partner C leaves and B takes over its interest after the JIB was drafted
	require.NoError(t, f.db.Model(&domain.ContractPartner{}).Where("partner_id = ?", partnerC).Update("is_active", false).Error)
	require.NoError(t, f.db.Model(&domain.ContractPartner{}).Where("partner_id = ?", partnerB).Update("working_interest", dec("50")).Error)

	reg := &txOnlyRegistry{PartnerSource: f.svc.Registry, t: t}
	f.svc.Registry = reg
	out, err := f.svc.Finalize(context.Background(), j.JIBID, FinalizeInput{ApprovedBy: "cfo"})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.scoped)
	require.Len(t, out.Shares, 2)
	assert.Equal(t, "5000.00", shareFor(t, out, partnerA).ShareAmount.StringFixed(2))
	assert.Equal(t, "5000.00", shareFor(t, out, partnerB).ShareAmount.StringFixed(2))
}
