package health

import (
	"context"
	"errors"
	"testing"

	"jv-billing-backend/internal/domain"
	"jv-billing-backend/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping() error { return f.err }

func TestCollectHealth_NothingWired(t *testing.T) {
	result := CollectHealth(context.Background(), Deps{})
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "disconnected", result.Dependencies["database"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["redis"].Status)
	assert.Equal(t, "disabled", result.Dependencies["broker"].Status)
	assert.Equal(t, 0, result.Traffic.TotalRequests)
	assert.Nil(t, result.Backlog)
	assert.NotEmpty(t, result.Runtime.GoVersion)
}

func TestCollectHealth_TrafficFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	result := CollectHealth(ctx, Deps{Redis: rdb, DB: fakePinger{}})
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "connected", result.Dependencies["redis"].Status)
	assert.Equal(t, "100", result.Traffic.SuccessRate)
	assert.True(t, mr.Exists("health:billing:start_time"))

	mr.Set("health:billing:req_total", "10")
	mr.Set("health:billing:req_errors", "2")
	mr.Set("health:billing:res_time_total", "150.5")
	mr.Set("health:billing:res_count", "10")
	mr.Set("health:billing:last_request", `{"method":"POST","path":"/api/v1/jibs/create-jib"}`)

	result = CollectHealth(ctx, Deps{Redis: rdb, DB: fakePinger{}})
	assert.Equal(t, 10, result.Traffic.TotalRequests)
	assert.Equal(t, 2, result.Traffic.FailedCount)
	assert.Equal(t, 8, result.Traffic.SuccessCount)
	assert.Equal(t, "80.0", result.Traffic.SuccessRate)
	assert.Equal(t, "15.05", result.Traffic.AvgResponseTime)
	assert.Equal(t, "POST", result.Traffic.LastRequest.(map[string]interface{})["method"])
}

func TestCollectHealth_BrokerDownDegrades(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	result := CollectHealth(context.Background(), Deps{Redis: rdb, DB: fakePinger{}, Broker: fakePinger{err: errors.New("refused")}})
	assert.Equal(t, "degraded", result.Status)
	assert.Equal(t, "error", result.Dependencies["broker"].Status)

	result = CollectHealth(context.Background(), Deps{Redis: rdb, DB: fakePinger{err: errors.New("down")}})
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "error", result.Dependencies["database"].Status)
}

func TestCollectBacklog(t *testing.T) {
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	contract := uuid.New()
	for i, st := range []domain.JIBStatus{domain.JIBDraft, domain.JIBSent, domain.JIBDisputed, domain.JIBPaid} {
		require.NoError(t, db.Create(&domain.JointInterestBilling{
			Code: "JIB-2025-0" + string(rune('1'+i)) + "-0001", ContractID: contract,
			BillingYear: 2025, BillingMonth: i + 1, Status: st, Currency: "USD", CreatedBy: "t",
		}).Error)
	}
	require.NoError(t, db.Create(&domain.CashCall{
		Code: "CC-2025-0001", ContractID: contract, Purpose: "p", TotalAmount: decimal.NewFromInt(10),
		Currency: "USD", Status: domain.CashCallPartiallyFunded, CreatedBy: "t",
	}).Error)

	b, err := CollectBacklog(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.DraftJIBs)
	assert.Equal(t, int64(2), b.ReceivableJIBs)
	assert.Equal(t, int64(0), b.DisputedShares)
	assert.Equal(t, int64(1), b.OpenCashCalls)
}
