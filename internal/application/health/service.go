package health

import (
	"context"
	"encoding/json"
	"runtime"
	"strconv"
	"time"

	"jv-billing-backend/internal/domain"
	"jv-billing-backend/internal/middleware"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Pinger is anything with a cheap liveness check (database, broker).
type Pinger interface {
	Ping() error
}

// CollectResult is the /health/json payload.
type CollectResult struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Dependencies map[string]DepStatus `json:"dependencies"`
	Backlog      *Backlog             `json:"backlog,omitempty"`
}

type RuntimeInfo struct {
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Uptime        string     `json:"uptime"`
	Memory        MemoryInfo `json:"memory"`
	Goroutines    int        `json:"goroutines"`
	Platform      string     `json:"platform"`
	GoVersion     string     `json:"goVersion"`
}

type MemoryInfo struct {
	Alloc    string `json:"alloc"`
	HeapUsed string `json:"heapUsed"`
	Sys      string `json:"sys"`
}

type TrafficInfo struct {
	TotalRequests   int         `json:"totalRequests"`
	SuccessCount    int         `json:"successCount"`
	FailedCount     int         `json:"failedCount"`
	SuccessRate     string      `json:"successRate"`
	AvgResponseTime interface{} `json:"avgResponseTime"`
	LastRequest     interface{} `json:"lastRequest"`
}

type DepStatus struct {
	Status string `json:"status"`
	PingMs *int64 `json:"pingMs"`
}

// Backlog counts billing records still in flight.
type Backlog struct {
	DraftJIBs      int64 `json:"draftJibs"`
	ReceivableJIBs int64 `json:"receivableJibs"`
	DisputedShares int64 `json:"disputedShares"`
	OpenCashCalls  int64 `json:"openCashCalls"`
}

// Deps bundles the optional collaborators checked by CollectHealth. Nil fields report
// "disconnected" (or "disabled" for the broker).
type Deps struct {
	Redis  *redis.Client
	DB     Pinger
	Broker Pinger
	Gorm   *gorm.DB // enables the backlog section
}

// CollectHealth gathers dependency status, request stats and the billing backlog.
// Database and Redis decide ok/issue; the broker only degrades to "degraded".
func CollectHealth(ctx context.Context, d Deps) CollectResult {
	result := CollectResult{Dependencies: make(map[string]DepStatus)}

	dbStatus := ping(d.DB, "disconnected")
	result.Dependencies["database"] = dbStatus

	redisStatus := DepStatus{Status: "disconnected"}
	stats := TrafficInfo{AvgResponseTime: 0, SuccessRate: "100"}
	startTimeMs := time.Now().UnixMilli()
	if d.Redis != nil {
		start := time.Now()
		if err := d.Redis.Ping(ctx).Err(); err == nil {
			ms := time.Since(start).Milliseconds()
			redisStatus = DepStatus{Status: "connected", PingMs: &ms}
			startTimeMs = readTraffic(ctx, d.Redis, &stats, startTimeMs)
		} else {
			redisStatus.Status = "error"
		}
	}
	result.Dependencies["redis"] = redisStatus

	brokerStatus := ping(d.Broker, "disabled")
	result.Dependencies["broker"] = brokerStatus

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptimeSec := (time.Now().UnixMilli() - startTimeMs) / 1000
	if uptimeSec < 0 {
		uptimeSec = 0
	}
	result.Runtime = RuntimeInfo{
		UptimeSeconds: uptimeSec,
		Uptime:        humanize.RelTime(time.Now().Add(-time.Duration(uptimeSec)*time.Second), time.Now(), "", ""),
		Memory: MemoryInfo{
			Alloc:    humanize.Bytes(m.Alloc),
			HeapUsed: humanize.Bytes(m.HeapInuse),
			Sys:      humanize.Bytes(m.Sys),
		},
		Goroutines: runtime.NumGoroutine(),
		Platform:   runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:  runtime.Version(),
	}
	result.Traffic = stats

	if d.Gorm != nil && dbStatus.Status == "connected" {
		if b, err := CollectBacklog(ctx, d.Gorm); err == nil {
			result.Backlog = b
		}
	}

	switch {
	case dbStatus.Status != "connected" || redisStatus.Status != "connected":
		result.Status = "issue"
	case brokerStatus.Status == "error":
		result.Status = "degraded"
	default:
		result.Status = "ok"
	}
	return result
}

func ping(p Pinger, absent string) DepStatus {
	if p == nil {
		return DepStatus{Status: absent}
	}
	start := time.Now()
	if err := p.Ping(); err != nil {
		return DepStatus{Status: "error"}
	}
	ms := time.Since(start).Milliseconds()
	return DepStatus{Status: "connected", PingMs: &ms}
}

// readTraffic fills stats from the counters HealthMarker maintains and returns the
// recorded start time, seeding it on first read.
func readTraffic(ctx context.Context, rdb *redis.Client, stats *TrafficInfo, startTimeMs int64) int64 {
	vals, _ := rdb.MGet(ctx,
		middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyResTime,
		middleware.KeyResCount, middleware.KeyStartTime, middleware.KeyLastReq,
	).Result()
	str := func(i int) string {
		if i < len(vals) {
			if s, ok := vals[i].(string); ok {
				return s
			}
		}
		return ""
	}

	if s := str(4); s != "" {
		if t, err := strconv.ParseInt(s, 10, 64); err == nil {
			startTimeMs = t
		}
	} else {
		rdb.Set(ctx, middleware.KeyStartTime, startTimeMs, 0)
	}

	stats.TotalRequests, _ = strconv.Atoi(str(0))
	stats.FailedCount, _ = strconv.Atoi(str(1))
	stats.SuccessCount = stats.TotalRequests - stats.FailedCount
	if stats.TotalRequests > 0 {
		stats.SuccessRate = strconv.FormatFloat(float64(stats.SuccessCount)/float64(stats.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(str(2), 64)
	countSum, _ := strconv.Atoi(str(3))
	if countSum > 0 {
		stats.AvgResponseTime = strconv.FormatFloat(timeSum/float64(countSum), 'f', 2, 64)
	}
	if s := str(5); s != "" {
		var lastReq map[string]interface{}
		_ = json.Unmarshal([]byte(s), &lastReq)
		stats.LastRequest = lastReq
	}
	return startTimeMs
}

// CollectBacklog counts open billing work.
func CollectBacklog(ctx context.Context, db *gorm.DB) (*Backlog, error) {
	db = db.WithContext(ctx)
	b := &Backlog{}
	if err := db.Model(&domain.JointInterestBilling{}).Where("status = ?", domain.JIBDraft).Count(&b.DraftJIBs).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.JointInterestBilling{}).
		Where("status IN ?", []domain.JIBStatus{domain.JIBSent, domain.JIBPartiallyPaid, domain.JIBDisputed}).
		Count(&b.ReceivableJIBs).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.JIBPartnerShare{}).Where("status = ?", domain.ShareDisputed).Count(&b.DisputedShares).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.CashCall{}).
		Where("status IN ?", []domain.CashCallStatus{domain.CashCallSent, domain.CashCallPartiallyFunded}).
		Count(&b.OpenCashCalls).Error; err != nil {
		return nil, err
	}
	return b, nil
}
