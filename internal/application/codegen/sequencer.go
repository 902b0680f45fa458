package codegen

import (
	"context"
	"fmt"

	"jv-billing-backend/internal/domain"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSequencer keeps counters in the CodeSequences table. The increment runs inside the
// caller's transaction, so the row lock taken by UPDATE serializes concurrent issuers and a
// rolled-back insert also rolls back its number.
type GormSequencer struct{}

func (GormSequencer) Next(ctx context.Context, tx *gorm.DB, scope Scope, period string) (int64, error) {
	tx = tx.WithContext(ctx)
	seed, err := maxIssued(tx, scope, period)
	if err != nil {
		return 0, err
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.CodeSequence{
		Scope: string(scope), Period: period, LastValue: seed,
	}).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&domain.CodeSequence{}).
		Where("scope = ? AND period = ?", string(scope), period).
		UpdateColumn("last_value", gorm.Expr("last_value + 1")).Error; err != nil {
		return 0, err
	}
	var seq domain.CodeSequence
	if err := tx.Where("scope = ? AND period = ?", string(scope), period).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}

// RedisSequencer uses INCR on codes:seq:<scope>:<period>. Numbers consumed by a transaction
// that later rolls back are skipped, never reused. A missing key is seeded from the highest
// code already stored so a flushed Redis does not restart at 0001.
type RedisSequencer struct {
	Rdb *redis.Client
}

func redisKey(scope Scope, period string) string {
	return fmt.Sprintf("codes:seq:%s:%s", scope, period)
}

func (r *RedisSequencer) Next(ctx context.Context, tx *gorm.DB, scope Scope, period string) (int64, error) {
	key := redisKey(scope, period)
	exists, err := r.Rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		seed, err := maxIssued(tx.WithContext(ctx), scope, period)
		if err != nil {
			return 0, err
		}
		// SETNX so two seeding callers cannot both reset the counter.
		if err := r.Rdb.SetNX(ctx, key, seed, 0).Err(); err != nil {
			return 0, err
		}
	}
	return r.Rdb.Incr(ctx, key).Result()
}
