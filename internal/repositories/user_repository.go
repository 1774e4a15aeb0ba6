package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Gopher0727/PropChat/internal/models"
)

const (
	userCacheKeyPrefix = "user:info:" // Redis String, 值是 user JSON
	userCacheTTL       = 10 * time.Minute
)

// UserRepository 用户只读仓储，带 Redis 缓存。用户数据由账户服务维护
type UserRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewUserRepository(db *gorm.DB, redis *redis.Client) *UserRepository {
	return &UserRepository{db: db, redis: redis}
}

func userCacheKey(id uint) string {
	return fmt.Sprintf("%s%d", userCacheKeyPrefix, id)
}

// GetByID 根据 ID 获取用户 (带缓存)
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if r.redis != nil {
		val, err := r.redis.Get(ctx, userCacheKey(id)).Result()
		if err == nil {
			var user models.User
			if json.Unmarshal([]byte(val), &user) == nil {
				return &user, nil
			}
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}

	// 回填 Redis，失败不影响主流程
	if r.redis != nil {
		if data, err := json.Marshal(&user); err == nil {
			r.redis.Set(ctx, userCacheKey(id), data, userCacheTTL)
		}
	}
	return &user, nil
}

// GetByIDs 批量获取用户信息 (带缓存)，不存在的 ID 不出现在结果中
func (r *UserRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
	result := make(map[uint]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missingIDs := ids
	if r.redis != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = userCacheKey(id)
		}

		// MGet 一次性获取所有 key
		if vals, err := r.redis.MGet(ctx, keys...).Result(); err == nil {
			missingIDs = nil
			for i, val := range vals {
				valStr, ok := val.(string)
				var user models.User
				if ok && json.Unmarshal([]byte(valStr), &user) == nil {
					result[ids[i]] = &user
					continue
				}
				missingIDs = append(missingIDs, ids[i])
			}
		}
	}
	if len(missingIDs) == 0 {
		return result, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", missingIDs).Find(&users).Error; err != nil {
		return result, err
	}

	var pipe redis.Pipeliner
	if r.redis != nil {
		pipe = r.redis.Pipeline()
	}
	for i := range users {
		u := &users[i]
		result[u.ID] = u
		if pipe != nil {
			if data, err := json.Marshal(u); err == nil {
				pipe.Set(ctx, userCacheKey(u.ID), data, userCacheTTL)
			}
		}
	}
	if pipe != nil && len(users) > 0 {
		_, _ = pipe.Exec(ctx)
	}
	return result, nil
}

// ListByCompany 公司全部活跃成员
func (r *UserRepository) ListByCompany(ctx context.Context, companyID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND status = ?", companyID, models.UserStatusActive).
		Order("first_name, last_name, id").
		Find(&users).Error
	return users, err
}

// Invalidate 清除缓存，账户变更事件到达时调用
func (r *UserRepository) Invalidate(ctx context.Context, ids ...uint) error {
	if r.redis == nil || len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userCacheKey(id)
	}
	return r.redis.Del(ctx, keys...).Err()
}
