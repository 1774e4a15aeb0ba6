package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/PropChat/internal/models"
)

type PresenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

// UpsertPresence user_id 冲突时更新状态与最后活跃时间
func (r *PresenceRepository) UpsertPresence(ctx context.Context, userID uint, status string, at time.Time) (*models.Presence, error) {
	p := models.Presence{UserID: userID, Status: status, LastActive: at, UpdatedAt: at}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_active", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPresences 批量查询，没有记录的用户不出现在结果中
func (r *PresenceRepository) GetPresences(ctx context.Context, userIDs []uint) (map[uint]models.Presence, error) {
	out := make(map[uint]models.Presence, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []models.Presence
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.UserID] = p
	}
	return out, nil
}
