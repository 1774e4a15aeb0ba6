package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/PropChat/internal/models"
)

// MessageRepository 频道消息仓储
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(msg).Error)
}

func (r *MessageRepository) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// UpdateMessageContent 修改内容并标记已编辑，返回更新后的记录
func (r *MessageRepository) UpdateMessageContent(ctx context.Context, id int64, content string, at time.Time) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Message{}).Where("id = ?", id).Updates(map[string]any{
			"content":    content,
			"is_edited":  true,
			"updated_at": at,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.First(&msg, id).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &msg, nil
}

// DeleteMessage 物理删除，回复的 parent_id 由外键置空
func (r *MessageRepository) DeleteMessage(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&models.Message{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages 按 ID 倒序返回 beforeID 之前的最多 limit 条，beforeID 为 0 时从最新开始
func (r *MessageRepository) ListMessages(ctx context.Context, channelID uint, beforeID int64, limit int) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var messages []models.Message
	err := q.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}
