package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/PropChat/internal/models"
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// UpsertReadReceipt 插入或覆盖已读位置
func (r *ReceiptRepository) UpsertReadReceipt(ctx context.Context, channelID, userID uint, messageID int64, at time.Time) error {
	receipt := models.ReadReceipt{
		ChannelID:         channelID,
		UserID:            userID,
		LastReadMessageID: messageID,
		LastReadAt:        at,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id", "last_read_at"}),
	}).Create(&receipt).Error
}

func (r *ReceiptRepository) GetReadReceipt(ctx context.Context, channelID, userID uint) (*models.ReadReceipt, error) {
	var receipt models.ReadReceipt
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Take(&receipt).Error
	if err != nil {
		return nil, translate(err)
	}
	return &receipt, nil
}
