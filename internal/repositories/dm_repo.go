package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/PropChat/internal/models"
)

// DMRepository 私聊频道与私聊消息
type DMRepository struct {
	db *gorm.DB
}

func NewDMRepository(db *gorm.DB) *DMRepository {
	return &DMRepository{db: db}
}

// FindDMChannel 按排序后的用户对查找
func (r *DMRepository) FindDMChannel(ctx context.Context, userLow, userHigh uint) (*models.DirectMessageChannel, error) {
	var ch models.DirectMessageChannel
	err := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", userLow, userHigh).
		Take(&ch).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ch, nil
}

func (r *DMRepository) GetDMChannel(ctx context.Context, id uint) (*models.DirectMessageChannel, error) {
	var ch models.DirectMessageChannel
	if err := r.db.WithContext(ctx).First(&ch, id).Error; err != nil {
		return nil, translate(err)
	}
	return &ch, nil
}

// CreateDMChannel 同一事务内创建频道与两个参与者。并发创建时返回 ErrDuplicate
func (r *DMRepository) CreateDMChannel(ctx context.Context, ch *models.DirectMessageChannel) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ch).Error; err != nil {
			return err
		}
		participants := []models.DirectMessageParticipant{
			{ChannelID: ch.ID, UserID: ch.UserLow},
			{ChannelID: ch.ID, UserID: ch.UserHigh},
		}
		return tx.Create(&participants).Error
	}))
}

// ListDMChannels 用户参与的私聊频道，最近活跃的在前
func (r *DMRepository) ListDMChannels(ctx context.Context, userID uint) ([]models.DirectMessageChannel, error) {
	var channels []models.DirectMessageChannel
	err := r.db.WithContext(ctx).
		Where("user_low = ? OR user_high = ?", userID, userID).
		Order("updated_at DESC, id DESC").
		Find(&channels).Error
	return channels, err
}

// CreateDirectMessage 写入消息并刷新频道的 updated_at
func (r *DMRepository) CreateDirectMessage(ctx context.Context, msg *models.DirectMessage) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.DirectMessageChannel{}).
			Where("id = ?", msg.ChannelID).
			Update("updated_at", msg.CreatedAt).Error
	}))
}

func (r *DMRepository) ListDirectMessages(ctx context.Context, channelID uint, beforeID int64, limit int) ([]models.DirectMessage, error) {
	q := r.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var messages []models.DirectMessage
	err := q.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// LastDirectMessages 每个频道最新的一条消息
func (r *DMRepository) LastDirectMessages(ctx context.Context, channelIDs []uint) (map[uint]models.DirectMessage, error) {
	out := make(map[uint]models.DirectMessage, len(channelIDs))
	if len(channelIDs) == 0 {
		return out, nil
	}
	var rows []models.DirectMessage
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (channel_id) * FROM direct_messages
			WHERE channel_id IN ? ORDER BY channel_id, id DESC`, channelIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.ChannelID] = m
	}
	return out, nil
}
