package models

import "time"

// DirectMessageChannel 私聊频道。(user_low, user_high) 唯一，保证同一对用户只有一个频道
type DirectMessageChannel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserLow   uint      `gorm:"not null;uniqueIndex:idx_dm_pair,priority:1" json:"-"`
	UserHigh  uint      `gorm:"not null;uniqueIndex:idx_dm_pair,priority:2" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DirectMessageChannel) TableName() string {
	return "direct_message_channels"
}

// SortedPair 返回 (较小ID, 较大ID)
func SortedPair(a, b uint) (uint, uint) {
	if a < b {
		return a, b
	}
	return b, a
}

// Peer 返回频道中 userID 以外的另一方
func (c *DirectMessageChannel) Peer(userID uint) uint {
	if c.UserLow == userID {
		return c.UserHigh
	}
	return c.UserLow
}

func (c *DirectMessageChannel) HasParticipant(userID uint) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

type DirectMessageParticipant struct {
	ChannelID uint      `gorm:"primaryKey" json:"channel_id"`
	UserID    uint      `gorm:"primaryKey;index" json:"user_id"`
	JoinedAt  time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (DirectMessageParticipant) TableName() string {
	return "direct_message_participants"
}

type DirectMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	ChannelID uint      `gorm:"not null;index" json:"channel_id"`
	SenderID  uint      `gorm:"not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	IsEdited  bool      `gorm:"not null;default:false" json:"is_edited"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Channel *DirectMessageChannel `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE" json:"-"`
}

func (DirectMessage) TableName() string {
	return "direct_messages"
}

type DirectMessageView struct {
	ID        int64       `json:"id,string"`
	ChannelID uint        `json:"channel_id"`
	SenderID  uint        `json:"sender_id"`
	Content   string      `json:"content"`
	IsEdited  bool        `json:"is_edited"`
	CreatedAt time.Time   `json:"created_at"`
	Sender    UserSummary `json:"sender"`
}

func NewDirectMessageView(m *DirectMessage, sender UserSummary) DirectMessageView {
	return DirectMessageView{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		IsEdited:  m.IsEdited,
		CreatedAt: m.CreatedAt,
		Sender:    sender,
	}
}

// DMChannelView 私聊频道列表项
type DMChannelView struct {
	ID          uint               `json:"id"`
	Peer        UserSummary        `json:"peer"`
	LastMessage *DirectMessageView `json:"last_message,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
