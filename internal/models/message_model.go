package models

import "time"

// Message 频道消息，ID 由 snowflake 生成，单调递增
type Message struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	ChannelID uint      `gorm:"not null;index:idx_messages_channel_id,priority:1" json:"channel_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ParentID  *int64    `gorm:"index" json:"parent_id,string,omitempty"`
	IsEdited  bool      `gorm:"not null;default:false" json:"is_edited"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 删除父消息时回复的 parent_id 置空
	Parent  *Message `gorm:"foreignKey:ParentID;constraint:OnDelete:SET NULL" json:"-"`
	Channel *Channel `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE" json:"-"`
	Author  *User    `gorm:"foreignKey:UserID" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

// MessageView 带作者信息的消息，用于推送和分页返回
type MessageView struct {
	ID        int64       `json:"id,string"`
	ChannelID uint        `json:"channel_id"`
	UserID    uint        `json:"user_id"`
	Content   string      `json:"content"`
	ParentID  *int64      `json:"parent_id,string,omitempty"`
	IsEdited  bool        `json:"is_edited"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Author    UserSummary `json:"author"`
}

func NewMessageView(m *Message, author UserSummary) MessageView {
	return MessageView{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		UserID:    m.UserID,
		Content:   m.Content,
		ParentID:  m.ParentID,
		IsEdited:  m.IsEdited,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Author:    author,
	}
}

// DeletedMessage message.deleted 事件负载
type DeletedMessage struct {
	ID        int64 `json:"id,string"`
	ChannelID uint  `json:"channel_id"`
}

// ReadReceipt 用户在频道内的已读位置，只前进不后退
type ReadReceipt struct {
	ChannelID         uint      `gorm:"primaryKey" json:"channel_id"`
	UserID            uint      `gorm:"primaryKey" json:"user_id"`
	LastReadMessageID int64     `gorm:"not null" json:"last_read_message_id,string"`
	LastReadAt        time.Time `json:"last_read_at"`
}

func (ReadReceipt) TableName() string {
	return "read_receipts"
}
