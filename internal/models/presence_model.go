package models

import "time"

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// Presence 用户在线状态
type Presence struct {
	UserID     uint      `gorm:"primaryKey" json:"user_id"`
	Status     string    `gorm:"not null;default:offline" json:"status"`
	LastActive time.Time `json:"last_active"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Presence) TableName() string {
	return "user_presence"
}

// NormalizeStatus 非法状态按 online 处理
func NormalizeStatus(status string) string {
	switch status {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return status
	default:
		return StatusOnline
	}
}

// AllModels AutoMigrate 使用的模型列表
func AllModels() []any {
	return []any{
		&Company{},
		&User{},
		&ChatServer{},
		&Channel{},
		&ChannelMember{},
		&ServerRole{},
		&UserRole{},
		&Message{},
		&ReadReceipt{},
		&DirectMessageChannel{},
		&DirectMessageParticipant{},
		&DirectMessage{},
		&Presence{},
	}
}
