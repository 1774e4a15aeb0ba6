package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"time"
)

// 频道名只允许小写字母、数字、下划线和连字符
var ChannelNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ChatServer 每个公司对应一个聊天服务器
type ChatServer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CompanyID   uint      `gorm:"not null;uniqueIndex" json:"company_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ChatServer) TableName() string {
	return "chat_servers"
}

type Channel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ServerID    uint      `gorm:"not null;uniqueIndex:idx_channel_server_name" json:"server_id"`
	Name        string    `gorm:"not null;uniqueIndex:idx_channel_server_name" json:"name"`
	Description string    `json:"description"`
	IsPrivate   bool      `gorm:"not null;default:false" json:"is_private"`
	CreatedBy   uint      `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// CompanyID 来自所属服务器，只读且不参与迁移
	CompanyID uint `gorm:"->;-:migration" json:"-"`
}

func (Channel) TableName() string {
	return "chat_channels"
}

// ChannelMember 私有频道成员，联合主键
type ChannelMember struct {
	ChannelID uint      `gorm:"primaryKey" json:"channel_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	JoinedAt  time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (ChannelMember) TableName() string {
	return "channel_members"
}

// 服务器角色能力
const (
	PermManageChannels = "manage_channels"
	PermManageMessages = "manage_messages"
)

// Permissions 扁平的能力集合，以 JSON 数组存储
type Permissions []string

func (p Permissions) Has(capability string) bool {
	return slices.Contains(p, capability)
}

func (p Permissions) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Permissions) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("permissions: unsupported type %T", src)
	}
	return p.UnmarshalJSON(raw)
}

// UnmarshalJSON 同时接受数组和旧的 {"manage_messages": true} 对象格式
func (p *Permissions) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}
	var flags map[string]bool
	if err := json.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("permissions: %w", err)
	}
	out := make(Permissions, 0, len(flags))
	for name, on := range flags {
		if on {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	*p = out
	return nil
}

type ServerRole struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	ServerID    uint        `gorm:"not null;uniqueIndex:idx_role_server_name" json:"server_id"`
	Name        string      `gorm:"not null;uniqueIndex:idx_role_server_name" json:"name"`
	Color       string      `json:"color"`
	Permissions Permissions `gorm:"type:jsonb;not null;default:'[]'" json:"permissions"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (ServerRole) TableName() string {
	return "server_roles"
}

type UserRole struct {
	UserID uint `gorm:"primaryKey" json:"user_id"`
	RoleID uint `gorm:"primaryKey" json:"role_id"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

// HasPermission 角色集合中任一角色拥有该能力即可
func HasPermission(roles []ServerRole, capability string) bool {
	for _, r := range roles {
		if r.Permissions.Has(capability) {
			return true
		}
	}
	return false
}
