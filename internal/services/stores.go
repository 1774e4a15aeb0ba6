package services

import (
	"context"
	"time"

	"github.com/Gopher0727/PropChat/internal/models"
)

// DirectoryStore 目录与成员关系的只读视图 (外加频道创建)
type DirectoryStore interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUsers(ctx context.Context, ids []uint) (map[uint]*models.User, error)
	ListCompanyUsers(ctx context.Context, companyID uint) ([]models.User, error)
	GetServer(ctx context.Context, id uint) (*models.ChatServer, error)
	GetServerByCompany(ctx context.Context, companyID uint) (*models.ChatServer, error)
	// GetChannel 返回的频道带有所属公司 CompanyID
	GetChannel(ctx context.Context, id uint) (*models.Channel, error)
	IsMember(ctx context.Context, channelID, userID uint) (bool, error)
	AddMember(ctx context.Context, channelID, userID uint) error
	ListVisibleChannels(ctx context.Context, serverID, userID uint, includeAllPrivate bool) ([]models.Channel, error)
	GetUserRoles(ctx context.Context, serverID, userID uint) ([]models.ServerRole, error)
	CreateChannel(ctx context.Context, channel *models.Channel) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	UpdateMessageContent(ctx context.Context, id int64, content string, at time.Time) (*models.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	// ListMessages 按 ID 倒序
	ListMessages(ctx context.Context, channelID uint, beforeID int64, limit int) ([]models.Message, error)
}

type ReceiptStore interface {
	UpsertReadReceipt(ctx context.Context, channelID, userID uint, messageID int64, at time.Time) error
	GetReadReceipt(ctx context.Context, channelID, userID uint) (*models.ReadReceipt, error)
}

type PresenceStore interface {
	UpsertPresence(ctx context.Context, userID uint, status string, at time.Time) (*models.Presence, error)
	GetPresences(ctx context.Context, userIDs []uint) (map[uint]models.Presence, error)
}

// SessionRegistry 每个用户的在线会话集合
type SessionRegistry interface {
	AddSession(ctx context.Context, userID uint, sessionID string) (first bool, err error)
	RemoveSession(ctx context.Context, userID uint, sessionID string) (last bool, err error)
	SessionCount(ctx context.Context, userID uint) (int, error)
}

type DMStore interface {
	FindDMChannel(ctx context.Context, userLow, userHigh uint) (*models.DirectMessageChannel, error)
	GetDMChannel(ctx context.Context, id uint) (*models.DirectMessageChannel, error)
	CreateDMChannel(ctx context.Context, ch *models.DirectMessageChannel) error
	ListDMChannels(ctx context.Context, userID uint) ([]models.DirectMessageChannel, error)
	CreateDirectMessage(ctx context.Context, msg *models.DirectMessage) error
	ListDirectMessages(ctx context.Context, channelID uint, beforeID int64, limit int) ([]models.DirectMessage, error)
	LastDirectMessages(ctx context.Context, channelIDs []uint) (map[uint]models.DirectMessage, error)
}

// IDGenerator 单调递增的消息 ID 来源
type IDGenerator interface {
	NextID() (int64, error)
}

// Clock 便于测试注入时间
type Clock func() time.Time
