package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/internal/repositories"
	"github.com/Gopher0727/PropChat/internal/utils"
	"github.com/Gopher0727/PropChat/pkg/apperr"
)

var (
	ErrServerNotFound    = apperr.NotFound("chat server not found")
	ErrCannotManage      = apperr.Forbidden("manage_channels permission required")
	ErrChannelNameTaken  = apperr.Conflict("a channel with this name already exists")
	ErrServerWrongTenant = apperr.Forbidden("chat server belongs to another company")
)

type CreateChannelRequest struct {
	ServerID    uint   `json:"server_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}

// MemberView 公司成员及其在线状态
type MemberView struct {
	models.UserSummary
	Role       string     `json:"role"`
	Status     string     `json:"status"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

type ServerOverview struct {
	Server   models.ChatServer   `json:"server"`
	Channels []models.Channel    `json:"channels"`
	Roles    []models.ServerRole `json:"roles"`
	Members  []MemberView        `json:"members"`
}

// ChannelService 频道管理与服务器概览
type ChannelService struct {
	dir      *DirectoryService
	presence *PresenceService
	logger   *zap.Logger
}

func NewChannelService(dir *DirectoryService, presence *PresenceService, logger *zap.Logger) *ChannelService {
	return &ChannelService{dir: dir, presence: presence, logger: logger}
}

// CreateChannel 需要 manage_channels；私有频道创建者自动成为成员
func (s *ChannelService) CreateChannel(ctx context.Context, userID uint, req CreateChannelRequest) (*models.Channel, error) {
	user, err := s.dir.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	server, err := s.dir.store.GetServer(ctx, req.ServerID)
	if err != nil {
		return nil, storeErr(s.logger, err, ErrServerNotFound)
	}
	if server.CompanyID != user.CompanyID {
		return nil, ErrServerWrongTenant
	}
	ok, err := s.dir.HasPermission(ctx, user, server.ID, models.PermManageChannels)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCannotManage
	}

	name := strings.TrimSpace(req.Name)
	if err := utils.ValidateChannelName(name); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	channel := &models.Channel{
		ServerID:    server.ID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		IsPrivate:   req.IsPrivate,
		CreatedBy:   user.ID,
	}
	if err := s.dir.store.CreateChannel(ctx, channel); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrChannelNameTaken
		}
		return nil, storeErr(s.logger, err, nil)
	}
	channel.CompanyID = server.CompanyID
	return channel, nil
}

// Overview 用户所在公司的服务器、可见频道、用户角色以及成员在线状态
func (s *ChannelService) Overview(ctx context.Context, userID uint) (*ServerOverview, error) {
	user, err := s.dir.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	server, err := s.dir.store.GetServerByCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, storeErr(s.logger, err, ErrServerNotFound)
	}

	channels, err := s.dir.store.ListVisibleChannels(ctx, server.ID, user.ID, user.IsAdmin())
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	roles, err := s.dir.store.GetUserRoles(ctx, server.ID, user.ID)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	users, err := s.dir.store.ListCompanyUsers(ctx, user.CompanyID)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}

	ids := make([]uint, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	statuses, err := s.presence.Statuses(ctx, ids)
	if err != nil {
		return nil, err
	}

	members := make([]MemberView, len(users))
	for i := range users {
		p := statuses[users[i].ID]
		members[i] = MemberView{
			UserSummary: users[i].Summary(),
			Role:        users[i].Role,
			Status:      p.Status,
		}
		if !p.LastActive.IsZero() {
			at := p.LastActive
			members[i].LastActive = &at
		}
	}

	if channels == nil {
		channels = []models.Channel{}
	}
	if roles == nil {
		roles = []models.ServerRole{}
	}
	return &ServerOverview{Server: *server, Channels: channels, Roles: roles, Members: members}, nil
}
