package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/internal/repositories"
	"github.com/Gopher0727/PropChat/pkg/apperr"
)

// Action 频道访问类型
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

var (
	ErrChannelNotFound = apperr.NotFound("channel not found")
	ErrUserNotFound    = apperr.NotFound("user not found")
	ErrNotInCompany    = apperr.Forbidden("channel belongs to another company")
	ErrNotMember       = apperr.Forbidden("not a member of this private channel")
	ErrCannotModify    = apperr.Forbidden("only the author or a message manager can modify this message")
)

// Access 授权通过后的上下文，避免调用方重复查询
type Access struct {
	User      *models.User
	Channel   *models.Channel
	CompanyID uint
}

type DirectoryService struct {
	store  DirectoryStore
	logger *zap.Logger
}

func NewDirectoryService(store DirectoryStore, logger *zap.Logger) *DirectoryService {
	return &DirectoryService{store: store, logger: logger}
}

// GetUser 查询用户，不存在时返回 NotFound
func (s *DirectoryService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err, ErrUserNotFound)
	}
	return user, nil
}

// Authorize 依次检查: 频道存在、同一公司、管理员放行、私有频道成员资格。
// 读写两种动作目前规则相同
func (s *DirectoryService) Authorize(ctx context.Context, userID, channelID uint, action Action) (*Access, error) {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, s.storeErr(err, ErrChannelNotFound)
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CompanyID != channel.CompanyID {
		return nil, ErrNotInCompany
	}

	access := &Access{User: user, Channel: channel, CompanyID: channel.CompanyID}
	if user.IsAdmin() || !channel.IsPrivate {
		return access, nil
	}

	member, err := s.store.IsMember(ctx, channelID, userID)
	if err != nil {
		return nil, s.storeErr(err, nil)
	}
	if !member {
		s.logger.Debug("private channel access denied",
			zap.Uint("user_id", userID),
			zap.Uint("channel_id", channelID),
			zap.String("action", string(action)),
		)
		return nil, ErrNotMember
	}
	return access, nil
}

// HasPermission 用户在频道所属服务器上是否拥有该能力 (管理员总是拥有)
func (s *DirectoryService) HasPermission(ctx context.Context, user *models.User, serverID uint, capability string) (bool, error) {
	if user.IsAdmin() {
		return true, nil
	}
	roles, err := s.store.GetUserRoles(ctx, serverID, user.ID)
	if err != nil {
		return false, s.storeErr(err, nil)
	}
	return models.HasPermission(roles, capability), nil
}

// AuthorizeMessageMutation 编辑/删除: 先要求可写，再要求是作者或拥有 manage_messages
func (s *DirectoryService) AuthorizeMessageMutation(ctx context.Context, userID uint, msg *models.Message) (*Access, error) {
	access, err := s.Authorize(ctx, userID, msg.ChannelID, ActionWrite)
	if err != nil {
		return nil, err
	}
	if msg.UserID == userID {
		return access, nil
	}
	ok, err := s.HasPermission(ctx, access.User, access.Channel.ServerID, models.PermManageMessages)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCannotModify
	}
	return access, nil
}

// storeErr ErrNotFound 映射为 notFound (为 nil 时视为存储错误)，其余记录日志并包装为 STORE
func (s *DirectoryService) storeErr(err, notFound error) error {
	return storeErr(s.logger, err, notFound)
}

func storeErr(logger *zap.Logger, err, notFound error) error {
	if notFound != nil && errors.Is(err, repositories.ErrNotFound) {
		return notFound
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	logger.Error("store operation failed", zap.Error(err))
	return apperr.Store(err)
}
