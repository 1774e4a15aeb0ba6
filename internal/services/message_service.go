package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/config"
	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/internal/utils"
	"github.com/Gopher0727/PropChat/pkg/apperr"
	rootutils "github.com/Gopher0727/PropChat/utils"
)

var (
	ErrMessageNotFound = apperr.NotFound("message not found")
	ErrInvalidParent   = apperr.InvalidParent("parent message does not exist in this channel")
)

type SendMessageRequest struct {
	ChannelID uint   `json:"channel_id" binding:"required"`
	Content   string `json:"content" binding:"required"`
	ParentID  *int64 `json:"parent_id,string,omitempty"`
}

type EditMessageRequest struct {
	MessageID int64  `json:"message_id,string" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

type ListMessagesRequest struct {
	ChannelID uint  `json:"channel_id" binding:"required"`
	Limit     int   `json:"limit,omitempty"`
	BeforeID  int64 `json:"before_id,string,omitempty"`
}

// MessageService 频道消息日志: 发送、编辑、删除、分页拉取
type MessageService struct {
	dir      *DirectoryService
	store    MessageStore
	receipts *ReceiptService
	ids      IDGenerator
	cfg      config.ChatConfig
	now      Clock
	logger   *zap.Logger
}

func NewMessageService(dir *DirectoryService, store MessageStore, receipts *ReceiptService, ids IDGenerator, cfg config.ChatConfig, now Clock, logger *zap.Logger) *MessageService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MessageService{
		dir:      dir,
		store:    store,
		receipts: receipts,
		ids:      ids,
		cfg:      cfg,
		now:      now,
		logger:   logger,
	}
}

// Post 写入一条频道消息并返回带作者信息的视图
func (s *MessageService) Post(ctx context.Context, userID uint, req SendMessageRequest) (*models.MessageView, error) {
	access, err := s.dir.Authorize(ctx, userID, req.ChannelID, ActionWrite)
	if err != nil {
		return nil, err
	}
	content, err := s.validateContent(req.Content)
	if err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		parent, err := s.store.GetMessage(ctx, *req.ParentID)
		if err != nil {
			return nil, storeErr(s.logger, err, ErrInvalidParent)
		}
		if parent.ChannelID != req.ChannelID {
			return nil, ErrInvalidParent
		}
	}

	id, err := s.ids.NextID()
	if err != nil {
		s.logger.Error("generate message id failed", zap.Error(err))
		return nil, apperr.Store(err)
	}

	now := s.now()
	msg := &models.Message{
		ID:        id,
		ChannelID: req.ChannelID,
		UserID:    userID,
		Content:   content,
		ParentID:  req.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, storeErr(s.logger, err, nil)
	}

	view := models.NewMessageView(msg, access.User.Summary())
	return &view, nil
}

// Edit 修改内容，保留 id 和 created_at
func (s *MessageService) Edit(ctx context.Context, userID uint, req EditMessageRequest) (*models.MessageView, error) {
	msg, err := s.load(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.dir.AuthorizeMessageMutation(ctx, userID, msg); err != nil {
		return nil, err
	}
	content, err := s.validateContent(req.Content)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateMessageContent(ctx, msg.ID, content, s.now())
	if err != nil {
		return nil, storeErr(s.logger, err, ErrMessageNotFound)
	}

	view := models.NewMessageView(updated, s.authorSummary(ctx, updated.UserID))
	return &view, nil
}

// Delete 物理删除
func (s *MessageService) Delete(ctx context.Context, userID uint, messageID int64) (*models.DeletedMessage, error) {
	msg, err := s.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.dir.AuthorizeMessageMutation(ctx, userID, msg); err != nil {
		return nil, err
	}
	if err := s.store.DeleteMessage(ctx, msg.ID); err != nil {
		return nil, storeErr(s.logger, err, ErrMessageNotFound)
	}
	return &models.DeletedMessage{ID: msg.ID, ChannelID: msg.ChannelID}, nil
}

// Fetch 返回 before_id 之前最多 limit 条消息，按时间正序。
// 非空页会把调用者的已读位置设为本页最新一条
func (s *MessageService) Fetch(ctx context.Context, userID uint, req ListMessagesRequest) ([]models.MessageView, error) {
	if _, err := s.dir.Authorize(ctx, userID, req.ChannelID, ActionRead); err != nil {
		return nil, err
	}
	limit := rootutils.PageSize(req.Limit, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	rows, err := s.store.ListMessages(ctx, req.ChannelID, req.BeforeID, limit)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	if len(rows) == 0 {
		return []models.MessageView{}, nil
	}
	slices.Reverse(rows)

	authors := s.authorSummaries(ctx, rows)
	views := make([]models.MessageView, len(rows))
	for i := range rows {
		views[i] = models.NewMessageView(&rows[i], authors[rows[i].UserID])
	}

	newest := rows[len(rows)-1].ID
	if err := s.receipts.Mark(ctx, req.ChannelID, userID, newest); err != nil {
		// 已读位置更新失败不影响拉取结果
		s.logger.Warn("update read receipt failed",
			zap.Uint("channel_id", req.ChannelID),
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
	}
	return views, nil
}

func (s *MessageService) load(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, storeErr(s.logger, err, ErrMessageNotFound)
	}
	return msg, nil
}

func (s *MessageService) validateContent(content string) (string, error) {
	content, err := utils.NormalizeContent(content, s.cfg.MaxContentLength)
	switch {
	case errors.Is(err, utils.ErrEmptyContent):
		return "", apperr.Validation("message content is required")
	case errors.Is(err, utils.ErrContentTooLong):
		return "", apperr.Validation("message content exceeds the maximum length")
	}
	return content, nil
}

func (s *MessageService) authorSummary(ctx context.Context, userID uint) models.UserSummary {
	user, err := s.dir.store.GetUser(ctx, userID)
	if err != nil {
		return models.UserSummary{ID: userID}
	}
	return user.Summary()
}

// authorSummaries 批量查询作者；查询失败或用户已删除时只保留 ID
func (s *MessageService) authorSummaries(ctx context.Context, rows []models.Message) map[uint]models.UserSummary {
	ids := make([]uint, 0, len(rows))
	for _, m := range rows {
		if !slices.Contains(ids, m.UserID) {
			ids = append(ids, m.UserID)
		}
	}
	users, err := s.dir.store.GetUsers(ctx, ids)
	if err != nil {
		s.logger.Warn("load message authors failed", zap.Error(err))
	}
	out := make(map[uint]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			out[id] = u.Summary()
		} else {
			out[id] = models.UserSummary{ID: id}
		}
	}
	return out
}
