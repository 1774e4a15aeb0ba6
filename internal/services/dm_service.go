package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/config"
	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/internal/repositories"
	"github.com/Gopher0727/PropChat/internal/utils"
	"github.com/Gopher0727/PropChat/pkg/apperr"
	rootutils "github.com/Gopher0727/PropChat/utils"
)

var (
	ErrDMSelf            = apperr.Validation("cannot open a direct message with yourself")
	ErrDMOtherCompany    = apperr.Forbidden("direct messages are limited to members of the same company")
	ErrDMChannelNotFound = apperr.NotFound("direct message channel not found")
	ErrNotParticipant    = apperr.Forbidden("not a participant of this direct message channel")
)

type OpenDMRequest struct {
	PeerUserID uint `json:"peer_user_id" binding:"required"`
}

type SendDMRequest struct {
	ChannelID uint   `json:"channel_id" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

// DMOpenResult 打开私聊时返回频道和最近的消息
type DMOpenResult struct {
	Channel  models.DMChannelView       `json:"channel"`
	Messages []models.DirectMessageView `json:"messages"`
	Created  bool                       `json:"created"`
}

// DMDelivery 私聊消息及需要推送的参与者
type DMDelivery struct {
	Message      models.DirectMessageView
	Participants []uint
}

// DMService 私聊频道解析 (幂等 get-or-create) 与私聊消息
type DMService struct {
	dir    *DirectoryService
	store  DMStore
	ids    IDGenerator
	cfg    config.ChatConfig
	now    Clock
	logger *zap.Logger
}

func NewDMService(dir *DirectoryService, store DMStore, ids IDGenerator, cfg config.ChatConfig, now Clock, logger *zap.Logger) *DMService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &DMService{dir: dir, store: store, ids: ids, cfg: cfg, now: now, logger: logger}
}

// GetOrCreate 同一对用户始终得到同一个频道。并发创建时唯一索引冲突的一方重新读取胜者
func (s *DMService) GetOrCreate(ctx context.Context, userID, peerID uint) (*models.DirectMessageChannel, bool, error) {
	if userID == peerID {
		return nil, false, ErrDMSelf
	}
	user, err := s.dir.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	peer, err := s.dir.GetUser(ctx, peerID)
	if err != nil {
		return nil, false, err
	}
	if user.CompanyID != peer.CompanyID {
		return nil, false, ErrDMOtherCompany
	}

	low, high := models.SortedPair(userID, peerID)
	ch, err := s.store.FindDMChannel(ctx, low, high)
	if err == nil {
		return ch, false, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, false, storeErr(s.logger, err, nil)
	}

	ch = &models.DirectMessageChannel{UserLow: low, UserHigh: high}
	err = s.store.CreateDMChannel(ctx, ch)
	if err == nil {
		return ch, true, nil
	}
	if !repositories.IsUniqueViolation(err) {
		return nil, false, storeErr(s.logger, err, nil)
	}

	ch, err = s.store.FindDMChannel(ctx, low, high)
	if err != nil {
		return nil, false, storeErr(s.logger, err, nil)
	}
	return ch, false, nil
}

// Open get-or-create 并附带最近一页消息
func (s *DMService) Open(ctx context.Context, userID, peerID uint) (*DMOpenResult, error) {
	ch, created, err := s.GetOrCreate(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	messages, err := s.page(ctx, ch.ID, 0, s.cfg.DefaultPageSize)
	if err != nil {
		return nil, err
	}
	view := s.channelView(ctx, ch, userID, nil)
	if n := len(messages); n > 0 {
		view.LastMessage = &messages[n-1]
	}
	return &DMOpenResult{Channel: view, Messages: messages, Created: created}, nil
}

// Send 发送私聊消息，仅参与者可发送
func (s *DMService) Send(ctx context.Context, senderID uint, req SendDMRequest) (*DMDelivery, error) {
	ch, err := s.participantChannel(ctx, senderID, req.ChannelID)
	if err != nil {
		return nil, err
	}
	content, err := utils.NormalizeContent(req.Content, s.cfg.MaxContentLength)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	sender, err := s.dir.GetUser(ctx, senderID)
	if err != nil {
		return nil, err
	}

	id, err := s.ids.NextID()
	if err != nil {
		s.logger.Error("generate direct message id failed", zap.Error(err))
		return nil, apperr.Store(err)
	}
	msg := &models.DirectMessage{
		ID:        id,
		ChannelID: ch.ID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateDirectMessage(ctx, msg); err != nil {
		return nil, storeErr(s.logger, err, ErrDMChannelNotFound)
	}
	return &DMDelivery{
		Message:      models.NewDirectMessageView(msg, sender.Summary()),
		Participants: []uint{ch.UserLow, ch.UserHigh},
	}, nil
}

// List 用户的私聊频道，附带对方信息和最后一条消息
func (s *DMService) List(ctx context.Context, userID uint) ([]models.DMChannelView, error) {
	channels, err := s.store.ListDMChannels(ctx, userID)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	if len(channels) == 0 {
		return []models.DMChannelView{}, nil
	}

	ids := make([]uint, len(channels))
	peerIDs := make([]uint, 0, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
		peerIDs = append(peerIDs, ch.Peer(userID))
	}
	last, err := s.store.LastDirectMessages(ctx, ids)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	senders := append(slices.Clone(peerIDs), userID)
	users, err := s.dir.store.GetUsers(ctx, senders)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}

	out := make([]models.DMChannelView, len(channels))
	for i := range channels {
		ch := &channels[i]
		out[i] = s.channelView(ctx, ch, userID, users)
		if m, ok := last[ch.ID]; ok {
			v := models.NewDirectMessageView(&m, summaryOf(users, m.SenderID))
			out[i].LastMessage = &v
		}
	}
	return out, nil
}

// History 与频道消息相同的游标分页，按时间正序
func (s *DMService) History(ctx context.Context, userID, channelID uint, limit int, beforeID int64) ([]models.DirectMessageView, error) {
	if _, err := s.participantChannel(ctx, userID, channelID); err != nil {
		return nil, err
	}
	limit = rootutils.PageSize(limit, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	return s.page(ctx, channelID, beforeID, limit)
}

func (s *DMService) participantChannel(ctx context.Context, userID, channelID uint) (*models.DirectMessageChannel, error) {
	ch, err := s.store.GetDMChannel(ctx, channelID)
	if err != nil {
		return nil, storeErr(s.logger, err, ErrDMChannelNotFound)
	}
	if !ch.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return ch, nil
}

func (s *DMService) page(ctx context.Context, channelID uint, beforeID int64, limit int) ([]models.DirectMessageView, error) {
	rows, err := s.store.ListDirectMessages(ctx, channelID, beforeID, limit)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	slices.Reverse(rows)

	var senderIDs []uint
	for _, m := range rows {
		if !slices.Contains(senderIDs, m.SenderID) {
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	users, err := s.dir.store.GetUsers(ctx, senderIDs)
	if err != nil {
		s.logger.Warn("load direct message senders failed", zap.Error(err))
	}

	views := make([]models.DirectMessageView, len(rows))
	for i := range rows {
		views[i] = models.NewDirectMessageView(&rows[i], summaryOf(users, rows[i].SenderID))
	}
	return views, nil
}

func (s *DMService) channelView(ctx context.Context, ch *models.DirectMessageChannel, userID uint, users map[uint]*models.User) models.DMChannelView {
	peerID := ch.Peer(userID)
	peer := summaryOf(users, peerID)
	if users == nil {
		if u, err := s.dir.store.GetUser(ctx, peerID); err == nil {
			peer = u.Summary()
		}
	}
	return models.DMChannelView{
		ID:        ch.ID,
		Peer:      peer,
		CreatedAt: ch.CreatedAt,
		UpdatedAt: ch.UpdatedAt,
	}
}

func summaryOf(users map[uint]*models.User, id uint) models.UserSummary {
	if u, ok := users[id]; ok {
		return u.Summary()
	}
	return models.UserSummary{ID: id}
}
