package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/internal/models"
)

// PresenceUpdate 状态变更及其广播范围
type PresenceUpdate struct {
	Presence  models.Presence
	CompanyID uint
}

// PresenceService 在线状态。会话引用计数由 SessionRegistry 维护:
// 第一个会话上线时置为 online，最后一个会话断开时置为 offline
type PresenceService struct {
	dir      *DirectoryService
	store    PresenceStore
	sessions SessionRegistry
	now      Clock
	logger   *zap.Logger
}

func NewPresenceService(dir *DirectoryService, store PresenceStore, sessions SessionRegistry, now Clock, logger *zap.Logger) *PresenceService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &PresenceService{dir: dir, store: store, sessions: sessions, now: now, logger: logger}
}

// Connect 登记会话；仅当这是用户的第一个在线会话时返回状态变更
func (s *PresenceService) Connect(ctx context.Context, user *models.User, sessionID string) (*PresenceUpdate, error) {
	first, err := s.sessions.AddSession(ctx, user.ID, sessionID)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	if !first {
		return nil, nil
	}
	return s.upsert(ctx, user, models.StatusOnline)
}

// Disconnect 注销会话；仅当用户已没有其他会话时置为 offline 并返回状态变更
func (s *PresenceService) Disconnect(ctx context.Context, user *models.User, sessionID string) (*PresenceUpdate, error) {
	last, err := s.sessions.RemoveSession(ctx, user.ID, sessionID)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	if !last {
		return nil, nil
	}
	return s.upsert(ctx, user, models.StatusOffline)
}

// SetStatus 用户主动设置状态；非法值按 online 处理
func (s *PresenceService) SetStatus(ctx context.Context, userID uint, status string) (*PresenceUpdate, error) {
	user, err := s.dir.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.upsert(ctx, user, models.NormalizeStatus(status))
}

// Statuses 批量查询，没有记录的用户视为 offline
func (s *PresenceService) Statuses(ctx context.Context, userIDs []uint) (map[uint]models.Presence, error) {
	found, err := s.store.GetPresences(ctx, userIDs)
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	out := make(map[uint]models.Presence, len(userIDs))
	for _, id := range userIDs {
		p, ok := found[id]
		if !ok {
			p = models.Presence{UserID: id, Status: models.StatusOffline}
		}
		out[id] = p
	}
	return out, nil
}

func (s *PresenceService) upsert(ctx context.Context, user *models.User, status string) (*PresenceUpdate, error) {
	p, err := s.store.UpsertPresence(ctx, user.ID, status, s.now())
	if err != nil {
		return nil, storeErr(s.logger, err, nil)
	}
	return &PresenceUpdate{Presence: *p, CompanyID: user.CompanyID}, nil
}
