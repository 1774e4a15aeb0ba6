package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/pkg/apperr"
)

// ReceiptService 频道已读位置，每次拉取都会覆盖
type ReceiptService struct {
	store  ReceiptStore
	now    Clock
	logger *zap.Logger
}

func NewReceiptService(store ReceiptStore, now Clock, logger *zap.Logger) *ReceiptService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ReceiptService{store: store, now: now, logger: logger}
}

// Mark 把已读位置设为 messageID，翻看旧页时指针随之回退
func (s *ReceiptService) Mark(ctx context.Context, channelID, userID uint, messageID int64) error {
	if messageID <= 0 {
		return nil
	}
	if err := s.store.UpsertReadReceipt(ctx, channelID, userID, messageID, s.now()); err != nil {
		return storeErr(s.logger, err, nil)
	}
	return nil
}

// Get 没有记录时返回 NotFound
func (s *ReceiptService) Get(ctx context.Context, channelID, userID uint) (*models.ReadReceipt, error) {
	r, err := s.store.GetReadReceipt(ctx, channelID, userID)
	if err != nil {
		return nil, storeErr(s.logger, err, apperr.NotFound("no read receipt"))
	}
	return r, nil
}
