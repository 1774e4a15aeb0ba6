package mq

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/internal/utils"
)

const publishTimeout = 10 * time.Second

// AsyncPublisher 通过协程池投递事件，调用方永不阻塞。队列满时丢弃并记录日志
type AsyncPublisher struct {
	inner  Publisher
	pool   *utils.WorkerPool
	logger *zap.Logger
}

func NewAsyncPublisher(inner Publisher, pool *utils.WorkerPool, logger *zap.Logger) *AsyncPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncPublisher{inner: inner, pool: pool, logger: logger}
}

// Publish 总是返回 nil；失败只记录日志。ctx 仅用于取消前的检查，实际发送使用独立超时
func (a *AsyncPublisher) Publish(_ context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	ok := a.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := a.inner.Publish(ctx, event); err != nil {
			a.logger.Warn("publish domain event failed", zap.String("type", event.Type), zap.Error(err))
		}
	})
	if !ok {
		a.logger.Warn("event queue full, dropping domain event", zap.String("type", event.Type))
	}
	return nil
}

// Close 停止协程池 (排空队列) 后关闭底层生产者
func (a *AsyncPublisher) Close() error {
	a.pool.Stop()
	return a.inner.Close()
}
