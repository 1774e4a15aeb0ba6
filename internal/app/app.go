// Package app wires configuration, storage, services and transports into a
// runnable chat server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/PropChat/config"
	"github.com/Gopher0727/PropChat/internal/gateway"
	"github.com/Gopher0727/PropChat/internal/handlers"
	"github.com/Gopher0727/PropChat/internal/repositories"
	"github.com/Gopher0727/PropChat/internal/repositories/memstore"
	"github.com/Gopher0727/PropChat/internal/routers"
	"github.com/Gopher0727/PropChat/internal/services"
	"github.com/Gopher0727/PropChat/internal/storage"
	"github.com/Gopher0727/PropChat/internal/utils"
	jwtauth "github.com/Gopher0727/PropChat/middleware/jwt"
	logger "github.com/Gopher0727/PropChat/middleware/log"
	"github.com/Gopher0727/PropChat/pkg/mq"
	"github.com/Gopher0727/PropChat/utils/ratelimit"
	"github.com/Gopher0727/PropChat/utils/snowflake"
)

// App 聊天服务的全部组件
type App struct {
	cfg    *config.Config
	logger *logger.Logger

	Engine  *gin.Engine
	Gateway *gateway.Gateway
	Tokens  *jwtauth.TokenManager

	// Memory 与 Demo 仅在 memory 存储模式下非空
	Memory *memstore.Store
	Demo   *Demo

	hub    *gateway.Hub
	events mq.Publisher
	redis  *redis.Client
	db     *gorm.DB
	server *http.Server
}

// stores 服务层依赖的存储实现
type stores struct {
	directory services.DirectoryStore
	messages  services.MessageStore
	receipts  services.ReceiptStore
	presence  services.PresenceStore
	dms       services.DMStore
}

// New 按配置初始化所有组件。返回错误时已创建的资源会被释放
func New(ctx context.Context, cfg *config.Config, l *logger.Logger) (_ *App, err error) {
	if l == nil {
		l = logger.NewNop()
	}
	a := &App{cfg: cfg, logger: l}
	defer func() {
		if err != nil {
			_ = a.release()
		}
	}()

	// 初始化 Redis (可选)
	if cfg.Redis.Enabled {
		if a.redis, err = storage.InitRedis(ctx, cfg.Redis); err != nil {
			return nil, fmt.Errorf("redis 初始化失败: %w", err)
		}
	}

	// 初始化存储
	st, err := a.initStores(ctx)
	if err != nil {
		return nil, err
	}

	sessions, err := a.initSessions(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := snowflake.NewGenerator(cfg.Snowflake.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("snowflake 初始化失败: %w", err)
	}

	// 领域事件: 协程池异步投递到 Kafka，Kafka 不可用时降级为丢弃
	a.events = a.initEvents()

	// 初始化服务层
	zl := l.Named("service").Logger
	dir := services.NewDirectoryService(st.directory, zl)
	receipts := services.NewReceiptService(st.receipts, nil, zl)
	presence := services.NewPresenceService(dir, st.presence, sessions, nil, zl)

	a.Tokens = jwtauth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	a.hub = gateway.NewHub(cfg.Websocket.RouterBuffer, l)
	a.hub.Start()
	a.Gateway = gateway.New(gateway.Deps{
		Config:    cfg.Websocket,
		Tokens:    a.Tokens,
		Directory: dir,
		Messages:  services.NewMessageService(dir, st.messages, receipts, ids, cfg.Chat, nil, zl),
		Presence:  presence,
		DMs:       services.NewDMService(dir, st.dms, ids, cfg.Chat, nil, zl),
		Channels:  services.NewChannelService(dir, presence, zl),
		Hub:       a.hub,
		Limiter:   a.initLimiter(),
		Rules:     ratelimit.NewRules(cfg.RateLimit),
		Events:    a.events,
		Logger:    l,
	})

	// 配置并创建 Gin 引擎
	gin.SetMode(cfg.Server.Mode)
	a.Engine = gin.New()
	a.Engine.Use(gin.Recovery())
	routers.SetupRoutes(a.Engine, cfg, a.Gateway, handlers.NewChatHandler(a.Gateway, l), a.Tokens, l)

	if a.Demo != nil {
		a.logDemoTokens()
	}
	return a, nil
}

func (a *App) initStores(ctx context.Context) (*stores, error) {
	if a.cfg.Server.Storage == "memory" {
		a.Memory = memstore.New()
		a.Demo = SeedDemo(a.Memory)
		a.logger.Warn("using in-memory storage, data is lost on restart")
		return &stores{
			directory: a.Memory,
			messages:  a.Memory,
			receipts:  a.Memory,
			presence:  a.Memory,
			dms:       a.Memory,
		}, nil
	}

	db, err := storage.InitPostgres(a.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres 初始化失败: %w", err)
	}
	a.db = db
	a.logger.InfoContext(ctx, "postgres connected", zap.String("host", a.cfg.Postgres.Host))

	users := repositories.NewUserRepository(db, a.redis)
	return &stores{
		directory: repositories.NewDirectoryRepository(db, users),
		messages:  repositories.NewMessageRepository(db),
		receipts:  repositories.NewReceiptRepository(db),
		presence:  repositories.NewPresenceRepository(db),
		dms:       repositories.NewDMRepository(db),
	}, nil
}

// initSessions 会话集合保存在 Redis 中时，启动时清空上次运行遗留的会话
func (a *App) initSessions(ctx context.Context) (services.SessionRegistry, error) {
	if a.redis == nil {
		return repositories.NewLocalSessionRegistry(), nil
	}
	registry := repositories.NewRedisSessionRegistry(a.redis)
	if err := registry.Purge(ctx); err != nil {
		return nil, fmt.Errorf("清理遗留会话失败: %w", err)
	}
	return registry, nil
}

func (a *App) initLimiter() ratelimit.Limiter {
	if a.redis == nil {
		return ratelimit.NewLocalLimiter()
	}
	return ratelimit.NewRedisLimiter(a.redis, a.logger.Named("ratelimit").Logger, a.cfg.RateLimit.FailOpen)
}

func (a *App) initEvents() mq.Publisher {
	zl := a.logger.Named("events").Logger
	var inner mq.Publisher = mq.NopPublisher{}
	if a.cfg.Kafka.Enabled {
		producer, err := mq.NewKafkaProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, zl)
		if err != nil {
			a.logger.Warn("kafka producer unavailable, domain events are dropped", zap.Error(err))
		} else {
			inner = producer
		}
	}
	pool := utils.NewWorkerPool(a.cfg.WorkerPool.Size, a.cfg.WorkerPool.QueueSize, zl)
	pool.Start()
	return mq.NewAsyncPublisher(inner, pool, zl)
}

func (a *App) logDemoTokens() {
	for _, u := range a.Demo.Users() {
		token, err := a.Tokens.GenerateToken(u.ID)
		if err != nil {
			continue
		}
		a.logger.Info("demo user", zap.Uint("user_id", u.ID), zap.String("email", u.Email), zap.String("token", token))
	}
}

// Run 启动 HTTP 服务，阻塞直到 Shutdown 被调用或监听失败
func (a *App) Run() error {
	a.server = &http.Server{
		Addr:              ":" + strconv.Itoa(a.cfg.Server.Port),
		Handler:           a.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.Info("server listening", zap.String("addr", a.server.Addr), zap.String("storage", a.cfg.Server.Storage))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 依次停止 HTTP 服务、断开所有会话、停止广播并释放存储连接
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.Gateway != nil {
		if err := a.Gateway.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("gateway shutdown: %w", err))
		}
	}
	if err := a.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) release() error {
	var errs []error
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close events: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close postgres: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
