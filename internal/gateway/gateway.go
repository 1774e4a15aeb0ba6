// Package gateway implements the session gateway and broadcast router shared
// by the websocket and HTTP transports. Every mutating operation persists
// through a service first and publishes only after it succeeded.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/config"
	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/internal/services"
	jwtauth "github.com/Gopher0727/PropChat/middleware/jwt"
	logger "github.com/Gopher0727/PropChat/middleware/log"
	"github.com/Gopher0727/PropChat/pkg/apperr"
	"github.com/Gopher0727/PropChat/pkg/mq"
	"github.com/Gopher0727/PropChat/utils/ratelimit"
)

// 写入事件日志的领域事件类型
const (
	EventMessageCreated  = "chat.message.created"
	EventMessageEdited   = "chat.message.edited"
	EventMessageDeleted  = "chat.message.deleted"
	EventDMCreated       = "chat.dm.created"
	EventDMMessageSent   = "chat.dm.message_sent"
	EventPresenceChanged = "chat.presence.changed"
	EventChannelCreated  = "chat.channel.created"
)

var (
	ErrMissingToken    = apperr.Auth("missing bearer token")
	ErrInvalidToken    = apperr.Auth("invalid or expired token")
	ErrInactiveAccount = apperr.Auth("account is not active")
	ErrNotSubscribed   = apperr.Forbidden("join the channel first")
	ErrUnknownCommand  = apperr.Validation("unknown command")
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	VerifyToken(token string) (uint, error)
}

type Deps struct {
	Config    config.WebsocketConfig
	Tokens    TokenVerifier
	Directory *services.DirectoryService
	Messages  *services.MessageService
	Presence  *services.PresenceService
	DMs       *services.DMService
	Channels  *services.ChannelService
	Hub       *Hub
	Limiter   ratelimit.Limiter
	Rules     ratelimit.Rules
	Events    mq.Publisher
	Logger    *logger.Logger
}

type Gateway struct {
	cfg      config.WebsocketConfig
	tokens   TokenVerifier
	dir      *services.DirectoryService
	messages *services.MessageService
	presence *services.PresenceService
	dms      *services.DMService
	channels *services.ChannelService
	hub      *Hub
	limiter  ratelimit.Limiter
	rules    ratelimit.Rules
	events   mq.Publisher
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func New(d Deps) *Gateway {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Events == nil {
		d.Events = mq.NopPublisher{}
	}
	return &Gateway{
		cfg:      d.Config,
		tokens:   d.Tokens,
		dir:      d.Directory,
		messages: d.Messages,
		presence: d.Presence,
		dms:      d.DMs,
		channels: d.Channels,
		hub:      d.Hub,
		limiter:  d.Limiter,
		rules:    d.Rules,
		events:   d.Events,
		logger:   d.Logger.Named("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 由前端同源页面或受信任的客户端连接，来源检查交给反向代理
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

// Authenticate verifies the token and loads an active user. It touches no
// gateway state so a failed handshake leaves nothing behind.
func (g *Gateway) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	userID, err := g.tokens.VerifyToken(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeAuth, "invalid or expired token", err)
	}
	user, err := g.dir.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, ErrInactiveAccount
	}
	return user, nil
}

// ServeWS authenticates before upgrading; failures are plain HTTP 401s.
func (g *Gateway) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := g.Authenticate(ctx, jwtauth.ExtractToken(c.Request))
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeAuth {
			g.logger.ErrorContext(ctx, "websocket handshake failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(apperr.CodeOf(err).HTTPStatus(), gin.H{
			"code":  apperr.CodeOf(err),
			"error": apperr.PublicMessage(err),
		})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.WarnContext(ctx, "upgrade websocket failed", zap.Error(err))
		return
	}
	// 会话生命周期独立于 HTTP 请求，只保留 trace id
	base := logger.WithTraceID(context.Background(), logger.GetTraceID(ctx))
	g.Attach(base, conn, user)
}

// Attach registers an authenticated connection: implicit rooms, session set
// and presence, then starts the pumps.
func (g *Gateway) Attach(ctx context.Context, conn Conn, user *models.User) *Session {
	s := newSession(ctx, uuid.NewString(), user, conn, g.cfg, g.logger)

	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()

	g.hub.Subscribe(s, CompanyRoom(user.CompanyID))
	g.hub.Subscribe(s, UserRoom(user.ID))

	update, err := g.presence.Connect(s.ctx, user, s.ID)
	if err != nil {
		s.logger.Error("register session presence failed", zap.Error(err))
	}
	g.announcePresence(s.ctx, update)
	s.logger.Info("session connected", zap.Uint("company_id", user.CompanyID))

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		s.writePump()
	}()
	go func() {
		defer g.wg.Done()
		s.readPump(g.dispatch, g.detach)
	}()
	return s
}

// detach runs once per session when its read loop ends.
func (g *Gateway) detach(s *Session) {
	s.Close()
	rooms := g.hub.RemoveSession(s)

	// 会话 ctx 已取消，状态更新使用独立的 ctx
	ctx := logger.WithSessionID(logger.WithUserID(context.Background(), s.User.ID), s.ID)
	update, err := g.presence.Disconnect(ctx, s.User, s.ID)
	if err != nil {
		s.logger.Error("unregister session presence failed", zap.Error(err))
	}
	g.announcePresence(ctx, update)

	g.mu.Lock()
	delete(g.sessions, s.ID)
	g.mu.Unlock()
	s.logger.Info("session disconnected", zap.Int("rooms", len(rooms)))
}

// Shutdown closes every session and waits for their pumps to exit.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionCount 当前进程内的会话数
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// ---- 与传输层无关的操作，WebSocket 命令与 HTTP 接口共用 ----

// JoinChannel re-authorizes on every join. Other subscribers are told only
// when the session was not already in the room.
func (g *Gateway) JoinChannel(ctx context.Context, s *Session, channelID uint) (*ChannelRef, error) {
	if _, err := g.dir.Authorize(ctx, s.User.ID, channelID, services.ActionRead); err != nil {
		return nil, err
	}
	room := ChannelRoom(channelID)
	if g.hub.Subscribe(s, room) {
		g.hub.Publish(room, Event{
			Type: EvtChannelUserJoined,
			Data: MemberEvent{ChannelID: channelID, User: s.User.Summary()},
		}, s)
	}
	return &ChannelRef{ChannelID: channelID}, nil
}

// LeaveChannel is idempotent.
func (g *Gateway) LeaveChannel(s *Session, channelID uint) *ChannelRef {
	room := ChannelRoom(channelID)
	if g.hub.Unsubscribe(s, room) {
		g.hub.Publish(room, Event{
			Type: EvtChannelUserLeft,
			Data: MemberEvent{ChannelID: channelID, User: s.User.Summary()},
		}, nil)
	}
	return &ChannelRef{ChannelID: channelID}
}

func (g *Gateway) PostMessage(ctx context.Context, userID uint, req services.SendMessageRequest) (*models.MessageView, error) {
	if err := g.allow(ctx, ratelimit.ActionMessage, userID); err != nil {
		return nil, err
	}
	view, err := g.messages.Post(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	g.hub.Publish(ChannelRoom(view.ChannelID), Event{Type: EvtMessageNew, Data: view}, nil)
	g.emit(ctx, EventMessageCreated, userID, 0, channelKey(view.ChannelID), view)
	return view, nil
}

func (g *Gateway) EditMessage(ctx context.Context, userID uint, req services.EditMessageRequest) (*models.MessageView, error) {
	view, err := g.messages.Edit(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	g.hub.Publish(ChannelRoom(view.ChannelID), Event{Type: EvtMessageUpdated, Data: view}, nil)
	g.emit(ctx, EventMessageEdited, userID, 0, channelKey(view.ChannelID), view)
	return view, nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, userID uint, messageID int64) (*models.DeletedMessage, error) {
	deleted, err := g.messages.Delete(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	g.hub.Publish(ChannelRoom(deleted.ChannelID), Event{Type: EvtMessageDeleted, Data: deleted}, nil)
	g.emit(ctx, EventMessageDeleted, userID, 0, channelKey(deleted.ChannelID), deleted)
	return deleted, nil
}

func (g *Gateway) ListMessages(ctx context.Context, userID uint, req services.ListMessagesRequest) ([]models.MessageView, error) {
	return g.messages.Fetch(ctx, userID, req)
}

// Typing is never persisted. The sender must be subscribed to the channel.
func (g *Gateway) Typing(ctx context.Context, s *Session, channelID uint, started bool) error {
	room := ChannelRoom(channelID)
	if !g.hub.IsSubscribed(s, room) {
		return ErrNotSubscribed
	}
	if err := g.allow(ctx, ratelimit.ActionTyping, s.User.ID); err != nil {
		return err
	}
	typ := EvtUserStoppedTyping
	if started {
		typ = EvtUserTyping
	}
	g.hub.Publish(room, Event{
		Type: typ,
		Data: MemberEvent{ChannelID: channelID, User: s.User.Summary()},
	}, s)
	return nil
}

// UpdatePresence broadcasts only inside the user's company.
func (g *Gateway) UpdatePresence(ctx context.Context, userID uint, status string) (*models.Presence, error) {
	update, err := g.presence.SetStatus(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	g.announcePresence(ctx, update)
	return &update.Presence, nil
}

func (g *Gateway) OpenDM(ctx context.Context, userID, peerID uint) (*services.DMOpenResult, error) {
	result, err := g.dms.Open(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	if result.Created {
		g.emit(ctx, EventDMCreated, userID, 0, dmKey(result.Channel.ID), result.Channel)
	}
	return result, nil
}

// SendDM delivers only to the participants' personal rooms.
func (g *Gateway) SendDM(ctx context.Context, userID uint, req services.SendDMRequest) (*models.DirectMessageView, error) {
	if err := g.allow(ctx, ratelimit.ActionMessage, userID); err != nil {
		return nil, err
	}
	delivery, err := g.dms.Send(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	event := Event{Type: EvtDMNew, Data: DMEvent{ChannelID: req.ChannelID, Message: delivery.Message}}
	for _, participant := range delivery.Participants {
		g.hub.Publish(UserRoom(participant), event, nil)
	}
	g.emit(ctx, EventDMMessageSent, userID, 0, dmKey(req.ChannelID), delivery.Message)
	return &delivery.Message, nil
}

func (g *Gateway) ListDMs(ctx context.Context, userID uint) ([]models.DMChannelView, error) {
	return g.dms.List(ctx, userID)
}

func (g *Gateway) DMHistory(ctx context.Context, userID, channelID uint, limit int, beforeID int64) ([]models.DirectMessageView, error) {
	return g.dms.History(ctx, userID, channelID, limit, beforeID)
}

func (g *Gateway) CreateChannel(ctx context.Context, userID uint, req services.CreateChannelRequest) (*models.Channel, error) {
	channel, err := g.channels.CreateChannel(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	g.emit(ctx, EventChannelCreated, userID, channel.CompanyID, channelKey(channel.ID), channel)
	return channel, nil
}

func (g *Gateway) Overview(ctx context.Context, userID uint) (*services.ServerOverview, error) {
	return g.channels.Overview(ctx, userID)
}

func (g *Gateway) announcePresence(ctx context.Context, update *services.PresenceUpdate) {
	if update == nil {
		return
	}
	g.hub.Publish(CompanyRoom(update.CompanyID), Event{Type: EvtUserPresence, Data: update.Presence}, nil)
	g.emit(ctx, EventPresenceChanged, update.Presence.UserID, update.CompanyID,
		"user:"+strconv.FormatUint(uint64(update.Presence.UserID), 10), update.Presence)
}

func (g *Gateway) allow(ctx context.Context, action string, userID uint) error {
	if g.limiter == nil {
		return nil
	}
	ok, err := g.limiter.Allow(ctx, ratelimit.Key(action, userID), g.rules[action])
	if err != nil {
		g.logger.ErrorContext(ctx, "rate limiter unavailable", zap.String("action", action), zap.Error(err))
		return apperr.Store(err)
	}
	if !ok {
		return apperr.RateLimited(fmt.Sprintf("too many %s actions, slow down", action))
	}
	return nil
}

func (g *Gateway) emit(ctx context.Context, typ string, actorID, companyID uint, key string, payload any) {
	err := g.events.Publish(ctx, mq.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		ActorID:    actorID,
		CompanyID:  companyID,
		Key:        key,
		Payload:    payload,
	})
	if err != nil {
		g.logger.WarnContext(ctx, "publish domain event failed", zap.String("type", typ), zap.Error(err))
	}
}

func channelKey(id uint) string { return "channel:" + strconv.FormatUint(uint64(id), 10) }
func dmKey(id uint) string      { return "dm:" + strconv.FormatUint(uint64(id), 10) }
