package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/internal/gateway"
	"github.com/Gopher0727/PropChat/internal/middlewares"
	"github.com/Gopher0727/PropChat/internal/services"
	logger "github.com/Gopher0727/PropChat/middleware/log"
	"github.com/Gopher0727/PropChat/pkg/apperr"
)

// ChatHandler REST 接口，所有变更经由网关执行，因此同样会推送给 WebSocket 订阅者
type ChatHandler struct {
	gw     *gateway.Gateway
	logger *logger.Logger
}

func NewChatHandler(gw *gateway.Gateway, l *logger.Logger) *ChatHandler {
	if l == nil {
		l = logger.NewNop()
	}
	return &ChatHandler{gw: gw, logger: l.Named("http")}
}

type postMessageBody struct {
	Content  string `json:"content" binding:"required"`
	ParentID *int64 `json:"parent_id,string,omitempty"`
}

type contentBody struct {
	Content string `json:"content" binding:"required"`
}

// GetServer 当前用户所在公司的服务器、可见频道、角色与成员状态
func (h *ChatHandler) GetServer(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	overview, err := h.gw.Overview(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok200(c, overview)
}

// CreateChannel 创建频道，需要 manage_channels
func (h *ChatHandler) CreateChannel(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	var req services.CreateChannelRequest
	if !h.bind(c, &req) {
		return
	}
	channel, err := h.gw.CreateChannel(c.Request.Context(), userID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, channel)
}

// ListMessages 频道消息，新到旧；before_id 为上一页最旧消息的 ID
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	channelID, ok := h.uintParam(c, "channel_id")
	if !ok {
		return
	}
	limit, beforeID, ok := h.page(c)
	if !ok {
		return
	}
	messages, err := h.gw.ListMessages(c.Request.Context(), userID, services.ListMessagesRequest{
		ChannelID: channelID,
		Limit:     limit,
		BeforeID:  beforeID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok200(c, messages)
}

func (h *ChatHandler) PostMessage(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	channelID, ok := h.uintParam(c, "channel_id")
	if !ok {
		return
	}
	var body postMessageBody
	if !h.bind(c, &body) {
		return
	}
	view, err := h.gw.PostMessage(c.Request.Context(), userID, services.SendMessageRequest{
		ChannelID: channelID,
		Content:   body.Content,
		ParentID:  body.ParentID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, view)
}

func (h *ChatHandler) EditMessage(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	messageID, ok := h.int64Param(c, "message_id")
	if !ok {
		return
	}
	var body contentBody
	if !h.bind(c, &body) {
		return
	}
	view, err := h.gw.EditMessage(c.Request.Context(), userID, services.EditMessageRequest{
		MessageID: messageID,
		Content:   body.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok200(c, view)
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	messageID, ok := h.int64Param(c, "message_id")
	if !ok {
		return
	}
	deleted, err := h.gw.DeleteMessage(c.Request.Context(), userID, messageID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok200(c, deleted)
}

// ListDMs 私聊列表，按最近活动排序
func (h *ChatHandler) ListDMs(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	channels, err := h.gw.ListDMs(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok200(c, channels)
}

// OpenDM 幂等；首次创建返回 201
func (h *ChatHandler) OpenDM(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	var req services.OpenDMRequest
	if !h.bind(c, &req) {
		return
	}
	result, err := h.gw.OpenDM(c.Request.Context(), userID, req.PeerUserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respond(c, status, result)
}

func (h *ChatHandler) DMHistory(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	channelID, ok := h.uintParam(c, "channel_id")
	if !ok {
		return
	}
	limit, beforeID, ok := h.page(c)
	if !ok {
		return
	}
	messages, err := h.gw.DMHistory(c.Request.Context(), userID, channelID, limit, beforeID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok200(c, messages)
}

func (h *ChatHandler) SendDM(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	channelID, ok := h.uintParam(c, "channel_id")
	if !ok {
		return
	}
	var body contentBody
	if !h.bind(c, &body) {
		return
	}
	message, err := h.gw.SendDM(c.Request.Context(), userID, services.SendDMRequest{
		ChannelID: channelID,
		Content:   body.Content,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, message)
}

func (h *ChatHandler) UpdatePresence(c *gin.Context) {
	userID, ok := h.user(c)
	if !ok {
		return
	}
	var req gateway.PresenceRequest
	if !h.bind(c, &req) {
		return
	}
	presence, err := h.gw.UpdatePresence(c.Request.Context(), userID, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok200(c, presence)
}

// ---- helpers ----

func (h *ChatHandler) user(c *gin.Context) (uint, bool) {
	userID, ok := middlewares.UserID(c)
	if !ok {
		h.fail(c, apperr.Auth("unauthorized"))
	}
	return userID, ok
}

func (h *ChatHandler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		h.fail(c, apperr.Wrap(apperr.CodeValidation, "invalid request body", err))
		return false
	}
	return true
}

func (h *ChatHandler) uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		h.fail(c, apperr.Validation("invalid "+name))
		return 0, false
	}
	return uint(v), true
}

func (h *ChatHandler) int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		h.fail(c, apperr.Validation("invalid "+name))
		return 0, false
	}
	return v, true
}

// page 解析 limit 与 before_id 查询参数；越界的 limit 由服务层修正
func (h *ChatHandler) page(c *gin.Context) (int, int64, bool) {
	var (
		limit    int
		beforeID int64
		err      error
	)
	if s := c.Query("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			h.fail(c, apperr.Validation("invalid limit"))
			return 0, 0, false
		}
	}
	if s := c.Query("before_id"); s != "" {
		if beforeID, err = strconv.ParseInt(s, 10, 64); err != nil {
			h.fail(c, apperr.Validation("invalid before_id"))
			return 0, 0, false
		}
	}
	return limit, beforeID, true
}

func (h *ChatHandler) fail(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeStore {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code.HTTPStatus(), gin.H{
		"code":  code,
		"error": apperr.PublicMessage(err),
	})
}

func ok200(c *gin.Context, data any) {
	respond(c, http.StatusOK, data)
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}
