package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/Gopher0727/PropChat/internal/models"
	"github.com/Gopher0727/PropChat/pkg/apperr"
)

// 客户端命令
const (
	CmdChannelJoin    = "channel.join"
	CmdChannelLeave   = "channel.leave"
	CmdMessageSend    = "message.send"
	CmdMessageEdit    = "message.edit"
	CmdMessageDelete  = "message.delete"
	CmdMessagesList   = "messages.list"
	CmdTypingStart    = "typing.start"
	CmdTypingStop     = "typing.stop"
	CmdPresenceUpdate = "presence.update"
	CmdDMOpen         = "dm.open"
	CmdDMSend         = "dm.send"
	CmdPing           = "ping"
)

// 服务端推送事件
const (
	EvtMessageNew        = "message.new"
	EvtMessageUpdated    = "message.updated"
	EvtMessageDeleted    = "message.deleted"
	EvtChannelUserJoined = "channel.user_joined"
	EvtChannelUserLeft   = "channel.user_left"
	EvtUserTyping        = "user.typing"
	EvtUserStoppedTyping = "user.stopped_typing"
	EvtUserPresence      = "user.presence"
	EvtDMNew             = "dm.new"
	EvtPong              = "pong"
	EvtAck               = "ack"
	EvtError             = "error"
)

// Command 客户端帧: {"id": "<ref>", "type": "...", "data": {...}}
type Command struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event 服务端帧；Ref 回填触发它的命令 ID
type Event struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
	Data any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func errorEvent(ref string, err error) Event {
	return Event{
		Type: EvtError,
		Ref:  ref,
		Data: ErrorPayload{Code: apperr.CodeOf(err), Message: apperr.PublicMessage(err)},
	}
}

// ChannelRef 只携带频道 ID 的命令参数
type ChannelRef struct {
	ChannelID uint `json:"channel_id"`
}

type MessageRef struct {
	MessageID int64 `json:"message_id,string"`
}

type PresenceRequest struct {
	Status string `json:"status"`
}

// MemberEvent 加入/离开/打字事件负载
type MemberEvent struct {
	ChannelID uint               `json:"channel_id"`
	User      models.UserSummary `json:"user"`
}

// DMEvent dm.new 负载
type DMEvent struct {
	ChannelID uint                     `json:"channel_id"`
	Message   models.DirectMessageView `json:"message"`
}

// Room 广播范围
type Room string

func CompanyRoom(id uint) Room { return Room(fmt.Sprintf("company:%d", id)) }
func UserRoom(id uint) Room    { return Room(fmt.Sprintf("user:%d", id)) }
func ChannelRoom(id uint) Room { return Room(fmt.Sprintf("channel:%d", id)) }
