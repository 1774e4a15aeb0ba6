package gateway

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/internal/services"
	"github.com/Gopher0727/PropChat/pkg/apperr"
)

// dispatch handles one command on the session's read goroutine. Every command
// with an id gets exactly one ack or error back; events caused by the command
// reach the sender through its rooms like everyone else.
func (g *Gateway) dispatch(s *Session, cmd Command) {
	data, err := g.handle(s, cmd)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeStore {
			s.logger.Error("command failed", zap.String("type", cmd.Type), zap.Error(err))
		} else {
			s.logger.Debug("command rejected", zap.String("type", cmd.Type), zap.Error(err))
		}
		s.Send(errorEvent(cmd.ID, err))
		return
	}
	if cmd.Type == CmdPing {
		s.Send(Event{Type: EvtPong, Ref: cmd.ID})
		return
	}
	s.Send(Event{Type: EvtAck, Ref: cmd.ID, Data: data})
}

func (g *Gateway) handle(s *Session, cmd Command) (any, error) {
	ctx := s.Context()
	userID := s.User.ID

	switch cmd.Type {
	case CmdPing:
		return nil, nil

	case CmdChannelJoin:
		var req ChannelRef
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return g.JoinChannel(ctx, s, req.ChannelID)

	case CmdChannelLeave:
		var req ChannelRef
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return g.LeaveChannel(s, req.ChannelID), nil

	case CmdMessageSend:
		var req services.SendMessageRequest
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return g.PostMessage(ctx, userID, req)

	case CmdMessageEdit:
		var req services.EditMessageRequest
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return g.EditMessage(ctx, userID, req)

	case CmdMessageDelete:
		var req MessageRef
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return g.DeleteMessage(ctx, userID, req.MessageID)

	case CmdMessagesList:
		var req services.ListMessagesRequest
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return g.ListMessages(ctx, userID, req)

	case CmdTypingStart, CmdTypingStop:
		var req ChannelRef
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return nil, g.Typing(ctx, s, req.ChannelID, cmd.Type == CmdTypingStart)

	case CmdPresenceUpdate:
		var req PresenceRequest
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return g.UpdatePresence(ctx, userID, req.Status)

	case CmdDMOpen:
		var req services.OpenDMRequest
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return g.OpenDM(ctx, userID, req.PeerUserID)

	case CmdDMSend:
		var req services.SendDMRequest
		if err := decode(cmd.Data, &req); err != nil {
			return nil, err
		}
		return g.SendDM(ctx, userID, req)

	default:
		return nil, ErrUnknownCommand
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return apperr.Validation("missing command data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Wrap(apperr.CodeValidation, "invalid command data", err)
	}
	return nil
}
