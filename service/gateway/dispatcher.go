package gateway

import (
	"context"

	"chatparty/logger"
	"chatparty/service/chat"
	"chatparty/tools/decode"
)

// Dispatcher decodes inbound frames and drives the gateway. Failures go
// back to the requesting session only, as the event-specific error frame
// the clients already understand.
type Dispatcher struct {
	gw *Gateway
}

func NewDispatcher(gw *Gateway) *Dispatcher { return &Dispatcher{gw: gw} }

func (d *Dispatcher) HandleFrame(ctx context.Context, sess *chat.Client, frame *chat.InboundFrame) {
	switch frame.Event {
	case chat.EvJoinRoom:
		req, err := decode.DecodeMap[chat.RoomReq](frame.Payload)
		if err != nil || req.ConversationID == "" {
			logger.Infof("[dispatch] bad join-room payload conn=%s err=%v", sess.ConnID, err)
			return
		}
		d.gw.JoinRoom(sess, req.ConversationID)

	case chat.EvLeaveRoom:
		req, err := decode.DecodeMap[chat.RoomReq](frame.Payload)
		if err != nil || req.ConversationID == "" {
			return
		}
		d.gw.LeaveRoom(sess, req.ConversationID)

	case chat.EvSendMessage:
		req, err := decode.DecodeMap[chat.SendMessageReq](frame.Payload)
		if err != nil {
			d.replyErr(sess, chat.EvMessageError, err)
			return
		}
		if _, err := d.gw.Send(ctx, req.ConversationID, sess.UserID, req.Body, req.Attachment); err != nil {
			d.replyErr(sess, chat.EvMessageError, err)
		}

	case chat.EvEditMessage:
		req, err := decode.DecodeMap[chat.EditMessageReq](frame.Payload)
		if err != nil {
			d.replyErr(sess, chat.EvEditError, err)
			return
		}
		if _, err := d.gw.Edit(ctx, req.MessageID, sess.UserID, req.NewBody); err != nil {
			d.replyErr(sess, chat.EvEditError, err)
		}

	case chat.EvDeleteMessage:
		req, err := decode.DecodeMap[chat.DeleteMessageReq](frame.Payload)
		if err != nil {
			d.replyErr(sess, chat.EvDeleteError, err)
			return
		}
		if _, err := d.gw.Delete(ctx, req.MessageID, sess.UserID); err != nil {
			d.replyErr(sess, chat.EvDeleteError, err)
		}

	case chat.EvLeaveGroup:
		req, err := decode.DecodeMap[chat.RoomReq](frame.Payload)
		if err != nil {
			d.replyErr(sess, chat.EvLeaveGroupError, err)
			return
		}
		if err := d.gw.LeaveGroup(ctx, req.ConversationID, sess.UserID, sess.DisplayName, sess); err != nil {
			d.replyErr(sess, chat.EvLeaveGroupError, err)
		}

	case chat.EvDeleteChat:
		req, err := decode.DecodeMap[chat.RoomReq](frame.Payload)
		if err != nil {
			d.replyErr(sess, chat.EvDeleteChatError, err)
			return
		}
		if err := d.gw.DeleteChat(ctx, req.ConversationID, sess.UserID); err != nil {
			d.replyErr(sess, chat.EvDeleteChatError, err)
		}

	default:
		logger.Infof("[dispatch] unknown event %q conn=%s", frame.Event, sess.ConnID)
	}
}

func (d *Dispatcher) HandleDisconnect(sess *chat.Client) {
	d.gw.Disconnect(sess)
}

func (d *Dispatcher) replyErr(sess *chat.Client, event string, err error) {
	if raw := chat.BuildErrorFrame(event, err); raw != nil {
		_ = sess.TrySend(raw)
	}
}
