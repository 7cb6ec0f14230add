package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"chatparty/service/chat"
	"chatparty/tools/errs"
)

func drainErrorFrame(t *testing.T, sess *chat.Client) (string, chat.ErrorPayload) {
	t.Helper()
	select {
	case raw := <-sess.Send:
		var f struct {
			Event   string            `json:"event"`
			Payload chat.ErrorPayload `json:"payload"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal error frame: %v", err)
		}
		return f.Event, f.Payload
	default:
		t.Fatalf("no frame queued on the session")
		return "", chat.ErrorPayload{}
	}
}

func TestDispatchSendMessage(t *testing.T) {
	convs := newFakeConvStore(groupConv("conv_1", "u1", "u1"))
	msgs := &fakeMsgStore{}
	gw, p := newTestGateway(convs, msgs)
	d := NewDispatcher(gw)
	sess := chat.NewClient("conn_1", "u1", "alice", nil, 4)

	d.HandleFrame(context.Background(), sess, &chat.InboundFrame{
		Event:   chat.EvSendMessage,
		Payload: map[string]any{"conversationId": "conv_1", "body": "hi"},
	})

	if len(msgs.appended) != 1 {
		t.Fatalf("appended = %d", len(msgs.appended))
	}
	if len(p.published) != 1 || p.published[0].event != chat.EvNewMessage {
		t.Fatalf("published = %+v", p.published)
	}
	if len(sess.Send) != 0 {
		t.Fatalf("successful send must not queue an error frame")
	}
}

func TestDispatchSendErrorGoesToSenderOnly(t *testing.T) {
	convs := newFakeConvStore(groupConv("conv_1", "u1", "u1"))
	gw, p := newTestGateway(convs, &fakeMsgStore{})
	d := NewDispatcher(gw)
	sess := chat.NewClient("conn_1", "outsider", "eve", nil, 4)

	d.HandleFrame(context.Background(), sess, &chat.InboundFrame{
		Event:   chat.EvSendMessage,
		Payload: map[string]any{"conversationId": "conv_1", "body": "hi"},
	})

	event, payload := drainErrorFrame(t, sess)
	if event != chat.EvMessageError {
		t.Fatalf("event = %q", event)
	}
	if payload.Code != errs.ForbiddenErrorCode {
		t.Fatalf("code = %d, want %d", payload.Code, errs.ForbiddenErrorCode)
	}
	if len(p.published) != 0 {
		t.Fatalf("error must not reach the room")
	}
}

func TestDispatchDeleteConflictFrame(t *testing.T) {
	msgs := &fakeMsgStore{deleteErr: errs.ErrConflict.WrapMsg("message already deleted")}
	gw, _ := newTestGateway(newFakeConvStore(), msgs)
	d := NewDispatcher(gw)
	sess := chat.NewClient("conn_1", "u1", "alice", nil, 4)

	d.HandleFrame(context.Background(), sess, &chat.InboundFrame{
		Event:   chat.EvDeleteMessage,
		Payload: map[string]any{"messageId": "msg_1"},
	})

	event, payload := drainErrorFrame(t, sess)
	if event != chat.EvDeleteError || payload.Code != errs.ConflictErrorCode {
		t.Fatalf("got %q code %d", event, payload.Code)
	}
}

func TestDispatchJoinRoomIgnoresBadPayload(t *testing.T) {
	gw, p := newTestGateway(newFakeConvStore(), &fakeMsgStore{})
	d := NewDispatcher(gw)
	sess := chat.NewClient("conn_1", "u1", "alice", nil, 4)

	d.HandleFrame(context.Background(), sess, &chat.InboundFrame{
		Event:   chat.EvJoinRoom,
		Payload: map[string]any{},
	})
	if len(p.subs) != 0 {
		t.Fatalf("empty conversation id must not subscribe")
	}
	if len(sess.Send) != 0 {
		t.Fatalf("join-room has no error frame on the wire protocol")
	}
}

func TestDispatchUnknownEvent(t *testing.T) {
	gw, p := newTestGateway(newFakeConvStore(), &fakeMsgStore{})
	d := NewDispatcher(gw)
	sess := chat.NewClient("conn_1", "u1", "alice", nil, 4)

	d.HandleFrame(context.Background(), sess, &chat.InboundFrame{Event: "no-such-event"})
	if len(p.published) != 0 || len(sess.Send) != 0 {
		t.Fatalf("unknown events are dropped silently")
	}
}
