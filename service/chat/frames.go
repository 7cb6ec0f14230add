package chat

import (
	"encoding/json"
	"time"

	"chatparty/module/chat/model"
	"chatparty/tools/errs"
)

// Wire format: one JSON frame per websocket text message, an event name
// plus an event-specific payload. The routing key for every outbound
// event is the conversation id inside the payload.

// Inbound event names.
const (
	EvJoinRoom      = "join-room"
	EvLeaveRoom     = "leave-room"
	EvSendMessage   = "send-message"
	EvEditMessage   = "edit-message"
	EvDeleteMessage = "delete-message"
	EvLeaveGroup    = "leave-group"
	EvDeleteChat    = "delete-chat"
)

// Outbound event names, matching what clients already listen for.
const (
	EvNewMessage     = "new-message"
	EvMessageEdited  = "message-edited"
	EvMessageDeleted = "message-deleted"
	EvUserLeftGroup  = "user-left-group"
	EvChatDeleted    = "chat-deleted"
)

// Per-request error events, sent only to the offending session.
const (
	EvMessageError    = "message-error"
	EvEditError       = "edit-error"
	EvDeleteError     = "delete-error"
	EvLeaveGroupError = "leave-group-error"
	EvDeleteChatError = "delete-chat-error"
)

type InboundFrame struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

type OutboundFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func ParseFrame(raw []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.WrapMsg(err, "unmarshal frame")
	}
	if f.Event == "" {
		return nil, errs.ErrValidation.WrapMsg("frame has no event")
	}
	return &f, nil
}

func BuildFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(OutboundFrame{Event: event, Payload: payload})
}

// ---- inbound payload shapes ----

type SendMessageReq struct {
	ConversationID string            `json:"conversationId"`
	Body           string            `json:"body"`
	Attachment     *model.Attachment `json:"attachment"`
}

type EditMessageReq struct {
	MessageID string `json:"messageId"`
	NewBody   string `json:"newBody"`
}

type DeleteMessageReq struct {
	MessageID string `json:"messageId"`
}

type RoomReq struct {
	ConversationID string `json:"conversationId"`
}

// ---- outbound payload shapes ----

type MessageEditedPayload struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	NewBody        string    `json:"newBody"`
	EditedAt       time.Time `json:"editedAt"`
	UserID         string    `json:"userId"`
}

type MessageDeletedPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	UserID         string `json:"userId"`
}

type UserLeftGroupPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Username       string `json:"username"`
}

type ChatDeletedPayload struct {
	ConversationID string `json:"conversationId"`
	DeletedBy      string `json:"deletedBy"`
}

type ErrorPayload struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

// BuildErrorFrame shapes a request failure for the requesting session.
// Store and validation errors keep their code so the client can tell
// "you can't do that" from "that's already done" from "that's malformed".
func BuildErrorFrame(event string, err error) []byte {
	p := ErrorPayload{Code: errs.ServerInternalErrorCode, Msg: "internal error"}
	var ce *errs.CodeError
	if cerr, ok := errs.Unwrap(err).(*errs.CodeError); ok {
		ce = cerr
	}
	if ce != nil {
		p = ErrorPayload{Code: ce.Code, Msg: ce.Msg, Detail: ce.Detail}
	}
	raw, merr := BuildFrame(event, p)
	if merr != nil {
		return nil
	}
	return raw
}
