package chat

import (
	"encoding/json"
	"testing"

	"chatparty/tools/errs"
)

func TestParseFrame(t *testing.T) {
	raw := []byte(`{"event":"send-message","payload":{"conversationId":"c1","body":"hi"}}`)
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Event != EvSendMessage {
		t.Fatalf("event = %q", f.Event)
	}
	if f.Payload["body"] != "hi" {
		t.Fatalf("payload = %v", f.Payload)
	}
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	if _, err := ParseFrame([]byte("not json")); err == nil {
		t.Fatalf("want error for malformed frame")
	}
	if _, err := ParseFrame([]byte(`{"payload":{}}`)); !errs.ErrValidation.Is(err) {
		t.Fatalf("frame without event should be a validation error, got %v", err)
	}
}

func TestBuildFrameShape(t *testing.T) {
	raw, err := BuildFrame(EvMessageDeleted, MessageDeletedPayload{
		ConversationID: "c1",
		MessageID:      "m1",
		UserID:         "u1",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var got struct {
		Event   string                `json:"event"`
		Payload MessageDeletedPayload `json:"payload"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Event != EvMessageDeleted || got.Payload.MessageID != "m1" {
		t.Fatalf("frame = %+v", got)
	}
}

func TestBuildErrorFrameKeepsCode(t *testing.T) {
	err := errs.ErrNotMember.WrapMsg("not a member", "user_id", "u2")
	raw := BuildErrorFrame(EvMessageError, err)

	var got struct {
		Event   string       `json:"event"`
		Payload ErrorPayload `json:"payload"`
	}
	if uerr := json.Unmarshal(raw, &got); uerr != nil {
		t.Fatalf("unmarshal: %v", uerr)
	}
	if got.Event != EvMessageError {
		t.Fatalf("event = %q", got.Event)
	}
	if got.Payload.Code != errs.NotMemberErrorCode {
		t.Fatalf("code = %d, want %d", got.Payload.Code, errs.NotMemberErrorCode)
	}
}

func TestBuildErrorFrameUnknownError(t *testing.T) {
	raw := BuildErrorFrame(EvEditError, errs.New("boom"))
	var got struct {
		Payload ErrorPayload `json:"payload"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Payload.Code != errs.ServerInternalErrorCode {
		t.Fatalf("plain errors should surface as internal, got code %d", got.Payload.Code)
	}
}
