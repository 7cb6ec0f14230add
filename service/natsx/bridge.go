package natsx

import (
	"encoding/json"

	"chatparty/logger"
	"chatparty/tools/safe"
)

// Cross-instance fan-out. The in-memory room table is local to one
// gateway instance; the bridge replays every published frame onto a NATS
// subject so sibling instances can deliver it to their own subscribers.
// Deployment-optional: a nil bridge means single-instance.

const subjectPrefix = "chat.room."
const subjectWildcard = subjectPrefix + ">"

// RoomPublisher is the local delivery sink for remote frames; the
// presence router satisfies it.
type RoomPublisher interface {
	Publish(conversationID string, payload []byte)
}

type envelope struct {
	Origin         string          `json:"origin"`
	ConversationID string          `json:"conversationId"`
	Frame          json.RawMessage `json:"frame"`
}

type Bridge struct {
	c      *NatsxClient
	gwID   string
	router RoomPublisher
}

func NewBridge(c *NatsxClient, gwID string, router RoomPublisher) *Bridge {
	return &Bridge{c: c, gwID: gwID, router: router}
}

// Start subscribes to the room subject space and feeds remote frames
// into the local router. Frames that originated here are skipped.
func (b *Bridge) Start() error {
	return b.c.Subscribe(subjectWildcard, "", func(_ string, data []byte) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Infof("[bridge] bad envelope: %v", err)
			return
		}
		if env.Origin == b.gwID || env.ConversationID == "" {
			return
		}
		b.router.Publish(env.ConversationID, env.Frame)
	})
}

// Republish sends a locally-published frame to the other instances.
// Best-effort: a broker hiccup is logged, local delivery already happened.
func (b *Bridge) Republish(conversationID string, frame []byte) {
	env := envelope{Origin: b.gwID, ConversationID: conversationID, Frame: frame}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Errorf("[bridge] marshal envelope: %v", err)
		return
	}
	safe.SafeGo(func() {
		if err := b.c.Publish(subjectPrefix+conversationID, data); err != nil {
			logger.Infof("[bridge] republish conv=%s err=%v", conversationID, err)
		}
	})
}
