package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatparty/logger"
	"chatparty/tools/security"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// The transport hands decoded frames to a FrameHandler rather than
// calling the gateway directly, so this package never imports the
// orchestration layer; main wires the two together.
type FrameHandler interface {
	HandleFrame(ctx context.Context, sess *Client, frame *InboundFrame)
	HandleDisconnect(sess *Client)
}

// PresenceStore mirrors who is connected to which instance into shared
// storage; the redis implementation lives in service/storage.
type PresenceStore interface {
	Online(ctx context.Context, user, gatewayID string, ttl time.Duration) error
	Offline(ctx context.Context, user string) error
}

// WSServer owns the upgrade path and the per-connection read loop.
type WSServer struct {
	connMgr  *ConnManager
	handler  FrameHandler
	jwtOpts  security.Options
	presence PresenceStore // optional

	sendQueueSize int
	readLimit     int64
	pongWait      time.Duration
	presenceTTL   time.Duration
}

func NewWSServer(connMgr *ConnManager, handler FrameHandler, jwtOpts security.Options) *WSServer {
	return &WSServer{
		connMgr:       connMgr,
		handler:       handler,
		jwtOpts:       jwtOpts,
		sendQueueSize: 256,
		readLimit:     1 << 20,
		pongWait:      75 * time.Second,
		presenceTTL:   2 * time.Minute,
	}
}

// WithPresence turns on shared presence tracking.
func (s *WSServer) WithPresence(p PresenceStore, ttl time.Duration) *WSServer {
	s.presence = p
	if ttl > 0 {
		s.presenceTTL = ttl
	}
	return s
}

// HandleWS upgrades the connection, authenticates it from the token
// query parameter, and runs the read loop until the peer goes away.
func (s *WSServer) HandleWS(c *gin.Context) {
	token := c.Query("token")
	ident, err := security.Verify(s.jwtOpts, token)
	if err != nil {
		// hash, never log, the raw credential
		logger.Infof("[ws] rejected token=%s err=%v", security.HashToken(token), err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	sess := NewClient(uuid.NewString(), ident.UserID, ident.DisplayName, ws, s.sendQueueSize)
	if err := s.connMgr.Add(sess); err != nil {
		logger.Errorf("[ws] register conn user=%s err=%v", ident.UserID, err)
		_ = ws.Close()
		return
	}

	ws.SetReadLimit(s.readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.pongWait))
	ws.SetPongHandler(func(string) error {
		s.connMgr.Heartbeat(sess.ConnID)
		s.markOnline(sess)
		return ws.SetReadDeadline(time.Now().Add(s.pongWait))
	})
	s.markOnline(sess)

	go sess.WritePump()
	logger.Infof("[ws] connected user=%s conn=%s", sess.UserID, sess.ConnID)

	s.readLoop(sess)

	// unwind: transport may fire this path twice on racing close signals,
	// everything below tolerates that
	s.connMgr.Remove(sess.ConnID)
	s.handler.HandleDisconnect(sess)
	sess.Close()
	if s.presence != nil && !s.connMgr.UserOnline(sess.UserID) {
		// last session for this user on this instance
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.presence.Offline(ctx, sess.UserID); err != nil {
			logger.Infof("[ws] presence offline user=%s err=%v", sess.UserID, err)
		}
		cancel()
	}
	logger.Infof("[ws] disconnected user=%s conn=%s", sess.UserID, sess.ConnID)
}

func (s *WSServer) markOnline(sess *Client) {
	if s.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.presence.Online(ctx, sess.UserID, s.connMgr.GwID(), s.presenceTTL); err != nil {
		logger.Infof("[ws] presence online user=%s err=%v", sess.UserID, err)
	}
}

func (s *WSServer) readLoop(sess *Client) {
	for {
		mt, data, rerr := sess.WS.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", sess.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s", sess.ConnID)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", sess.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] bad frame conn=%s err=%v sample=%q", sess.ConnID, perr, sample)
			continue
		}

		s.connMgr.Heartbeat(sess.ConnID)
		s.handler.HandleFrame(context.Background(), sess, frame)
	}
}
