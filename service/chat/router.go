package chat

import (
	"sync"

	"chatparty/logger"
)

// Router is the presence table: conversation id -> subscribed sessions,
// and session -> subscribed conversation ids. One instance per process,
// created in main and passed by reference to the transport; nothing here
// is a package-level singleton. Delivery through Publish is best-effort,
// a session that is gone or not yet subscribed simply misses the event.
type Router struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	sessions map[*Client]map[string]struct{}
	fan      *Fanout
}

func NewRouter(fan *Fanout) *Router {
	return &Router{
		rooms:    make(map[string]map[*Client]struct{}),
		sessions: make(map[*Client]map[string]struct{}),
		fan:      fan,
	}
}

// Subscribe adds the session to the room. Re-subscribing is a no-op.
func (r *Router) Subscribe(c *Client, conversationID string) {
	if c == nil || conversationID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[*Client]struct{})
		r.rooms[conversationID] = room
	}
	room[c] = struct{}{}

	subs := r.sessions[c]
	if subs == nil {
		subs = make(map[string]struct{})
		r.sessions[c] = subs
	}
	subs[conversationID] = struct{}{}
}

// Unsubscribe removes the session from the room; no-op if not subscribed.
func (r *Router) Unsubscribe(c *Client, conversationID string) {
	if c == nil || conversationID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(c, conversationID)
}

func (r *Router) dropLocked(c *Client, conversationID string) {
	if room := r.rooms[conversationID]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(r.rooms, conversationID)
		}
	}
	if subs := r.sessions[c]; subs != nil {
		delete(subs, conversationID)
		if len(subs) == 0 {
			delete(r.sessions, c)
		}
	}
}

// OnDisconnect releases all router-held state for the session. It runs
// unconditionally, even for sessions that never subscribed, and calling
// it twice is safe.
func (r *Router) OnDisconnect(c *Client) {
	if c == nil {
		return
	}
	r.mu.Lock()
	subs := r.sessions[c]
	for conversationID := range subs {
		if room := r.rooms[conversationID]; room != nil {
			delete(room, c)
			if len(room) == 0 {
				delete(r.rooms, conversationID)
			}
		}
	}
	delete(r.sessions, c)
	r.mu.Unlock()
}

// Publish delivers the payload to every session currently in the room.
// The member snapshot is taken under the read lock; actual writes happen
// on the fanout pool with no locks held.
func (r *Router) Publish(conversationID string, payload []byte) {
	r.mu.RLock()
	room := r.rooms[conversationID]
	conns := make([]*Client, 0, len(room))
	for c := range room {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	if len(conns) == 0 {
		return
	}
	r.fan.Broadcast(conns, payload)
}

// RoomSize reports how many sessions are subscribed to a conversation.
func (r *Router) RoomSize(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[conversationID])
}

// Subscriptions lists the conversation ids a session is subscribed to.
func (r *Router) Subscriptions(c *Client) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions[c]))
	for id := range r.sessions[c] {
		out = append(out, id)
	}
	return out
}

// Shutdown closes every session and stops the fanout workers.
func (r *Router) Shutdown() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.sessions))
	for c := range r.sessions {
		clients = append(clients, c)
	}
	r.rooms = make(map[string]map[*Client]struct{})
	r.sessions = make(map[*Client]map[string]struct{})
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	r.fan.Close()
	logger.Infof("[router] shutdown, closed %d sessions", len(clients))
}
