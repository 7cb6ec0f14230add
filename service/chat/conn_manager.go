package chat

import (
	"sync"
	"time"

	"chatparty/tools/errs"
)

// ===== 配置 =====

type ManagerConf struct {
	SessionTTL time.Duration    // idle TTL before the sweeper reaps a session
	SweepEvery time.Duration    // sweep period
	Clock      func() time.Time // injectable clock for tests; nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 30 * time.Second
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 5 * time.Minute
	}
}

type connRec struct {
	client    *Client
	expireAt  time.Time
	heartbeat time.Time
}

// ConnManager tracks live sessions by connection id and by user. It owns
// liveness (heartbeats, idle reaping); the Router owns room membership.
type ConnManager struct {
	mu     sync.RWMutex
	byConn map[string]*connRec
	byUser map[string]map[string]*Client // userID -> (connID -> client)

	conf     ManagerConf
	onExpire func(*Client) // invoked outside the lock when the sweeper reaps
	stopOnce sync.Once
	stopCh   chan struct{}
	gwID     string
}

func NewConnManager(conf ManagerConf, gwID string) *ConnManager {
	conf.norm()
	m := &ConnManager{
		byConn: make(map[string]*connRec),
		byUser: make(map[string]map[string]*Client),
		conf:   conf,
		gwID:   gwID,
		stopCh: make(chan struct{}),
	}
	go m.sweeper()
	return m
}

func (m *ConnManager) GwID() string { return m.gwID }

// SetOnExpire registers the callback run for sessions the sweeper reaps.
// Set it before any connection arrives.
func (m *ConnManager) SetOnExpire(fn func(*Client)) { m.onExpire = fn }

func (m *ConnManager) Add(c *Client) error {
	if c == nil || c.ConnID == "" || c.UserID == "" {
		return errs.New("client/connID/userID empty")
	}
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byConn[c.ConnID]; exists {
		return errs.New("connID exists", "conn_id", c.ConnID)
	}
	m.byConn[c.ConnID] = &connRec{
		client:    c,
		heartbeat: now,
		expireAt:  now.Add(m.conf.SessionTTL),
	}
	if m.byUser[c.UserID] == nil {
		m.byUser[c.UserID] = make(map[string]*Client)
	}
	m.byUser[c.UserID][c.ConnID] = c
	return nil
}

// Heartbeat refreshes a session's expiry; wired to the websocket pong
// handler.
func (m *ConnManager) Heartbeat(connID string) {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byConn[connID]; ok {
		rec.heartbeat = now
		rec.expireAt = now.Add(m.conf.SessionTTL)
	}
}

// Remove drops the session from both indexes. Idempotent; duplicate
// disconnect signals are possible at the transport layer.
func (m *ConnManager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(connID)
}

func (m *ConnManager) removeLocked(connID string) *Client {
	rec, ok := m.byConn[connID]
	if !ok {
		return nil
	}
	delete(m.byConn, connID)
	c := rec.client
	if mm := m.byUser[c.UserID]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(m.byUser, c.UserID)
		}
	}
	return c
}

// UserOnline reports whether the user has at least one live session on
// this instance.
func (m *ConnManager) UserOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID]) > 0
}

// ListUserConns snapshots a user's sessions.
func (m *ConnManager) ListUserConns(userID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.byUser[userID]))
	for _, c := range m.byUser[userID] {
		out = append(out, c)
	}
	return out
}

// BroadcastUser queues a payload onto every session of one user.
func (m *ConnManager) BroadcastUser(userID string, payload []byte) {
	for _, c := range m.ListUserConns(userID) {
		_ = c.TrySend(payload)
	}
}

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.byConn {
		rec.client.Close()
	}
	m.byConn = make(map[string]*connRec)
	m.byUser = make(map[string]map[string]*Client)
}

// ===== 清理协程 =====

func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-t.C:
			m.sweepOnce(now)
		}
	}
}

func (m *ConnManager) sweepOnce(now time.Time) {
	var expired []*Client

	m.mu.Lock()
	for connID, rec := range m.byConn {
		if now.After(rec.expireAt) {
			// collect first, close outside the lock
			m.removeLocked(connID)
			expired = append(expired, rec.client)
		}
	}
	m.mu.Unlock()

	for _, c := range expired {
		if m.onExpire != nil {
			m.onExpire(c)
		}
		c.Close()
	}
}
