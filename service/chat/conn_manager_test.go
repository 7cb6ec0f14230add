package chat

import (
	"testing"
	"time"
)

func newTestManager(clock func() time.Time) *ConnManager {
	return NewConnManager(ManagerConf{
		SessionTTL: time.Minute,
		SweepEvery: time.Hour, // sweeps are driven manually in tests
		Clock:      clock,
	}, "gw_test")
}

func TestConnManagerAddRemove(t *testing.T) {
	m := newTestManager(nil)
	defer m.Close()

	c1 := testClient("conn_1", "user_1")
	c2 := testClient("conn_2", "user_1")
	if err := m.Add(c1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.Add(c2); err != nil {
		t.Fatalf("add second session: %v", err)
	}
	if err := m.Add(c1); err == nil {
		t.Fatalf("duplicate connID should be rejected")
	}

	if !m.UserOnline("user_1") {
		t.Fatalf("user with two sessions should be online")
	}
	if got := len(m.ListUserConns("user_1")); got != 2 {
		t.Fatalf("sessions = %d, want 2", got)
	}

	m.Remove("conn_1")
	m.Remove("conn_1") // idempotent
	if !m.UserOnline("user_1") {
		t.Fatalf("one session left, still online")
	}
	m.Remove("conn_2")
	if m.UserOnline("user_1") {
		t.Fatalf("all sessions gone, should be offline")
	}
}

func TestConnManagerRejectsEmptyIDs(t *testing.T) {
	m := newTestManager(nil)
	defer m.Close()
	if err := m.Add(nil); err == nil {
		t.Fatalf("nil client should be rejected")
	}
	if err := m.Add(testClient("", "user_1")); err == nil {
		t.Fatalf("empty connID should be rejected")
	}
	if err := m.Add(testClient("conn_1", "")); err == nil {
		t.Fatalf("empty userID should be rejected")
	}
}

func TestSweepReapsIdleSessions(t *testing.T) {
	now := time.Unix(1000, 0)
	m := newTestManager(func() time.Time { return now })
	defer m.Close()

	var reaped []*Client
	m.SetOnExpire(func(c *Client) { reaped = append(reaped, c) })

	idle := testClient("conn_idle", "user_1")
	live := testClient("conn_live", "user_2")
	_ = m.Add(idle)
	_ = m.Add(live)

	// heartbeat keeps only the live one fresh past the TTL
	now = now.Add(50 * time.Second)
	m.Heartbeat("conn_live")
	now = now.Add(30 * time.Second)

	m.sweepOnce(now)

	if m.UserOnline("user_1") {
		t.Fatalf("idle session should have been reaped")
	}
	if !m.UserOnline("user_2") {
		t.Fatalf("heartbeating session must survive the sweep")
	}
	if len(reaped) != 1 || reaped[0] != idle {
		t.Fatalf("onExpire saw %v", reaped)
	}
	select {
	case <-idle.Done():
	default:
		t.Fatalf("reaped session should be closed")
	}
}

func TestBroadcastUser(t *testing.T) {
	m := newTestManager(nil)
	defer m.Close()

	c1 := testClient("conn_1", "user_1")
	c2 := testClient("conn_2", "user_1")
	other := testClient("conn_3", "user_2")
	_ = m.Add(c1)
	_ = m.Add(c2)
	_ = m.Add(other)

	m.BroadcastUser("user_1", []byte("hi"))
	if len(c1.Send) != 1 || len(c2.Send) != 1 {
		t.Fatalf("both sessions of user_1 should get the payload")
	}
	if len(other.Send) != 0 {
		t.Fatalf("other user must not receive it")
	}
}
