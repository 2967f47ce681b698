package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSnapshots struct {
	scopes []string
	data   interface{}
	err    error
}

func (s *stubSnapshots) Snapshot(_ context.Context, scope string) (interface{}, error) {
	s.scopes = append(s.scopes, scope)
	return s.data, s.err
}

// hubMetrics must be goroutine safe; the hub loop calls it concurrently
// with test assertions.
type hubMetrics struct {
	mu         sync.Mutex
	lastCount  int
	broadcasts []string
	dropped    []string
}

func (m *hubMetrics) ClientCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCount = n
}

func (m *hubMetrics) EventBroadcast(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, eventType)
}

func (m *hubMetrics) EventDropped(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, eventType)
}

func (m *hubMetrics) clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCount
}

func (m *hubMetrics) droppedTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dropped...)
}

func recvFrame(t *testing.T, c *Client) outbound {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var frame outbound
		require.NoError(t, json.Unmarshal(payload, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return outbound{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected frame: %s", payload)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestClient(hub *Hub, scope string, buffer int) *Client {
	return NewClient(hub, nil, scope, ClientConfig{SendBuffer: buffer}, nil)
}

func TestHubBroadcastRespectsScopes(t *testing.T) {
	hub := NewHub(nil, nil, nil, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	global := newTestClient(hub, ScopeGlobal, 8)
	effortA := newTestClient(hub, EffortScope("a"), 8)
	effortB := newTestClient(hub, EffortScope("b"), 8)
	hub.Register(global)
	hub.Register(effortA)
	hub.Register(effortB)

	hub.Publish(Event{Type: "tracker_updated", Scope: EffortScope("a"), Data: map[string]string{"id": "t1"}})

	frame := recvFrame(t, effortA)
	assert.Equal(t, "tracker_updated", frame.Type)

	// Global subscribers see every scope; the other effort sees nothing.
	frame = recvFrame(t, global)
	assert.Equal(t, "tracker_updated", frame.Type)
	assertNoFrame(t, effortB)

	hub.Publish(Event{Type: "study_created", Scope: ScopeGlobal, Data: map[string]string{"id": "s1"}})
	assert.Equal(t, "study_created", recvFrame(t, global).Type)
	assert.Equal(t, "study_created", recvFrame(t, effortA).Type)
	assert.Equal(t, "study_created", recvFrame(t, effortB).Type)
}

func TestHubPrunesUnresponsiveClient(t *testing.T) {
	metrics := &hubMetrics{}
	hub := NewHub(nil, nil, metrics, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	slow := newTestClient(hub, ScopeGlobal, 1)
	hub.Register(slow)

	// First event fills the buffer; the second finds it full and the
	// hub drops the client instead of blocking fan-out.
	hub.Publish(Event{Type: "study_created", Scope: ScopeGlobal})
	hub.Publish(Event{Type: "study_updated", Scope: ScopeGlobal})

	// Only drain after the prune so the second send is guaranteed to
	// find the buffer full.
	assert.Eventually(t, func() bool { return metrics.clients() == 0 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, "study_created", recvFrame(t, slow).Type)
	select {
	case _, ok := <-slow.send:
		assert.False(t, ok, "expected send channel closed after prune")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for prune")
	}
}

func TestClientEnqueueAfterPruneIsDropped(t *testing.T) {
	metrics := &hubMetrics{}
	hub := NewHub(nil, nil, metrics, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	slow := newTestClient(hub, ScopeGlobal, 1)
	hub.Register(slow)

	hub.Publish(Event{Type: "study_created", Scope: ScopeGlobal})
	hub.Publish(Event{Type: "study_updated", Scope: ScopeGlobal})
	assert.Eventually(t, func() bool { return metrics.clients() == 0 }, time.Second, 10*time.Millisecond)

	// The connection goroutines may still answer a ping or refresh after
	// the hub has pruned the client; the frame is dropped, not a panic
	// on the closed queue.
	assert.False(t, slow.enqueue([]byte(`{"type":"pong"}`)))
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	metrics := &hubMetrics{}
	hub := NewHub(nil, nil, metrics, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := newTestClient(hub, ScopeGlobal, 8)
	hub.Register(client)
	assert.Eventually(t, func() bool { return metrics.clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Unregister(client)
	hub.Unregister(client)
	assert.Eventually(t, func() bool { return metrics.clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	metrics := &hubMetrics{}
	// No Run loop draining, so the second publish overflows.
	hub := NewHub(nil, nil, metrics, 1)

	hub.Publish(Event{Type: "comment_created", Scope: ScopeGlobal})
	hub.Publish(Event{Type: "comment_resolved", Scope: ScopeGlobal})

	assert.Equal(t, []string{"comment_resolved"}, metrics.droppedTypes())
}

func TestClientSnapshotOnDemand(t *testing.T) {
	snapshots := &stubSnapshots{data: map[string]string{"state": "full"}}
	hub := NewHub(snapshots, nil, nil, 16)

	client := newTestClient(hub, EffortScope("a"), 8)
	require.NoError(t, client.sendSnapshot(context.Background()))

	frame := recvFrame(t, client)
	assert.Equal(t, "snapshot", frame.Type)
	assert.Equal(t, []string{EffortScope("a")}, snapshots.scopes)
}

func TestClientMatches(t *testing.T) {
	hub := NewHub(nil, nil, nil, 16)

	global := newTestClient(hub, "", 1)
	assert.Equal(t, ScopeGlobal, global.scope)
	assert.True(t, global.matches(EffortScope("a")))
	assert.True(t, global.matches(ScopeGlobal))

	scoped := newTestClient(hub, StudyScope("s1"), 1)
	assert.True(t, scoped.matches(StudyScope("s1")))
	assert.True(t, scoped.matches(ScopeGlobal))
	assert.False(t, scoped.matches(StudyScope("s2")))
}

func TestClientConfigDefaults(t *testing.T) {
	cfg := ClientConfig{}.withDefaults()
	assert.Equal(t, 64, cfg.SendBuffer)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.PongTimeout)
	assert.Less(t, cfg.PingInterval, cfg.PongTimeout)
}
