package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocampus/internal/common"
	"gocampus/internal/config"
)

type recordingTransport struct {
	events chan Event
	fail   atomic.Bool
	closed atomic.Int32
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{events: make(chan Event, 128)}
}

func (t *recordingTransport) WriteEvent(_ context.Context, ev Event) error {
	if t.fail.Load() {
		return errors.New("broken pipe")
	}
	t.events <- ev
	return nil
}

func (t *recordingTransport) Close() error {
	t.closed.Add(1)
	return nil
}

func (t *recordingTransport) next(tb testing.TB) Event {
	tb.Helper()
	select {
	case ev := <-t.events:
		return ev
	case <-time.After(time.Second):
		tb.Fatal("no event delivered")
		return Event{}
	}
}

func (t *recordingTransport) none(tb testing.TB) {
	tb.Helper()
	select {
	case ev := <-t.events:
		tb.Fatalf("unexpected event %s", ev.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

type countingListener struct {
	mu           sync.Mutex
	connected    map[uint64]int
	disconnected map[uint64]int
}

func newCountingListener() *countingListener {
	return &countingListener{connected: map[uint64]int{}, disconnected: map[uint64]int{}}
}

func (l *countingListener) ClientConnected(userID uint64) {
	l.mu.Lock()
	l.connected[userID]++
	l.mu.Unlock()
}

func (l *countingListener) ClientDisconnected(userID uint64) {
	l.mu.Lock()
	l.disconnected[userID]++
	l.mu.Unlock()
}

func (l *countingListener) counts(userID uint64) (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected[userID], l.disconnected[userID]
}

func testHub(buffer int) *Hub {
	cfg := &config.Config{Gateway: config.GatewayConfig{SendBuffer: buffer, WriteTimeout: time.Second, RoomShards: 4}}
	return NewHub(cfg, common.NopLogger())
}

func connect(h *Hub, userID uint64) (*Client, *recordingTransport) {
	tr := newRecordingTransport()
	c := h.NewClient(userID, fmt.Sprintf("user%d", userID), tr)
	h.Register(c)
	return c, tr
}

func TestHub_JoinLeaveIdempotent(t *testing.T) {
	h := testHub(8)
	c, _ := connect(h, 1)
	defer h.Unregister(c)

	require.NoError(t, h.Join(c, "conversation:a"))
	require.NoError(t, h.Join(c, "conversation:a"))
	assert.Equal(t, 1, h.RoomSize("conversation:a"))
	assert.True(t, c.InRoom("conversation:a"))

	h.Leave(c, "conversation:a")
	h.Leave(c, "conversation:a")
	assert.Equal(t, 0, h.RoomSize("conversation:a"))
	assert.False(t, c.InRoom("conversation:a"))
}

func TestHub_BroadcastReachesRoomOnly(t *testing.T) {
	h := testHub(8)
	a, trA := connect(h, 1)
	b, trB := connect(h, 2)
	outsider, trO := connect(h, 3)
	defer h.Shutdown()

	require.NoError(t, h.Join(a, "conversation:x"))
	require.NoError(t, h.Join(b, "conversation:x"))

	n := h.Broadcast("conversation:x", Event{Name: EventMessageNew, Data: "hello"})
	assert.Equal(t, 2, n)
	assert.Equal(t, EventMessageNew, trA.next(t).Name)
	assert.Equal(t, EventMessageNew, trB.next(t).Name)
	trO.none(t)
	_ = outsider
}

func TestHub_BroadcastEmptyRoom(t *testing.T) {
	h := testHub(8)
	assert.Equal(t, 0, h.Broadcast("conversation:nobody", Event{Name: EventMessageNew}))
}

func TestHub_SendToUserReachesEveryConnection(t *testing.T) {
	h := testHub(8)
	_, tr1 := connect(h, 7)
	_, tr2 := connect(h, 7)
	_, other := connect(h, 8)
	defer h.Shutdown()

	assert.Equal(t, 2, h.ConnectionCount(7))
	assert.Equal(t, 2, h.SendToUser(7, Event{Name: EventConversationDeleted}))
	assert.Equal(t, EventConversationDeleted, tr1.next(t).Name)
	assert.Equal(t, EventConversationDeleted, tr2.next(t).Name)
	other.none(t)
}

func TestClient_EnqueueDropsOldest(t *testing.T) {
	c := NewClient(1, "a", newRecordingTransport(), 2)

	for i := 1; i <= 5; i++ {
		assert.True(t, c.Enqueue(Event{Name: fmt.Sprintf("e%d", i)}))
	}

	assert.Equal(t, uint64(3), c.Dropped())
	assert.Equal(t, "e4", (<-c.send).Name)
	assert.Equal(t, "e5", (<-c.send).Name)
}

func TestHub_UnregisterCleansUp(t *testing.T) {
	h := testHub(8)
	listener := newCountingListener()
	h.AddListener(listener)

	c, tr := connect(h, 1)
	require.NoError(t, h.Join(c, "conversation:a"))
	require.NoError(t, h.Join(c, "group:1"))

	h.Unregister(c)
	h.Unregister(c)

	assert.Equal(t, 0, h.RoomSize("conversation:a"))
	assert.Equal(t, 0, h.RoomSize("group:1"))
	assert.Equal(t, 0, h.ConnectionCount(1))
	assert.Empty(t, c.Rooms())
	assert.Equal(t, int32(1), tr.closed.Load())
	assert.False(t, c.Enqueue(Event{Name: EventMessageNew}))

	connected, disconnected := listener.counts(1)
	assert.Equal(t, 1, connected)
	assert.Equal(t, 1, disconnected)

	assert.ErrorIs(t, h.Join(c, "conversation:a"), common.ErrInvalid)
	assert.Equal(t, 0, h.RoomSize("conversation:a"))

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestHub_FailedWriteClosesConnection(t *testing.T) {
	h := testHub(8)
	c, tr := connect(h, 1)
	require.NoError(t, h.Join(c, "conversation:a"))
	tr.fail.Store(true)

	h.Broadcast("conversation:a", Event{Name: EventMessageNew})

	assert.Eventually(t, func() bool { return h.ConnectionCount(1) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.RoomSize("conversation:a"))
}

func TestHub_CloseRoom(t *testing.T) {
	h := testHub(8)
	a, _ := connect(h, 1)
	b, trB := connect(h, 2)
	defer h.Shutdown()

	require.NoError(t, h.Join(a, "conversation:z"))
	require.NoError(t, h.Join(b, "conversation:z"))

	assert.Equal(t, 2, h.CloseRoom("conversation:z"))
	assert.Equal(t, 0, h.CloseRoom("conversation:z"))
	assert.False(t, a.InRoom("conversation:z"))
	assert.Equal(t, 0, h.Broadcast("conversation:z", Event{Name: EventMessageNew}))
	trB.none(t)

	// the name can be reused afterwards
	require.NoError(t, h.Join(b, "conversation:z"))
	assert.Equal(t, 1, h.Broadcast("conversation:z", Event{Name: EventMessageNew}))
	assert.Equal(t, EventMessageNew, trB.next(t).Name)
}

func TestHub_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	h := testHub(4)
	defer h.Shutdown()

	var wg sync.WaitGroup
	for u := uint64(1); u <= 20; u++ {
		wg.Add(1)
		go func(u uint64) {
			defer wg.Done()
			c, _ := connect(h, u)
			room := fmt.Sprintf("conversation:%d", u%3)
			for i := 0; i < 50; i++ {
				_ = h.Join(c, room)
				h.Broadcast(room, Event{Name: EventMessageNew})
				h.Leave(c, room)
			}
			if u%2 == 0 {
				h.Unregister(c)
			}
		}(u)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, h.RoomSize(fmt.Sprintf("conversation:%d", i)))
	}
}

func TestHub_Shutdown(t *testing.T) {
	h := testHub(8)
	_, tr1 := connect(h, 1)
	_, tr2 := connect(h, 2)

	h.Shutdown()

	assert.Equal(t, 0, h.ConnectionCount(1))
	assert.Equal(t, 0, h.ConnectionCount(2))
	assert.Equal(t, int32(1), tr1.closed.Load())
	assert.Equal(t, int32(1), tr2.closed.Load())
}
