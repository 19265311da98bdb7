package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocampus/internal/common"
)

type stubAuthorizer struct {
	participants map[string][]uint64
	err          error
}

func (s *stubAuthorizer) IsParticipant(_ context.Context, conversationID string, userID uint64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	for _, id := range s.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type stubGroups map[uint64]bool

func (g stubGroups) Exists(_ context.Context, groupID uint64) (bool, error) {
	return g[groupID], nil
}

type typingCall struct {
	start          bool
	conversationID string
	from, to       uint64
	name           string
}

type stubTyping struct {
	mu    sync.Mutex
	calls []typingCall
}

func (s *stubTyping) StartTyping(conversationID string, from, to uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, typingCall{true, conversationID, from, to, name})
}

func (s *stubTyping) StopTyping(conversationID string, from uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, typingCall{start: false, conversationID: conversationID, from: from})
}

func frame(t *testing.T, event string, data any) Frame {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return Frame{Event: event, Data: raw}
}

type routerFixture struct {
	hub    *Hub
	router *Router
	auth   *stubAuthorizer
	typing *stubTyping
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		hub:    testHub(8),
		auth:   &stubAuthorizer{participants: map[string][]uint64{"c1": {1, 2}}},
		typing: &stubTyping{},
	}
	f.router = NewRouter(f.hub, f.auth, stubGroups{5: true}, f.typing, common.NopLogger())
	return f
}

func TestRouter_Dispatch(t *testing.T) {
	tests := []struct {
		name      string
		userID    uint64
		frames    []Frame
		wantRooms []string
		wantError string
	}{
		{
			name:      "participant joins conversation",
			userID:    1,
			frames:    []Frame{frame(t, EventConversationJoin, map[string]string{"conversationId": "c1"})},
			wantRooms: []string{"conversation:c1"},
		},
		{
			name:      "outsider is refused",
			userID:    3,
			frames:    []Frame{frame(t, EventConversationJoin, map[string]string{"conversationId": "c1"})},
			wantError: common.CodeForbidden,
		},
		{
			name:   "join then leave",
			userID: 2,
			frames: []Frame{
				frame(t, EventConversationJoin, map[string]string{"conversationId": "c1"}),
				frame(t, EventConversationLeave, map[string]string{"conversationId": "c1"}),
			},
		},
		{
			name:      "group subscribe",
			userID:    9,
			frames:    []Frame{frame(t, EventGroupSubscribe, map[string]uint64{"groupId": 5})},
			wantRooms: []string{"group:5"},
		},
		{
			name:      "unknown group",
			userID:    9,
			frames:    []Frame{frame(t, EventGroupSubscribe, map[string]uint64{"groupId": 6})},
			wantError: common.CodeNotFound,
		},
		{
			name:   "malformed payload is dropped silently",
			userID: 1,
			frames: []Frame{{Event: EventConversationJoin, Data: json.RawMessage(`"nope"`)}},
		},
		{
			name:   "unknown event is ignored",
			userID: 1,
			frames: []Frame{frame(t, "presence:ping", map[string]string{})},
		},
		{
			name:      "typing outside the room",
			userID:    1,
			frames:    []Frame{frame(t, EventTypingStart, map[string]any{"conversationId": "c1", "receiverId": 2})},
			wantError: common.CodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture()
			c := NewClient(tt.userID, "u", newRecordingTransport(), 8)

			for _, fr := range tt.frames {
				f.router.Dispatch(context.Background(), c, fr)
			}

			assert.ElementsMatch(t, tt.wantRooms, c.Rooms())
			select {
			case ev := <-c.send:
				require.NotEmpty(t, tt.wantError, "unexpected event %s", ev.Name)
				assert.Equal(t, EventError, ev.Name)
				payload := ev.Data.(ErrorPayload)
				assert.Equal(t, tt.wantError, payload.Code)
				assert.Equal(t, tt.frames[len(tt.frames)-1].Event, payload.Event)
			default:
				assert.Empty(t, tt.wantError, "expected an error event")
			}
		})
	}
}

func TestRouter_TypingForwarded(t *testing.T) {
	f := newRouterFixture()
	c := NewClient(1, "alice", newRecordingTransport(), 8)

	f.router.Dispatch(context.Background(), c, frame(t, EventConversationJoin, map[string]string{"conversationId": "c1"}))
	f.router.Dispatch(context.Background(), c, frame(t, EventTypingStart, map[string]any{"conversationId": "c1", "receiverId": 2}))
	f.router.Dispatch(context.Background(), c, frame(t, EventTypingStop, map[string]any{"conversationId": "c1", "receiverId": 2}))

	require.Len(t, f.typing.calls, 2)
	assert.Equal(t, typingCall{true, "c1", 1, 2, "alice"}, f.typing.calls[0])
	assert.Equal(t, typingCall{start: false, conversationID: "c1", from: 1}, f.typing.calls[1])
}

func TestRouter_StoreErrorIsInternal(t *testing.T) {
	f := newRouterFixture()
	f.auth.err = errors.New("db down")
	c := NewClient(1, "alice", newRecordingTransport(), 8)

	f.router.Dispatch(context.Background(), c, frame(t, EventConversationJoin, map[string]string{"conversationId": "c1"}))

	ev := <-c.send
	payload := ev.Data.(ErrorPayload)
	assert.Equal(t, common.CodeInternal, payload.Code)
	assert.NotContains(t, payload.Message, "db down")
}
