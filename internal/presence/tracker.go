// Package presence tracks which users hold at least one live connection and
// announces online/offline transitions to their conversation rooms.
package presence

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocampus/internal/common"
	"gocampus/internal/gateway"
)

// Broadcaster delivers an event to every listener of a room.
type Broadcaster interface {
	Broadcast(room string, ev gateway.Event) int
}

// RoomLookup lists the conversations a user participates in.
type RoomLookup interface {
	ConversationIDs(ctx context.Context, userID uint64) ([]string, error)
}

// LastSeenStore persists disconnect times across restarts.
type LastSeenStore interface {
	SaveLastSeen(ctx context.Context, userID uint64, at time.Time) error
	LastSeen(ctx context.Context, userIDs []uint64) (map[uint64]time.Time, error)
}

type Record struct {
	UserID   uint64     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type onlinePayload struct {
	UserID uint64 `json:"userId"`
}

type offlinePayload struct {
	UserID   uint64    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

const storeTimeout = 5 * time.Second

type Tracker struct {
	mu       sync.RWMutex
	conns    map[uint64]int
	lastSeen map[uint64]time.Time

	// serializes transitions per user so announcements go out in order
	transitions *common.KeyedMutex

	hub    Broadcaster
	rooms  RoomLookup
	store  LastSeenStore
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(hub Broadcaster, rooms RoomLookup, store LastSeenStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		conns:       make(map[uint64]int),
		lastSeen:    make(map[uint64]time.Time),
		transitions: common.NewKeyedMutex(),
		hub:         hub,
		rooms:       rooms,
		store:       store,
		logger:      logger.With("component", "presence"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ClientConnected is called for every new connection. Only the first one announces.
func (t *Tracker) ClientConnected(userID uint64) {
	unlock := t.transitions.Lock(strconv.FormatUint(userID, 10))
	defer unlock()

	t.mu.Lock()
	t.conns[userID]++
	first := t.conns[userID] == 1
	t.mu.Unlock()

	if !first {
		return
	}
	t.logger.Debug("user online", "user_id", userID)
	t.announce(userID, gateway.Event{Name: gateway.EventUserOnline, Data: onlinePayload{UserID: userID}})
}

// ClientDisconnected is called for every closed connection. Only the last one announces.
func (t *Tracker) ClientDisconnected(userID uint64) {
	unlock := t.transitions.Lock(strconv.FormatUint(userID, 10))
	defer unlock()

	t.mu.Lock()
	if t.conns[userID] == 0 {
		t.mu.Unlock()
		return
	}
	t.conns[userID]--
	last := t.conns[userID] == 0
	var seen time.Time
	if last {
		delete(t.conns, userID)
		seen = t.now()
		t.lastSeen[userID] = seen
	}
	t.mu.Unlock()

	if !last {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := t.store.SaveLastSeen(ctx, userID, seen); err != nil {
		t.logger.Warn("persist last seen failed", "user_id", userID, "error", err)
	}

	t.logger.Debug("user offline", "user_id", userID)
	t.announce(userID, gateway.Event{Name: gateway.EventUserOffline, Data: offlinePayload{UserID: userID, LastSeen: seen}})
}

func (t *Tracker) announce(userID uint64, ev gateway.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	ids, err := t.rooms.ConversationIDs(ctx, userID)
	if err != nil {
		t.logger.Warn("presence rooms lookup failed", "user_id", userID, "error", err)
		return
	}
	for _, id := range ids {
		t.hub.Broadcast(gateway.ConversationRoom(id), ev)
	}
}

func (t *Tracker) IsOnline(userID uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conns[userID] > 0
}

// Lookup returns a snapshot for each requested user. Last-seen of users that
// went offline before this process started comes from the store.
func (t *Tracker) Lookup(ctx context.Context, userIDs []uint64) map[uint64]Record {
	out := make(map[uint64]Record, len(userIDs))
	var missing []uint64

	t.mu.RLock()
	for _, id := range userIDs {
		rec := Record{UserID: id, Online: t.conns[id] > 0}
		if !rec.Online {
			if seen, ok := t.lastSeen[id]; ok {
				s := seen
				rec.LastSeen = &s
			} else {
				missing = append(missing, id)
			}
		}
		out[id] = rec
	}
	t.mu.RUnlock()

	if len(missing) == 0 {
		return out
	}
	stored, err := t.store.LastSeen(ctx, missing)
	if err != nil {
		t.logger.Warn("load last seen failed", "error", err)
		return out
	}
	for id, seen := range stored {
		s := seen
		rec := out[id]
		rec.LastSeen = &s
		out[id] = rec
	}
	return out
}

// Snapshot lists every user currently online.
func (t *Tracker) Snapshot() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint64, 0, len(t.conns))
	for id := range t.conns {
		out = append(out, id)
	}
	return out
}
