// Package chatclient is the client side of the realtime contract: a pure
// reconciliation table for optimistic sends and a websocket session handle.
package chatclient

import (
	"encoding/json"
	"sort"
	"time"

	"gocampus/internal/gateway"
)

// Status tags an entry as provisional or acknowledged by the server.
type Status int

const (
	Pending Status = iota
	Committed
)

func (s Status) String() string {
	if s == Committed {
		return "committed"
	}
	return "pending"
}

// Message is the server's wire shape of a stored message.
type Message struct {
	ID             uint64    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       uint64    `json:"senderId"`
	ReceiverID     uint64    `json:"receiverId"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Entry is one row of the table. Pending entries are keyed by TempID and
// have no ServerID; committed entries are keyed by ServerID.
type Entry struct {
	Status   Status
	TempID   string
	ServerID uint64
	Message
}

type readPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []uint64 `json:"messageIds"`
	ReaderID       uint64   `json:"readerId"`
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         uint64 `json:"userId"`
	UserName       string `json:"userName"`
}

type presencePayload struct {
	UserID   uint64     `json:"userId"`
	LastSeen *time.Time `json:"lastSeen"`
}

type conversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// State is an immutable snapshot. Every operation returns a new State and
// leaves its input untouched.
type State struct {
	messages map[string][]Entry
	typing   map[string]map[uint64]string
	online   map[uint64]bool
	lastSeen map[uint64]time.Time
	deleted  map[string]bool
}

func NewState() State {
	return State{
		messages: map[string][]Entry{},
		typing:   map[string]map[uint64]string{},
		online:   map[uint64]bool{},
		lastSeen: map[uint64]time.Time{},
		deleted:  map[string]bool{},
	}
}

// Messages returns the conversation's entries: committed ones in id order,
// then pending ones in send order.
func (s State) Messages(conversationID string) []Entry {
	return append([]Entry(nil), s.messages[conversationID]...)
}

// Typing returns the names of users typing in a conversation.
func (s State) Typing(conversationID string) map[uint64]string {
	out := make(map[uint64]string, len(s.typing[conversationID]))
	for id, name := range s.typing[conversationID] {
		out[id] = name
	}
	return out
}

func (s State) Online(userID uint64) bool {
	return s.online[userID]
}

func (s State) LastSeen(userID uint64) (time.Time, bool) {
	t, ok := s.lastSeen[userID]
	return t, ok
}

func (s State) Deleted(conversationID string) bool {
	return s.deleted[conversationID]
}

func (s State) clone() State {
	out := State{
		messages: make(map[string][]Entry, len(s.messages)),
		typing:   make(map[string]map[uint64]string, len(s.typing)),
		online:   make(map[uint64]bool, len(s.online)),
		lastSeen: make(map[uint64]time.Time, len(s.lastSeen)),
		deleted:  make(map[string]bool, len(s.deleted)),
	}
	// slices and inner maps are shared until written; writers copy them first
	for k, v := range s.messages {
		out.messages[k] = v
	}
	for k, v := range s.typing {
		out.typing[k] = v
	}
	for k, v := range s.online {
		out.online[k] = v
	}
	for k, v := range s.lastSeen {
		out.lastSeen[k] = v
	}
	for k, v := range s.deleted {
		out.deleted[k] = v
	}
	return out
}

// sortEntries keeps committed rows ordered by server id ahead of pending rows.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Status != b.Status {
			return a.Status == Committed
		}
		if a.Status == Committed {
			return a.ServerID < b.ServerID
		}
		return false
	})
}

func indexByTemp(entries []Entry, tempID string) int {
	for i, e := range entries {
		if e.Status == Pending && e.TempID == tempID {
			return i
		}
	}
	return -1
}

func indexByID(entries []Entry, id uint64) int {
	for i, e := range entries {
		if e.Status == Committed && e.ServerID == id {
			return i
		}
	}
	return -1
}

// AddProvisional inserts an optimistic message. A repeated temp id is ignored.
func AddProvisional(s State, tempID string, msg Message) State {
	if tempID == "" || indexByTemp(s.messages[msg.ConversationID], tempID) >= 0 {
		return s
	}
	out := s.clone()
	entries := append(append([]Entry(nil), s.messages[msg.ConversationID]...), Entry{Status: Pending, TempID: tempID, Message: msg})
	out.messages[msg.ConversationID] = entries
	return out
}

// Commit replaces the pending entry with the server's copy. If the realtime
// event already delivered that id, the pending entry is simply removed.
func Commit(s State, tempID string, msg Message) State {
	old := s.messages[msg.ConversationID]
	entries := make([]Entry, 0, len(old)+1)
	for _, e := range old {
		if e.Status == Pending && e.TempID == tempID {
			continue
		}
		entries = append(entries, e)
	}
	if indexByID(entries, msg.ID) < 0 {
		entries = append(entries, Entry{Status: Committed, ServerID: msg.ID, Message: msg})
	}
	sortEntries(entries)

	out := s.clone()
	out.messages[msg.ConversationID] = entries
	return out
}

// Discard rolls back a failed send.
func Discard(s State, conversationID, tempID string) State {
	old := s.messages[conversationID]
	i := indexByTemp(old, tempID)
	if i < 0 {
		return s
	}
	entries := make([]Entry, 0, len(old)-1)
	entries = append(entries, old[:i]...)
	entries = append(entries, old[i+1:]...)

	out := s.clone()
	out.messages[conversationID] = entries
	return out
}

// Merge folds a REST history page into the table. Server rows win over
// local copies of the same id; pending rows are kept.
func Merge(s State, conversationID string, history []Message) State {
	old := s.messages[conversationID]
	entries := append([]Entry(nil), old...)
	for _, m := range history {
		e := Entry{Status: Committed, ServerID: m.ID, Message: m}
		if i := indexByID(entries, m.ID); i >= 0 {
			entries[i] = e
			continue
		}
		entries = append(entries, e)
	}
	sortEntries(entries)

	out := s.clone()
	out.messages[conversationID] = entries
	delete(out.deleted, conversationID)
	return out
}

// ApplyServerEvent folds one realtime event into the table. Unknown events
// and undecodable payloads leave the state unchanged.
func ApplyServerEvent(s State, f gateway.Frame) State {
	switch f.Event {
	case gateway.EventMessageNew:
		var m Message
		if json.Unmarshal(f.Data, &m) != nil || m.ID == 0 || s.deleted[m.ConversationID] {
			return s
		}
		old := s.messages[m.ConversationID]
		if indexByID(old, m.ID) >= 0 {
			return s
		}
		entries := append(append([]Entry(nil), old...), Entry{Status: Committed, ServerID: m.ID, Message: m})
		sortEntries(entries)
		out := s.clone()
		out.messages[m.ConversationID] = entries
		// a new message ends the sender's typing indicator
		if names, ok := s.typing[m.ConversationID]; ok {
			if _, typing := names[m.SenderID]; typing {
				out.typing[m.ConversationID] = withoutTyper(names, m.SenderID)
			}
		}
		return out

	case gateway.EventMessagesRead:
		var p readPayload
		if json.Unmarshal(f.Data, &p) != nil || len(p.MessageIDs) == 0 {
			return s
		}
		ids := make(map[uint64]bool, len(p.MessageIDs))
		for _, id := range p.MessageIDs {
			ids[id] = true
		}
		entries := append([]Entry(nil), s.messages[p.ConversationID]...)
		for i := range entries {
			if entries[i].Status == Committed && ids[entries[i].ServerID] {
				entries[i].Read = true
			}
		}
		out := s.clone()
		out.messages[p.ConversationID] = entries
		return out

	case gateway.EventTypingStart:
		var p typingPayload
		if json.Unmarshal(f.Data, &p) != nil || p.ConversationID == "" {
			return s
		}
		names := make(map[uint64]string, len(s.typing[p.ConversationID])+1)
		for id, n := range s.typing[p.ConversationID] {
			names[id] = n
		}
		names[p.UserID] = p.UserName
		out := s.clone()
		out.typing[p.ConversationID] = names
		return out

	case gateway.EventTypingStop:
		var p typingPayload
		if json.Unmarshal(f.Data, &p) != nil || p.ConversationID == "" {
			return s
		}
		out := s.clone()
		out.typing[p.ConversationID] = withoutTyper(s.typing[p.ConversationID], p.UserID)
		return out

	case gateway.EventUserOnline, gateway.EventUserOffline:
		var p presencePayload
		if json.Unmarshal(f.Data, &p) != nil || p.UserID == 0 {
			return s
		}
		out := s.clone()
		out.online[p.UserID] = f.Event == gateway.EventUserOnline
		if p.LastSeen != nil {
			out.lastSeen[p.UserID] = *p.LastSeen
		}
		return out

	case gateway.EventConversationDeleted:
		var p conversationPayload
		if json.Unmarshal(f.Data, &p) != nil || p.ConversationID == "" {
			return s
		}
		out := s.clone()
		delete(out.messages, p.ConversationID)
		delete(out.typing, p.ConversationID)
		out.deleted[p.ConversationID] = true
		return out
	}
	return s
}

func withoutTyper(names map[uint64]string, userID uint64) map[uint64]string {
	out := make(map[uint64]string, len(names))
	for id, n := range names {
		if id != userID {
			out[id] = n
		}
	}
	return out
}
