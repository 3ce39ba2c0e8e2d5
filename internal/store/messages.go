package store

import (
	"maps"
	"slices"
	"strings"

	"github.com/npezzotti/go-roomchat/internal/types"
)

const (
	// MaxRoomMessages bounds each room's log; older messages are evicted first.
	MaxRoomMessages = 500
	// RecentOnJoin is the number of messages delivered to a joining client.
	RecentOnJoin = 100
)

// MessageStore is the ordered log of a single room. Messages are kept in
// arrival order. Every value it returns is a copy, so callers may hand them to
// other goroutines while the log keeps changing.
type MessageStore struct {
	log   []*types.Message
	limit int
}

func NewMessageStore(limit int) *MessageStore {
	if limit <= 0 {
		limit = MaxRoomMessages
	}

	return &MessageStore{limit: limit}
}

func cloneMessage(m *types.Message) types.Message {
	c := *m
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		c.ReplyTo = &r
	}
	if m.File != nil {
		f := *m.File
		c.File = &f
	}
	c.Reactions = cloneReactions(m.Reactions)
	c.Mentions = slices.Clone(m.Mentions)

	return c
}

func cloneReactions(r map[string][]string) map[string][]string {
	c := make(map[string][]string, len(r))
	for emoji, users := range r {
		c[emoji] = slices.Clone(users)
	}

	return c
}

func (s *MessageStore) Append(msg types.Message) {
	stored := cloneMessage(&msg)
	s.log = append(s.log, &stored)

	if over := len(s.log) - s.limit; over > 0 {
		s.log = slices.Delete(s.log, 0, over)
	}
}

// Recent returns up to n of the newest messages, oldest first.
func (s *MessageStore) Recent(n int) []types.Message {
	start := max(len(s.log)-n, 0)

	msgs := make([]types.Message, 0, len(s.log)-start)
	for _, m := range s.log[start:] {
		msgs = append(msgs, cloneMessage(m))
	}

	return msgs
}

func (s *MessageStore) index(id string) int {
	return slices.IndexFunc(s.log, func(m *types.Message) bool {
		return m.Id == id
	})
}

func (s *MessageStore) Find(id string) (types.Message, bool) {
	i := s.index(id)
	if i == -1 {
		return types.Message{}, false
	}

	return cloneMessage(s.log[i]), true
}

// owned returns the message with id if requester authored it.
func (s *MessageStore) owned(id, requester string) (int, error) {
	i := s.index(id)
	if i == -1 {
		return -1, ErrNotFound
	}

	if s.log[i].User != requester {
		return -1, ErrNotOwner
	}

	return i, nil
}

func (s *MessageStore) Edit(id, requester, newText string) (types.Message, error) {
	i, err := s.owned(id, requester)
	if err != nil {
		return types.Message{}, err
	}

	m := s.log[i]
	m.Text = strings.TrimSpace(newText)
	m.Edited = true

	return cloneMessage(m), nil
}

func (s *MessageStore) Delete(id, requester string) error {
	i, err := s.owned(id, requester)
	if err != nil {
		return err
	}

	s.log = slices.Delete(s.log, i, i+1)
	return nil
}

// React toggles username under emoji and returns the message's full
// reaction map. Emoji keys left without users are dropped.
func (s *MessageStore) React(id, username, emoji string) (map[string][]string, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, ValidationError("emoji required")
	}

	i := s.index(id)
	if i == -1 {
		return nil, ErrNotFound
	}

	m := s.log[i]
	users := m.Reactions[emoji]
	if j := slices.Index(users, username); j != -1 {
		users = slices.Delete(users, j, j+1)
	} else {
		users = append(users, username)
	}

	if len(users) == 0 {
		delete(m.Reactions, emoji)
	} else {
		m.Reactions[emoji] = users
	}

	return cloneReactions(m.Reactions), nil
}

func (s *MessageStore) Len() int {
	return len(s.log)
}

// Messages holds the message log of every room.
type Messages struct {
	rooms map[string]*MessageStore
	limit int
}

func NewMessages(limit int) *Messages {
	return &Messages{
		rooms: make(map[string]*MessageStore),
		limit: limit,
	}
}

// Ensure returns the log for room, creating an empty one if needed.
func (ms *Messages) Ensure(room string) *MessageStore {
	s, ok := ms.rooms[room]
	if !ok {
		s = NewMessageStore(ms.limit)
		ms.rooms[room] = s
	}

	return s
}

func (ms *Messages) Room(room string) *MessageStore {
	return ms.Ensure(room)
}

// Total returns the number of messages held across all rooms.
func (ms *Messages) Total() int {
	total := 0
	for s := range maps.Values(ms.rooms) {
		total += s.Len()
	}

	return total
}
