package store

import (
	"slices"
	"strings"

	"github.com/npezzotti/go-roomchat/internal/types"
)

// ThreadStore holds thread logs. Threads are never merged into a room's main
// log and are not evicted.
type ThreadStore struct {
	threads map[string]*types.Thread
	newId   func() (string, error)
}

// NewThreadStore creates an empty store that names threads with newId.
func NewThreadStore(newId func() (string, error)) *ThreadStore {
	return &ThreadStore{
		threads: make(map[string]*types.Thread),
		newId:   newId,
	}
}

func cloneThread(t *types.Thread) types.Thread {
	c := *t
	c.Messages = slices.Clone(t.Messages)
	return c
}

// Create starts a thread anchored to parentMsgId. When first is non-empty it
// becomes the thread's first message.
func (ts *ThreadStore) Create(parentMsgId, room string, first types.ThreadMessage) (types.Thread, error) {
	id, err := ts.newId()
	if err != nil {
		return types.Thread{}, err
	}

	t := &types.Thread{
		Id:          id,
		ParentMsgId: parentMsgId,
		Room:        room,
		Messages:    []types.ThreadMessage{},
	}
	if strings.TrimSpace(first.Text) != "" {
		t.Messages = append(t.Messages, first)
	}
	ts.threads[id] = t

	return cloneThread(t), nil
}

func (ts *ThreadStore) Append(threadId string, msg types.ThreadMessage) error {
	t, ok := ts.threads[threadId]
	if !ok {
		return ErrNotFound
	}

	t.Messages = append(t.Messages, msg)
	return nil
}

func (ts *ThreadStore) Get(threadId string) (types.Thread, bool) {
	t, ok := ts.threads[threadId]
	if !ok {
		return types.Thread{}, false
	}

	return cloneThread(t), true
}

func (ts *ThreadStore) Len() int {
	return len(ts.threads)
}
