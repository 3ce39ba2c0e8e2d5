package server

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/npezzotti/go-roomchat/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newTestChatServer creates a ChatServer with predictable message ids. Stats
// calls are accepted but not required.
func newTestChatServer(t *testing.T, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Return().Times(5)
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()
	su.On("Set", mock.Anything, mock.Anything).Return().Maybe()

	cs, err := NewChatServer(testutil.TestLogger(t), su)
	require.NoError(t, err, "failed to create test ChatServer")

	n := 0
	cs.newMessageId = func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}
	return cs
}

// newTestClient registers a connection without a websocket behind it.
func newTestClient(t *testing.T, cs *ChatServer, id string) *Client {
	c := NewClient(id, nil, cs, testutil.TestLogger(t), nil, 0)
	cs.addClient(c)
	return c
}

// send runs one inbound event through the dispatcher synchronously.
func send(t *testing.T, cs *ChatServer, c *Client, id int, event string, data any) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}

	cs.handleMessage(&ClientMessage{
		BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
		Event:       event,
		Data:        raw,
		client:      c,
	})
}

// drain empties c's send buffer.
func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case m := <-c.send:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func eventNames(msgs []*ServerMessage) []string {
	names := make([]string, 0, len(msgs))
	for _, m := range msgs {
		names = append(names, m.Event)
	}
	return names
}

// find returns the first message for event.
func find(t *testing.T, msgs []*ServerMessage, event string) *ServerMessage {
	t.Helper()
	for _, m := range msgs {
		if m.Event == event {
			return m
		}
	}
	require.Failf(t, "event not found", "no %q in %v", event, eventNames(msgs))
	return nil
}

func ackOf(t *testing.T, msgs []*ServerMessage) *Response {
	t.Helper()
	ack := find(t, msgs, EventAck)
	require.NotNil(t, ack.Response)
	return ack.Response
}

func join(t *testing.T, cs *ChatServer, c *Client, username, room string) *Response {
	t.Helper()
	send(t, cs, c, 1, EventJoinRoom, JoinRoom{Username: username, Room: room})
	return ackOf(t, drain(c))
}
