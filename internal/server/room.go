package server

import (
	"fmt"

	"github.com/npezzotti/go-roomchat/internal/store"
)

// subscribe adds c to room's broadcast channel.
func (cs *ChatServer) subscribe(room string, c *Client) {
	subs, ok := cs.channels[room]
	if !ok {
		subs = make(map[*Client]struct{})
		cs.channels[room] = subs
	}
	subs[c] = struct{}{}
}

func (cs *ChatServer) unsubscribe(room string, c *Client) {
	subs, ok := cs.channels[room]
	if !ok {
		return
	}

	delete(subs, c)
	if len(subs) == 0 {
		delete(cs.channels, room)
	}
}

// broadcast fans msg out to every subscriber of room except msg.SkipClient.
// Delivery is fire and forget.
func (cs *ChatServer) broadcast(room string, msg *ServerMessage) {
	for c := range cs.channels[room] {
		if c == msg.SkipClient {
			continue
		}

		c.queueMessage(msg)
	}
}

// broadcastAll sends msg to every connection, joined or not.
func (cs *ChatServer) broadcastAll(msg *ServerMessage) {
	for c := range cs.clients {
		c.queueMessage(msg)
	}
}

func (cs *ChatServer) roomsList() *ServerMessage {
	return Event(EventRoomsList, cs.directory.List())
}

func (cs *ChatServer) roomUsers(room string) *ServerMessage {
	return Event(EventRoomUsers, cs.directory.Members(room))
}

func systemMessage(format string, args ...any) *ServerMessage {
	return Event(EventSystemMessage, SystemMessage{
		Text: fmt.Sprintf(format, args...),
		Time: Now().UnixMilli(),
	})
}

// initRoom is the snapshot delivered to a connection that just joined room.
func (cs *ChatServer) initRoom(room string) *ServerMessage {
	meta, _ := cs.directory.Meta(room)
	return Event(EventInitRoom, InitRoom{
		Room:     room,
		Users:    cs.directory.Members(room),
		Messages: cs.messages.Room(room).Recent(store.RecentOnJoin),
		RoomMeta: RoomInfo{
			Description: meta.Description,
			IsPrivate:   meta.IsPrivate,
		},
	})
}

func skipping(c *Client, msg *ServerMessage) *ServerMessage {
	msg.SkipClient = c
	return msg
}
