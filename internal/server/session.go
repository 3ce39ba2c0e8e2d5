package server

import (
	"strings"

	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/npezzotti/go-roomchat/internal/store"
	"github.com/npezzotti/go-roomchat/internal/types"
)

// identity returns the profile of the connection that sent msg.
func (cs *ChatServer) identity(msg *ClientMessage) (types.Identity, error) {
	id, ok := cs.registry.Lookup(msg.client.id)
	if !ok {
		return types.Identity{}, store.ErrNotJoined
	}
	return id, nil
}

// joinRoom binds the connection to a (username, room) pair.
//
// A connection that is already joined and asks for the same pair only updates
// its profile. Asking for a different pair leaves the current room first, but
// only once the target pair is known to be free, so a failed rejoin leaves the
// connection where it was.
func (cs *ChatServer) joinRoom(msg *ClientMessage) (map[string]any, error) {
	var req JoinRoom
	if err := msg.decode(&req); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, store.ErrUsernameRequired
	}

	room := strings.TrimSpace(req.Room)
	if room == "" {
		room = store.DefaultRoom
	}

	c := msg.client
	prev, joined := cs.registry.Lookup(c.id)
	profileUpdate := joined && prev.Room == room && prev.Username == username

	cs.directory.Ensure(room)
	cs.syncRoomCount()

	if !profileUpdate {
		if cs.directory.IsMember(room, username) {
			return nil, store.ErrNameTaken
		}

		if joined {
			cs.vacate(c, prev)
		}

		if _, err := cs.directory.Join(room, username); err != nil {
			return nil, err
		}
	}

	if _, err := cs.registry.Register(c.id, username, room, req.Color, req.Status); err != nil {
		cs.directory.Leave(room, username)
		return nil, err
	}
	cs.subscribe(room, c)

	c.queueMessage(cs.initRoom(room))

	if !profileUpdate {
		cs.log.Printf("%q joined room %q", username, room)
		cs.stats.Incr(stats.JoinedUsers)
		cs.broadcast(room, skipping(c, systemMessage("%s joined", username)))
		cs.broadcast(room, skipping(c, cs.roomUsers(room)))
	}
	cs.broadcastAll(cs.roomsList())

	return nil, nil
}

func (cs *ChatServer) leaveRoom(msg *ClientMessage) (map[string]any, error) {
	id, err := cs.identity(msg)
	if err != nil {
		return nil, err
	}

	cs.vacate(msg.client, id)
	cs.broadcastAll(cs.roomsList())

	return nil, nil
}

// disconnect is the terminal transition for c.
func (cs *ChatServer) disconnect(c *Client) {
	id, ok := cs.registry.Lookup(c.id)
	if !ok {
		return
	}

	cs.vacate(c, id)
	cs.broadcastAll(cs.roomsList())
}

// vacate drops id's membership, subscription and identity, then tells the
// rest of the room.
func (cs *ChatServer) vacate(c *Client, id types.Identity) {
	cs.log.Printf("%q left room %q", id.Username, id.Room)

	cs.directory.Leave(id.Room, id.Username)
	cs.unsubscribe(id.Room, c)
	cs.registry.Remove(c.id)
	cs.stats.Decr(stats.JoinedUsers)

	cs.broadcast(id.Room, systemMessage("%s left", id.Username))
	cs.broadcast(id.Room, cs.roomUsers(id.Room))
}
