package store

import (
	"strings"

	"github.com/npezzotti/go-roomchat/internal/types"
)

const defaultStatus = "Active"

// Registry maps live connections to their current identity. It performs no
// cross-connection uniqueness checks; the Directory enforces those per room.
type Registry struct {
	identities map[string]types.Identity
}

func NewRegistry() *Registry {
	return &Registry{
		identities: make(map[string]types.Identity),
	}
}

// Register binds an identity to connectionId, replacing any previous one.
func (r *Registry) Register(connectionId, username, room, color, status string) (types.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return types.Identity{}, ErrUsernameRequired
	}

	if status == "" {
		status = defaultStatus
	}

	id := types.Identity{
		ConnectionId: connectionId,
		Username:     username,
		Room:         room,
		Color:        color,
		Status:       status,
	}
	r.identities[connectionId] = id

	return id, nil
}

func (r *Registry) Lookup(connectionId string) (types.Identity, bool) {
	id, ok := r.identities[connectionId]
	return id, ok
}

func (r *Registry) Remove(connectionId string) {
	delete(r.identities, connectionId)
}

// InRoom returns the identities whose current room is room.
func (r *Registry) InRoom(room string) []types.Identity {
	var ids []types.Identity
	for _, id := range r.identities {
		if id.Room == room {
			ids = append(ids, id)
		}
	}

	return ids
}

func (r *Registry) Len() int {
	return len(r.identities)
}
