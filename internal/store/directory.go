package store

import (
	"slices"
	"strings"

	"github.com/npezzotti/go-roomchat/internal/types"
)

const (
	DefaultRoom        = "General"
	defaultDescription = "No description"
)

type room struct {
	meta    types.RoomMeta
	members []string
}

func (r *room) hasMember(username string) bool {
	return slices.Contains(r.members, username)
}

// Directory holds room metadata and member sets keyed by case-sensitive
// room name. Rooms are listed in creation order and never deleted.
type Directory struct {
	rooms    map[string]*room
	order    []string
	messages *Messages
}

// NewDirectory creates a directory holding only the default room. Every room
// it creates gets an empty log in msgs.
func NewDirectory(msgs *Messages) *Directory {
	d := &Directory{
		rooms:    make(map[string]*room),
		messages: msgs,
	}
	d.Ensure(DefaultRoom)

	return d
}

func (d *Directory) add(meta types.RoomMeta) *room {
	r := &room{meta: meta}
	d.rooms[meta.Name] = r
	d.order = append(d.order, meta.Name)
	d.messages.Ensure(meta.Name)

	return r
}

// Ensure creates name with default metadata if it does not exist yet.
func (d *Directory) Ensure(name string) types.RoomMeta {
	if r, ok := d.rooms[name]; ok {
		return r.meta
	}

	r := d.add(types.RoomMeta{
		Name:        name,
		Description: defaultDescription,
	})

	return r.meta
}

func (d *Directory) Create(name, description string, isPrivate bool) (types.RoomMeta, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.RoomMeta{}, ErrRoomRequired
	}

	if _, ok := d.rooms[name]; ok {
		return types.RoomMeta{}, ErrAlreadyExists
	}

	description = strings.TrimSpace(description)
	if description == "" {
		description = defaultDescription
	}

	r := d.add(types.RoomMeta{
		Name:        name,
		Description: description,
		IsPrivate:   isPrivate,
	})

	return r.meta, nil
}

// Join adds username to the member set of an existing room.
func (d *Directory) Join(name, username string) (types.RoomMeta, error) {
	r, ok := d.rooms[name]
	if !ok {
		return types.RoomMeta{}, ErrNotFound
	}

	if r.hasMember(username) {
		return types.RoomMeta{}, ErrNameTaken
	}

	r.members = append(r.members, username)
	return r.meta, nil
}

func (d *Directory) Leave(name, username string) {
	r, ok := d.rooms[name]
	if !ok {
		return
	}

	r.members = slices.DeleteFunc(r.members, func(m string) bool {
		return m == username
	})
}

// IsMember reports whether username is in the member set of name.
func (d *Directory) IsMember(name, username string) bool {
	r, ok := d.rooms[name]
	return ok && r.hasMember(username)
}

// Members returns a copy of the room's members in join order.
func (d *Directory) Members(name string) []string {
	r, ok := d.rooms[name]
	if !ok {
		return []string{}
	}

	return append([]string{}, r.members...)
}

func (d *Directory) Meta(name string) (types.RoomMeta, bool) {
	r, ok := d.rooms[name]
	if !ok {
		return types.RoomMeta{}, false
	}

	return r.meta, true
}

func (d *Directory) List() []types.RoomSummary {
	list := make([]types.RoomSummary, 0, len(d.order))
	for _, name := range d.order {
		r := d.rooms[name]
		list = append(list, types.RoomSummary{
			Name:        r.meta.Name,
			Description: r.meta.Description,
			Members:     len(r.members),
		})
	}

	return list
}

func (d *Directory) Len() int {
	return len(d.rooms)
}
