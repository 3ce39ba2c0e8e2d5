package server

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/npezzotti/go-roomchat/internal/store"
	"github.com/npezzotti/go-roomchat/internal/types"
)

const defaultMimetype = "application/octet-stream"

type handlerFunc func(cs *ChatServer, msg *ClientMessage) (map[string]any, error)

var handlers = map[string]handlerFunc{
	EventRequestRooms:  (*ChatServer).requestRooms,
	EventCreateRoom:    (*ChatServer).createRoom,
	EventJoinRoom:      (*ChatServer).joinRoom,
	EventLeaveRoom:     (*ChatServer).leaveRoom,
	EventChatMessage:   (*ChatServer).chatMessage,
	EventEditMessage:   (*ChatServer).editMessage,
	EventDeleteMessage: (*ChatServer).deleteMessage,
	EventReactMessage:  (*ChatServer).reactMessage,
	EventTyping:        (*ChatServer).typing,
	EventStopTyping:    (*ChatServer).stopTyping,
	EventUploadFile:    (*ChatServer).uploadFile,
	EventCreateThread:  (*ChatServer).createThread,
	EventThreadMessage: (*ChatServer).threadMessage,
	EventGetThread:     (*ChatServer).getThread,
}

// handleMessage runs one inbound event to completion and acks the sender.
// Failures, including panics, only ever reach the sender.
func (cs *ChatServer) handleMessage(msg *ClientMessage) {
	defer func() {
		if r := recover(); r != nil {
			cs.log.Printf("panic handling %q from %q: %v", msg.Event, msg.client.id, r)
			cs.ack(msg, ErrInternalError(msg.Id))
		}
	}()

	// Frames queued before their connection was deregistered must not
	// recreate state for it.
	if _, live := cs.clients[msg.client]; !live {
		cs.log.Printf("dropping %q from closed connection %q", msg.Event, msg.client.id)
		return
	}

	handler, ok := handlers[msg.Event]
	if !ok {
		cs.ack(msg, ErrResponse(msg.Id, fmt.Errorf("%w: %q", errUnknownEvent, msg.Event)))
		return
	}

	data, err := handler(cs, msg)
	if err != nil {
		resp := ErrResponse(msg.Id, err)
		if resp.Response.ResponseCode >= 500 {
			cs.log.Printf("%s: %v", msg.Event, err)
		}
		cs.ack(msg, resp)
		return
	}

	cs.ack(msg, NoErrOK(msg.Id, data))
}

// ack answers msg if the sender asked for an acknowledgment.
func (cs *ChatServer) ack(msg *ClientMessage, resp *ServerMessage) {
	if msg.Id == 0 {
		return
	}
	msg.client.queueMessage(resp)
}

func (cs *ChatServer) requestRooms(msg *ClientMessage) (map[string]any, error) {
	msg.client.queueMessage(cs.roomsList())
	return nil, nil
}

func (cs *ChatServer) createRoom(msg *ClientMessage) (map[string]any, error) {
	var req CreateRoom
	if err := msg.decode(&req); err != nil {
		return nil, err
	}

	meta, err := cs.directory.Create(req.Room, req.Description, req.IsPrivate)
	if err != nil {
		return nil, err
	}
	cs.syncRoomCount()

	cs.log.Printf("created room %q", meta.Name)
	cs.broadcastAll(cs.roomsList())

	return map[string]any{"room": meta.Name}, nil
}

// replySnapshot freezes the message being replied to. The stored copy wins
// when it is still in the log; otherwise the client's snapshot is kept.
func (cs *ChatServer) replySnapshot(room string, ref *types.ReplyRef) *types.ReplyRef {
	if ref == nil || ref.Id == "" {
		return nil
	}

	if orig, ok := cs.messages.Room(room).Find(ref.Id); ok {
		return &types.ReplyRef{Id: orig.Id, User: orig.User, Text: orig.Text}
	}

	snapshot := *ref
	return &snapshot
}

// post appends m to room's log and sends it to the whole room, sender included.
func (cs *ChatServer) post(room string, m types.Message) {
	cs.messages.Room(room).Append(m)
	cs.stats.Incr(stats.MessagesSent)
	cs.broadcast(room, Event(EventNewMessage, m))
}

func (cs *ChatServer) chatMessage(msg *ClientMessage) (map[string]any, error) {
	id, err := cs.identity(msg)
	if err != nil {
		return nil, err
	}

	var req ChatMessage
	if err := msg.decode(&req); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, store.ErrEmptyMessage
	}

	m := types.Message{
		Id:        cs.newMessageId(),
		User:      id.Username,
		Text:      text,
		Time:      msg.Timestamp.UnixMilli(),
		ReplyTo:   cs.replySnapshot(id.Room, req.ReplyTo),
		Reactions: map[string][]string{},
		Mentions:  req.Mentions,
	}
	cs.post(id.Room, m)

	return map[string]any{"id": m.Id}, nil
}

func (cs *ChatServer) uploadFile(msg *ClientMessage) (map[string]any, error) {
	id, err := cs.identity(msg)
	if err != nil {
		return nil, err
	}

	var req UploadFile
	if err := msg.decode(&req); err != nil {
		return nil, err
	}

	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, store.ValidationError("filename required")
	}
	if req.B64Data == "" {
		return nil, store.ErrEmptyMessage
	}
	if _, err := base64.StdEncoding.DecodeString(req.B64Data); err != nil {
		return nil, store.ValidationError("file payload is not valid base64")
	}

	mimetype := strings.TrimSpace(req.Mimetype)
	if mimetype == "" {
		mimetype = defaultMimetype
	}

	m := types.Message{
		Id:   cs.newMessageId(),
		User: id.Username,
		Time: msg.Timestamp.UnixMilli(),
		File: &types.Attachment{
			Filename: filename,
			Mimetype: mimetype,
			Url:      "data:" + mimetype + ";base64," + req.B64Data,
		},
		Reactions: map[string][]string{},
	}
	cs.post(id.Room, m)

	return map[string]any{"id": m.Id}, nil
}

func (cs *ChatServer) editMessage(msg *ClientMessage) (map[string]any, error) {
	id, err := cs.identity(msg)
	if err != nil {
		return nil, err
	}

	var req EditMessage
	if err := msg.decode(&req); err != nil {
		return nil, err
	}

	updated, err := cs.messages.Room(id.Room).Edit(req.MsgId, id.Username, req.NewText)
	if err != nil {
		return nil, err
	}

	cs.broadcast(id.Room, Event(EventUpdateMessage, updated))
	return nil, nil
}

// deleteMessage accepts the id as a bare string, or as {"msgId": id}.
func (cs *ChatServer) deleteMessage(msg *ClientMessage) (map[string]any, error) {
	id, err := cs.identity(msg)
	if err != nil {
		return nil, err
	}

	var msgId string
	if err := msg.decode(&msgId); err != nil {
		var obj MessageDeleted
		if err := msg.decode(&obj); err != nil {
			return nil, err
		}
		msgId = obj.MsgId
	}

	if err := cs.messages.Room(id.Room).Delete(msgId, id.Username); err != nil {
		return nil, err
	}

	cs.broadcast(id.Room, Event(EventDeleteMessage, MessageDeleted{MsgId: msgId}))
	return nil, nil
}

func (cs *ChatServer) reactMessage(msg *ClientMessage) (map[string]any, error) {
	id, err := cs.identity(msg)
	if err != nil {
		return nil, err
	}

	var req ReactMessage
	if err := msg.decode(&req); err != nil {
		return nil, err
	}

	reactions, err := cs.messages.Room(id.Room).React(req.MsgId, id.Username, req.Emoji)
	if err != nil {
		return nil, err
	}

	cs.broadcast(id.Room, Event(EventUpdateReactions, ReactionsUpdate{
		MsgId:     req.MsgId,
		Reactions: reactions,
	}))
	return nil, nil
}

func (cs *ChatServer) typing(msg *ClientMessage) (map[string]any, error) {
	return nil, cs.typingNotice(msg, EventTyping)
}

func (cs *ChatServer) stopTyping(msg *ClientMessage) (map[string]any, error) {
	return nil, cs.typingNotice(msg, EventStopTyping)
}

// typingNotice relays a typing indicator to the rest of the room. Nothing is
// stored and nothing is debounced.
func (cs *ChatServer) typingNotice(msg *ClientMessage, event string) error {
	id, err := cs.identity(msg)
	if err != nil {
		return err
	}

	cs.broadcast(id.Room, skipping(msg.client, Event(event, TypingNotice{User: id.Username})))
	return nil
}

func (cs *ChatServer) createThread(msg *ClientMessage) (map[string]any, error) {
	id, err := cs.identity(msg)
	if err != nil {
		return nil, err
	}

	var req CreateThread
	if err := msg.decode(&req); err != nil {
		return nil, err
	}

	first := types.ThreadMessage{
		Id:   cs.newMessageId(),
		User: id.Username,
		Text: strings.TrimSpace(req.Text),
		Time: msg.Timestamp.UnixMilli(),
	}
	thread, err := cs.threads.Create(req.ParentMsgId, id.Room, first)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	cs.stats.Incr(stats.Threads)

	cs.broadcast(id.Room, Event(EventThreadCreated, ThreadCreated{
		ThreadId:    thread.Id,
		ParentMsgId: thread.ParentMsgId,
	}))

	return map[string]any{"threadId": thread.Id}, nil
}

// roomThread returns threadId if it belongs to room. Threads of other rooms
// are reported as missing.
func (cs *ChatServer) roomThread(threadId, room string) (types.Thread, error) {
	t, ok := cs.threads.Get(threadId)
	if !ok || t.Room != room {
		return types.Thread{}, store.ErrNotFound
	}
	return t, nil
}

func (cs *ChatServer) threadMessage(msg *ClientMessage) (map[string]any, error) {
	id, err := cs.identity(msg)
	if err != nil {
		return nil, err
	}

	var req ThreadPost
	if err := msg.decode(&req); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, store.ErrEmptyMessage
	}

	if _, err := cs.roomThread(req.ThreadId, id.Room); err != nil {
		return nil, err
	}

	tm := types.ThreadMessage{
		Id:   cs.newMessageId(),
		User: id.Username,
		Text: text,
		Time: msg.Timestamp.UnixMilli(),
	}
	if err := cs.threads.Append(req.ThreadId, tm); err != nil {
		return nil, err
	}

	cs.broadcast(id.Room, Event(EventThreadMessage, ThreadMessage{ThreadId: req.ThreadId, Msg: tm}))
	return nil, nil
}

func (cs *ChatServer) getThread(msg *ClientMessage) (map[string]any, error) {
	id, err := cs.identity(msg)
	if err != nil {
		return nil, err
	}

	var req GetThread
	if err := msg.decode(&req); err != nil {
		return nil, err
	}

	t, err := cs.roomThread(req.ThreadId, id.Room)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"threadId":    t.Id,
		"parentMsgId": t.ParentMsgId,
		"messages":    t.Messages,
	}, nil
}
