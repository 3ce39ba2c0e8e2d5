package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-roomchat/internal/store"
	"github.com/npezzotti/go-roomchat/internal/types"
)

// Inbound events.
const (
	EventRequestRooms  = "request_rooms"
	EventCreateRoom    = "create_room"
	EventJoinRoom      = "joinRoom"
	EventLeaveRoom     = "leaveRoom"
	EventChatMessage   = "chatMessage"
	EventEditMessage   = "editMessage"
	EventDeleteMessage = "deleteMessage"
	EventReactMessage  = "reactMessage"
	EventTyping        = "typing"
	EventStopTyping    = "stopTyping"
	EventUploadFile    = "uploadFile"
	EventCreateThread  = "createThread"
	EventThreadMessage = "threadMessage"
	EventGetThread     = "getThread"
)

// Outbound events. typing, stopTyping, deleteMessage and threadMessage share
// their inbound names.
const (
	EventAck             = "ack"
	EventRoomsList       = "rooms_list"
	EventInitRoom        = "init_room"
	EventRoomUsers       = "roomUsers"
	EventSystemMessage   = "system_message"
	EventNewMessage      = "newMessage"
	EventUpdateMessage   = "updateMessage"
	EventUpdateReactions = "updateReactions"
	EventThreadCreated   = "threadCreated"
)

var (
	errInvalidMessage = errors.New("invalid message format")
	errUnknownEvent   = errors.New("unknown event")
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a single inbound frame. Data is decoded by the handler
// registered for Event.
type ClientMessage struct {
	BaseMessage
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	client *Client         `json:"-"`
}

func (cm *ClientMessage) decode(v any) error {
	if len(cm.Data) == 0 {
		return errInvalidMessage
	}
	if err := json.Unmarshal(cm.Data, v); err != nil {
		return errInvalidMessage
	}
	return nil
}

type ServerMessage struct {
	BaseMessage
	Event      string    `json:"event"`
	Data       any       `json:"data,omitempty"`
	Response   *Response `json:"response,omitempty"`
	SkipClient *Client   `json:"-"`
}

type Response struct {
	Ok           bool           `json:"ok,omitempty"`
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type CreateRoom struct {
	Room        string `json:"room"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

type JoinRoom struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Color    string `json:"color"`
	Status   string `json:"status"`
}

type ChatMessage struct {
	Text     string          `json:"text"`
	ReplyTo  *types.ReplyRef `json:"replyTo"`
	Mentions []string        `json:"mentions"`
}

type EditMessage struct {
	MsgId   string `json:"msgId"`
	NewText string `json:"newText"`
}

type ReactMessage struct {
	MsgId string `json:"msgId"`
	Emoji string `json:"emoji"`
}

type UploadFile struct {
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
	B64Data  string `json:"b64data"`
}

type CreateThread struct {
	ParentMsgId string `json:"parentMsgId"`
	Text        string `json:"text"`
}

type ThreadPost struct {
	ThreadId string `json:"threadId"`
	Text     string `json:"text"`
}

type GetThread struct {
	ThreadId string `json:"threadId"`
}

type InitRoom struct {
	Room     string          `json:"room"`
	Users    []string        `json:"users"`
	Messages []types.Message `json:"messages"`
	RoomMeta RoomInfo        `json:"roomMeta"`
}

type RoomInfo struct {
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

type SystemMessage struct {
	Text string `json:"text"`
	Time int64  `json:"time"`
}

type TypingNotice struct {
	User string `json:"user"`
}

type ReactionsUpdate struct {
	MsgId     string              `json:"msgId"`
	Reactions map[string][]string `json:"reactions"`
}

type MessageDeleted struct {
	MsgId string `json:"msgId"`
}

type ThreadCreated struct {
	ThreadId    string `json:"threadId"`
	ParentMsgId string `json:"parentMsgId"`
}

type ThreadMessage struct {
	ThreadId string              `json:"threadId"`
	Msg      types.ThreadMessage `json:"msg"`
}

// Event builds an outbound event frame.
func Event(name string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Event: name,
		Data:  data,
	}
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: EventAck,
		Response: &Response{
			Ok:           true,
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func errResponse(id, code int, text string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Event: EventAck,
		Response: &Response{
			ResponseCode: code,
			Error:        text,
		},
	}
}

// ErrResponse maps a handler error to an ack. Errors outside the known
// taxonomy are reported as a generic internal error.
func ErrResponse(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, errInvalidMessage):
		return ErrInvalidMessage(id)
	case errors.Is(err, errUnknownEvent),
		errors.Is(err, store.ErrValidation):
		return errResponse(id, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotJoined):
		return errResponse(id, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrNameTaken):
		return errResponse(id, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return errResponse(id, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNotOwner):
		return errResponse(id, http.StatusForbidden, err.Error())
	default:
		return ErrInternalError(id)
	}
}

func ErrInternalError(id int) *ServerMessage {
	return errResponse(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errResponse(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrRateLimited(id int) *ServerMessage {
	return errResponse(id, http.StatusTooManyRequests, "rate limit exceeded")
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errResponse(id, http.StatusBadRequest, errInvalidMessage.Error())
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
