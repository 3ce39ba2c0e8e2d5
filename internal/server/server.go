package server

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/npezzotti/go-roomchat/internal/stats"
	"github.com/npezzotti/go-roomchat/internal/store"
	"github.com/npezzotti/go-roomchat/internal/types"
	"github.com/teris-io/shortid"
)

const inboundBufferSize = 1024

type stopReq struct {
	done chan struct{}
}

// ChatServer owns every piece of shared chat state. All state changes happen
// on the goroutine running Run, one inbound event at a time, so the stores
// need no locking.
type ChatServer struct {
	log   *log.Logger
	stats stats.StatsProvider

	registry  *store.Registry
	directory *store.Directory
	messages  *store.Messages
	threads   *store.ThreadStore

	clients map[*Client]struct{}
	// channels holds the connections subscribed to each room's broadcasts.
	channels map[string]map[*Client]struct{}

	inbound        chan *ClientMessage
	registerChan   chan *Client
	deRegisterChan chan *Client
	roomsChan      chan chan []types.RoomSummary
	stop           chan stopReq
	done           chan struct{}

	newMessageId func() string
	roomCount    int
}

func NewChatServer(logger *log.Logger, su stats.StatsProvider) (*ChatServer, error) {
	msgs := store.NewMessages(store.MaxRoomMessages)
	cs := &ChatServer{
		log:            logger,
		stats:          su,
		registry:       store.NewRegistry(),
		messages:       msgs,
		directory:      store.NewDirectory(msgs),
		threads:        store.NewThreadStore(shortid.Generate),
		clients:        make(map[*Client]struct{}),
		channels:       make(map[string]map[*Client]struct{}),
		inbound:        make(chan *ClientMessage, inboundBufferSize),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		roomsChan:      make(chan chan []types.RoomSummary),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
		newMessageId:   newMessageId,
	}

	for _, name := range []string{
		stats.ActiveClients,
		stats.JoinedUsers,
		stats.Rooms,
		stats.MessagesSent,
		stats.Threads,
	} {
		su.RegisterMetric(name)
	}
	cs.syncRoomCount()

	return cs, nil
}

// newMessageId returns a time ordered UUID so ids sort roughly by creation.
func newMessageId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (cs *ChatServer) Run() {
	defer close(cs.done)

	for {
		select {
		case msg := <-cs.inbound:
			cs.handleMessage(msg)
		case c := <-cs.registerChan:
			cs.addClient(c)
		case c := <-cs.deRegisterChan:
			cs.removeClient(c)
			cs.disconnect(c)
		case resp := <-cs.roomsChan:
			resp <- cs.directory.List()
		case req := <-cs.stop:
			cs.log.Printf("shutting down, closing %d connections", len(cs.clients))
			for c := range cs.clients {
				c.stopClient()
			}

			close(req.done)
			return
		}
	}
}

// Register adds a freshly upgraded connection. It returns false if the server
// is no longer running.
func (cs *ChatServer) Register(c *Client) bool {
	select {
	case cs.registerChan <- c:
		return true
	case <-cs.done:
		return false
	}
}

// Deregister is the transport's disconnect signal for c.
func (cs *ChatServer) Deregister(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

// dispatch queues an inbound event for the Run loop without blocking the
// connection's read pump.
func (cs *ChatServer) dispatch(msg *ClientMessage) {
	select {
	case cs.inbound <- msg:
	default:
		cs.log.Printf("inbound queue full, rejecting %q from %q", msg.Event, msg.client.id)
		if msg.Id > 0 {
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		}
	}
}

// Rooms returns the room directory as seen by the Run loop.
func (cs *ChatServer) Rooms(ctx context.Context) ([]types.RoomSummary, error) {
	resp := make(chan []types.RoomSummary, 1)
	select {
	case cs.roomsChan <- resp:
	case <-cs.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rooms := <-resp:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.log.Printf("adding connection %q", c.id)
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}

	cs.log.Printf("removing connection %q", c.id)
	delete(cs.clients, c)
	cs.stats.Decr(stats.ActiveClients)
}

func (cs *ChatServer) syncRoomCount() {
	if n := cs.directory.Len(); n != cs.roomCount {
		cs.roomCount = n
		cs.stats.Set(stats.Rooms, int64(n))
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
