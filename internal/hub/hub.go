package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/obby/fs-coalescer/internal/log"
	"github.com/obby/fs-coalescer/internal/queue"
)

// AllTopics subscribes a client to every event kind
const AllTopics = "*"

// Message is a batch of normalized events pushed to clients
type Message struct {
	Seq    uint64        `json:"seq"`
	Events []queue.Event `json:"events"`
	SentAt time.Time     `json:"sent_at"`
}

// Client is one subscriber. Topics are event kind names.
type Client struct {
	ID     string
	Hub    *Hub
	Send   chan Message
	Topics map[string]bool
	mu     sync.RWMutex
}

// Hub fans batches out to subscribed clients
type Hub struct {
	clients    map[string]*Client
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan Message, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log.NewModuleLogger("hub", "hub"),
	}
}

// NewClient creates a new client
func (h *Hub) NewClient() *Client {
	return &Client{
		ID:     uuid.NewString(),
		Hub:    h,
		Send:   make(chan Message, 256),
		Topics: make(map[string]bool),
	}
}

// Register registers a client. It is a no-op once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister unregisters a client and closes its Send channel
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast broadcasts a message to all subscribed clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run runs the hub's main loop until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)
			h.logger.Info("Client unregistered", "client_id", client.ID)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

func (h *Hub) deliver(msg Message) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients {
		narrowed := client.Narrow(msg)
		if len(narrowed.Events) == 0 {
			continue
		}
		select {
		case client.Send <- narrowed:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	// Client buffer full, disconnect slow client
	for _, client := range slow {
		h.removeClient(client)
		h.logger.Warn("Disconnected slow client", "client_id", client.ID)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client.ID]; exists {
		delete(h.clients, client.ID)
		close(client.Send)
	}
}

// ClientCount returns the number of active clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// shutdown closes every client and marks the hub done
func (h *Hub) shutdown() {
	h.mu.Lock()
	for _, client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	close(h.done)
}

// Subscribe subscribes client to a topic
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Topics[topic] = true
}

// Unsubscribe unsubscribes client from a topic
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Topics, topic)
}

// IsSubscribed checks if client is subscribed to a topic.
// A client without topics, or subscribed to "*", receives everything.
func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribedLocked(topic)
}

func (c *Client) subscribedLocked(topic string) bool {
	if len(c.Topics) == 0 || c.Topics[AllTopics] {
		return true
	}
	return c.Topics[topic]
}

// Narrow returns msg reduced to the events whose kind the client follows
func (c *Client) Narrow(msg Message) Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.Topics) == 0 || c.Topics[AllTopics] {
		return msg
	}

	narrowed := msg
	narrowed.Events = nil
	for _, e := range msg.Events {
		if c.subscribedLocked(e.Kind.String()) {
			narrowed.Events = append(narrowed.Events, e)
		}
	}
	return narrowed
}
