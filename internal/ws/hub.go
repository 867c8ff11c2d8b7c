package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// subscriberQueue bounds the payloads waiting for one subscriber. A subscriber
// that falls this far behind is dropped.
const subscriberQueue = 32

// Hub fans out payloads to the subscribers of a topic. Each subscriber is fed
// from its own goroutine, so a slow Send never holds up Broadcast.
type Hub struct {
	clients   map[string]map[Subscriber]chan []byte
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	topic   string
	payload []byte
}

type subscription struct {
	topic  string
	client Subscriber
}

type countRequest struct {
	topic string
	reply chan int
}

// NewHub creates a running Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]chan []byte),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, subscriberQueue),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			clients, ok := h.clients[sub.topic]
			if !ok {
				clients = make(map[Subscriber]chan []byte)
				h.clients[sub.topic] = clients
			}
			if _, dup := clients[sub.client]; dup {
				continue
			}
			queue := make(chan []byte, subscriberQueue)
			clients[sub.client] = queue
			go h.deliver(sub.topic, sub.client, queue)
		case sub := <-h.unreg:
			h.remove(sub.topic, sub.client)
		case msg := <-h.broadcast:
			for c, queue := range h.clients[msg.topic] {
				select {
				case queue <- msg.payload:
				default:
					h.remove(msg.topic, c)
					c.Close()
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.topic])
		case <-h.done:
			for _, clients := range h.clients {
				for c, queue := range clients {
					close(queue)
					c.Close()
				}
			}
			h.clients = nil
			return
		}
	}
}

// remove must only be called from run.
func (h *Hub) remove(topic string, client Subscriber) {
	clients, ok := h.clients[topic]
	if !ok {
		return
	}
	if queue, ok := clients[client]; ok {
		close(queue)
		delete(clients, client)
	}
	if len(clients) == 0 {
		delete(h.clients, topic)
	}
}

// deliver feeds one subscriber until its queue is closed or a Send fails.
func (h *Hub) deliver(topic string, client Subscriber, queue <-chan []byte) {
	for payload := range queue {
		if err := client.Send(payload); err != nil {
			client.Close()
			h.Unregister(topic, client)
			for range queue {
			}
			return
		}
	}
}

// Register adds a client to a topic.
func (h *Hub) Register(topic string, client Subscriber) {
	if h.closed() {
		client.Close()
		return
	}
	select {
	case h.register <- subscription{topic: topic, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(topic string, client Subscriber) {
	select {
	case h.unreg <- subscription{topic: topic, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every client of topic without waiting on their
// writes. It is a no-op once the hub is closed.
func (h *Hub) Broadcast(topic string, payload []byte) {
	if h.closed() {
		return
	}
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
	case <-h.done:
	}
}

// Subscribers returns the number of clients registered on topic.
func (h *Hub) Subscribers(topic string) int {
	if h.closed() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{topic: topic, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
