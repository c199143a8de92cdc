package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans payloads out to subscribers grouped by account ID. All state is
// owned by the run loop; the exported methods only pass messages to it.
type Hub struct {
	accounts  map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan envelope
	stop      chan struct{}
	once      sync.Once
}

type envelope struct {
	accountID string
	payload   []byte
}

type subscription struct {
	accountID string
	client    Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		accounts:  make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan envelope),
		stop:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.stop:
			for _, clients := range h.accounts {
				for c := range clients {
					c.Close()
				}
			}
			return
		case sub := <-h.register:
			if _, ok := h.accounts[sub.accountID]; !ok {
				h.accounts[sub.accountID] = make(map[Subscriber]struct{})
			}
			h.accounts[sub.accountID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.accounts[sub.accountID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.accounts, sub.accountID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.accounts[msg.accountID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.accounts, msg.accountID)
				}
			}
		}
	}
}

// Register adds a client to an account's stream.
func (h *Hub) Register(accountID string, client Subscriber) {
	select {
	case h.register <- subscription{accountID: accountID, client: client}:
	case <-h.stop:
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(accountID string, client Subscriber) {
	select {
	case h.unreg <- subscription{accountID: accountID, client: client}:
	case <-h.stop:
	}
}

// Broadcast sends payload to every client watching the account.
func (h *Hub) Broadcast(accountID string, payload []byte) {
	select {
	case h.broadcast <- envelope{accountID: accountID, payload: payload}:
	case <-h.stop:
	}
}

// Close stops the run loop and disconnects every client.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.stop)
	})
}
