package identity

import "sync"

// Listener receives identity changes for one user. A nil identity means signed out.
type Listener func(id *Identity)

// Hub delivers identity changes to the listeners subscribed to a user.
type Hub struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string]map[uint64]Listener
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[uint64]Listener)}
}

// Subscription is a registered listener. Unsubscribe releases it and is safe to call more than once.
type Subscription struct {
	hub  *Hub
	uid  string
	id   uint64
	once sync.Once
}

// Subscribe registers fn for changes to uid.
func (h *Hub) Subscribe(uid string, fn Listener) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	if h.listeners[uid] == nil {
		h.listeners[uid] = make(map[uint64]Listener)
	}
	h.listeners[uid][h.nextID] = fn
	return &Subscription{hub: h, uid: uid, id: h.nextID}
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.listeners[s.uid], s.id)
		if len(s.hub.listeners[s.uid]) == 0 {
			delete(s.hub.listeners, s.uid)
		}
	})
}

// Publish calls every listener of uid. Listeners run on the caller's goroutine
// outside the hub lock, so they may unsubscribe.
func (h *Hub) Publish(uid string, id *Identity) {
	h.mu.RLock()
	fns := make([]Listener, 0, len(h.listeners[uid]))
	for _, fn := range h.listeners[uid] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(id)
	}
}

// Listeners reports how many listeners are registered for uid.
func (h *Hub) Listeners(uid string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[uid])
}
