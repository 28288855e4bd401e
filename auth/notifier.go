package auth

import (
	"sync"

	"talentbook-middleware/models"
)

type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	User models.User
}

// Notifier fans sign-in and sign-out events out to subscribers.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewNotifier() *Notifier {
	return &Notifier{subs: map[int]func(Event){}}
}

// Subscribe registers fn and returns a function that removes it again.
func (n *Notifier) Subscribe(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Publish calls every subscriber synchronously, in no particular order.
func (n *Notifier) Publish(e Event) {
	n.mu.RLock()
	fns := make([]func(Event), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}
