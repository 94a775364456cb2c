package notify

import (
	"context"
	"encoding/json"
	"sync"
)

// Envelope is the payload published to stream subscribers.
type Envelope struct {
	Audience Audience `json:"audience"`
	Message  Message  `json:"message"`
}

// Broker is an in-process pub/sub keyed by audience key.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded envelopes for the
// given audience keys.
func (b *Broker) Subscribe(keys ...string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	for _, key := range keys {
		if b.subs[key] == nil {
			b.subs[key] = make(map[chan []byte]struct{})
		}
		b.subs[key][ch] = struct{}{}
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the given keys.
func (b *Broker) Unsubscribe(ch chan []byte, keys ...string) {
	b.mu.Lock()
	for _, key := range keys {
		delete(b.subs[key], ch)
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
	}
	b.mu.Unlock()
}

// Post implements Notifier.
func (b *Broker) Post(_ context.Context, to Audience, msg Message) {
	b.Publish(to.Key(), Envelope{Audience: to, Message: msg})
}

// Publish sends an envelope to all subscribers of key.
func (b *Broker) Publish(key string, env Envelope) {
	data, _ := json.Marshal(env)
	b.mu.RLock()
	for ch := range b.subs[key] {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}
