package events

import (
	"sync/atomic"
	"time"
)

// Bus is the outbound event channel the core writes to and the
// transport layer drains. Publish never blocks: when the buffer is full
// the event is dropped and counted, so emission can never stall the
// per-security critical section. Subscribers therefore see an
// eventually-consistent stream, not a guaranteed-delivery log.
type Bus struct {
	ch      chan Event
	dropped atomic.Int64
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish enqueues an event, dropping it if the buffer is full.
func (b *Bus) Publish(typ Type, symbol string, payload any) {
	ev := Event{Type: typ, Symbol: symbol, At: time.Now(), Payload: payload}
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Events returns the channel the transport layer drains.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Dropped returns the number of events discarded due to a full buffer.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
