package pubsub

import (
	"context"
	"sync"
)

type subscriber struct {
	ch chan *Message
}

// Local is an in-process fan-out pub/sub
type Local struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	bufSize     int
}

// NewLocal creates a Local pub/sub with the given per-subscriber buffer size
func NewLocal(bufSize int) *Local {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Local{
		subscribers: make(map[string][]*subscriber),
		bufSize:     bufSize,
	}
}

// Publish sends a message to all subscribers of channel. A subscriber whose
// buffer is full misses the message rather than blocking the publisher.
func (ps *Local) Publish(_ context.Context, channel, message string) error {
	msg := &Message{Channel: channel, Payload: message}

	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, s := range ps.subscribers[channel] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

func (ps *Local) Subscribe(_ context.Context, channels ...string) (<-chan *Message, func(), error) {
	ch := make(chan *Message, ps.bufSize)
	sub := &subscriber{ch: ch}

	ps.mu.Lock()
	for _, c := range channels {
		ps.subscribers[c] = append(ps.subscribers[c], sub)
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			for _, c := range channels {
				list := ps.subscribers[c]
				for j, s := range list {
					if s == sub {
						ps.subscribers[c] = append(list[:j], list[j+1:]...)
						break
					}
				}
				if len(ps.subscribers[c]) == 0 {
					delete(ps.subscribers, c)
				}
			}
			close(ch)
		})
	}

	return ch, cancel, nil
}

func (ps *Local) Close() error {
	return nil
}
