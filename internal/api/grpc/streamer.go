package grpcapi

import (
	"sync"

	"github.com/KevinKickass/OpenSimCore/internal/host"
)

// EventStreamer fans poller events out to per-device subscribers. The
// empty device name subscribes to every device.
type EventStreamer struct {
	mu          sync.RWMutex
	subscribers map[string][]chan host.Event
}

func NewEventStreamer() *EventStreamer {
	return &EventStreamer{
		subscribers: make(map[string][]chan host.Event),
	}
}

func (s *EventStreamer) Subscribe(device string) <-chan host.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan host.Event, 100)
	s.subscribers[device] = append(s.subscribers[device], ch)
	return ch
}

func (s *EventStreamer) Unsubscribe(device string, ch <-chan host.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[device]
	for i, sub := range subs {
		if sub == ch {
			s.subscribers[device] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(s.subscribers[device]) == 0 {
		delete(s.subscribers, device)
	}
}

// Subscribers counts the subscriptions for device.
func (s *EventStreamer) Subscribers(device string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[device])
}

// Publish implements host.Publisher. Full subscriber buffers drop the event.
func (s *EventStreamer) Publish(ev host.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.send(s.subscribers[ev.Device], ev)
	if ev.Device != "" {
		s.send(s.subscribers[""], ev)
	}
}

func (s *EventStreamer) send(subs []chan host.Event, ev host.Event) {
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
