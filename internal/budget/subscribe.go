package budget

import (
	"sync"

	"smartbudget/internal/core"
	"smartbudget/internal/log"
)

type subscriber struct {
	ch      chan core.ChangeEvent
	once    sync.Once
	dropped uint64
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Subscribe registers a listener for change events. Delivery never blocks a
// mutation: when the buffer is full the event is dropped and logged, and the
// subscriber is expected to re-sync from Version. A buffer of zero or less
// uses the store default. The returned cancel func closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan core.ChangeEvent, func()) {
	if buffer <= 0 {
		buffer = s.buffer
	}
	sub := &subscriber{ch: make(chan core.ChangeEvent, buffer)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.close()
		return sub.ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			sub.close()
		}
	}
	return sub.ch, cancel
}

func (s *Store) publishLocked(ev core.ChangeEvent) {
	ev.Origin = s.origin
	ev.Version = s.version
	ev.At = s.now()
	for id, sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
			s.logger.Warn("Subscriber buffer full, event dropped",
				"subscriber", id,
				log.FieldEvent, ev.Kind,
				log.FieldVersion, ev.Version,
				"dropped_total", sub.dropped)
		}
	}
}
