/* Apache v2 license
*  Copyright (C) <2019> Intel Corporation
*
*  SPDX-License-Identifier: Apache-2.0
 */

package detection

import "sync"

// subscriber queues crossings without bound and hands them to its channel
// from its own goroutine, so a slow consumer never stalls routing or the
// sweep and a crossing is never silently dropped.
type subscriber struct {
	ch   chan CrossingEvent
	done chan struct{}
	wake chan struct{}
	once sync.Once

	mu      sync.Mutex
	pending []CrossingEvent
	queued  int
	closing bool
}

func newSubscriber(size int) *subscriber {
	if size < 0 {
		size = 0
	}
	s := &subscriber{
		ch:   make(chan CrossingEvent, size),
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}
	go s.pump()
	return s
}

func (s *subscriber) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) send(ce CrossingEvent) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, ce)
	s.queued++
	s.mu.Unlock()
	s.notify()
}

// close stops accepting crossings. Queued ones are still delivered before
// the channel closes.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.notify()
}

// cancel discards queued crossings and closes the channel.
func (s *subscriber) cancel() {
	s.once.Do(func() { close(s.done) })
	s.close()
}

// delivered reports whether every accepted crossing reached the channel.
func (s *subscriber) delivered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued == 0
}

func (s *subscriber) pump() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		batch, closing := s.pending, s.closing
		s.pending = nil
		s.mu.Unlock()

		for _, ce := range batch {
			select {
			case s.ch <- ce:
				s.mu.Lock()
				s.queued--
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closing {
			return
		}

		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// Subscribe returns a channel of crossings with the given buffer size and a
// function that unsubscribes and closes it. Delivery never blocks the
// manager: crossings the consumer has not read yet are queued in memory.
// The channel is closed once Run returns and the queue is delivered.
func (m *Manager) Subscribe(size int) (<-chan CrossingEvent, func()) {
	s := newSubscriber(size)

	m.subsMu.Lock()
	m.subs[s] = struct{}{}
	m.subsMu.Unlock()

	cancel := func() {
		m.subsMu.Lock()
		delete(m.subs, s)
		m.subsMu.Unlock()
		s.cancel()
	}
	return s.ch, cancel
}

func (m *Manager) closeSubscribers() {
	m.subsMu.Lock()
	subs := m.subs
	m.subs = make(map[*subscriber]struct{})
	m.subsMu.Unlock()

	for s := range subs {
		s.close()
	}
}
