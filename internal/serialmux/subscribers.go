package serialmux

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
)

// subscriberSet fans serial lines out to subscriber channels. After
// closeAll every channel is closed and late subscribers receive an already
// closed channel, so readers never block on a mux that is shutting down.
type subscriberSet struct {
	mu     sync.Mutex
	chans  map[string]chan string
	buffer int
	closed bool
}

func newSubscriberSet(buffer int) *subscriberSet {
	return &subscriberSet{chans: make(map[string]chan string), buffer: buffer}
}

// randomID returns 8 random bytes, hex encoded.
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *subscriberSet) add() (string, chan string) {
	id := randomID()
	ch := make(chan string, s.buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.chans[id] = ch
	return id, ch
}

func (s *subscriberSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.chans[id]; ok {
		close(ch)
		delete(s.chans, id)
	}
}

// broadcast offers line to every subscriber without blocking; a full channel
// misses the line. It reports false once the set is closed.
func (s *subscriberSet) broadcast(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for _, ch := range s.chans {
		select {
		case ch <- line:
		default:
		}
	}
	return true
}

// closeAll closes every channel. It reports false if already closed.
func (s *subscriberSet) closeAll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	for id, ch := range s.chans {
		close(ch)
		delete(s.chans, id)
	}
	return true
}

func (s *subscriberSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chans)
}
