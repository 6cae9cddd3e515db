package bridge

import (
	"errors"
	"sync"
)

// ErrNoSurface is returned by Send when no surface is currently attached.
var ErrNoSurface = errors.New("no surface attached")

// SwitchTransport is a Transport whose underlying connection can be replaced
// at runtime. It lets a single long-lived Bridge survive surface reconnects:
// Receive blocks across detachments and resumes on the next attached
// connection, while Send fails fast when no surface is attached. Attaching a
// new connection closes the previous one (latest surface wins).
type SwitchTransport struct {
	mu      sync.Mutex
	current Transport
	changed chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewSwitch creates an unattached SwitchTransport.
func NewSwitch() *SwitchTransport {
	return &SwitchTransport{
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Attach makes t the active connection, closing any previous one. Attaching
// to a closed switch just closes t.
func (s *SwitchTransport) Attach(t Transport) {
	select {
	case <-s.done:
		_ = t.Close()
		return
	default:
	}

	s.mu.Lock()
	prev := s.current
	s.current = t
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
}

// Send implements Transport.
func (s *SwitchTransport) Send(payload []byte) error {
	select {
	case <-s.done:
		return ErrTransportClosed
	default:
	}

	s.mu.Lock()
	t := s.current
	s.mu.Unlock()

	if t == nil {
		return ErrNoSurface
	}
	return t.Send(payload)
}

// Receive implements Transport. A closed underlying connection detaches it
// and Receive waits for the next Attach instead of failing.
func (s *SwitchTransport) Receive() ([]byte, error) {
	for {
		s.mu.Lock()
		t := s.current
		changed := s.changed
		s.mu.Unlock()

		if t == nil {
			select {
			case <-s.done:
				return nil, ErrTransportClosed
			case <-changed:
				continue
			}
		}

		payload, err := t.Receive()
		if err == nil {
			return payload, nil
		}

		select {
		case <-s.done:
			return nil, ErrTransportClosed
		default:
		}

		s.mu.Lock()
		if s.current == t {
			s.current = nil
		}
		s.mu.Unlock()
	}
}

// Close implements Transport. It closes the attached connection, if any, and
// fails all future operations.
func (s *SwitchTransport) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		t := s.current
		s.current = nil
		s.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}
	})
	return nil
}
