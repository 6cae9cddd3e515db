package bridge

import (
	"errors"
	"sync"
)

// ErrTransportClosed is returned by Send and Receive once either end of a
// transport has been closed.
var ErrTransportClosed = errors.New("transport closed")

// Transport is one end of the serial message channel between host and map
// surface. Messages are applied in send order; there is no reordering and no
// acknowledgement. Receive blocks until a payload arrives or the transport
// closes.
type Transport interface {
	Send(payload []byte) error
	Receive() ([]byte, error)
	Close() error
}

// pipeEnd is one side of an in-process loopback transport.
type pipeEnd struct {
	send    chan<- []byte
	receive <-chan []byte
	done    chan struct{}
	once    *sync.Once
}

// NewLoopback creates a connected in-process transport pair: what the host
// end sends, the surface end receives, and vice versa. Used in embedded mode
// (ride simulation) and in tests. Closing either end closes both.
func NewLoopback(buffer int) (host Transport, surface Transport) {
	hostToSurface := make(chan []byte, buffer)
	surfaceToHost := make(chan []byte, buffer)
	done := make(chan struct{})
	once := &sync.Once{}

	host = &pipeEnd{send: hostToSurface, receive: surfaceToHost, done: done, once: once}
	surface = &pipeEnd{send: surfaceToHost, receive: hostToSurface, done: done, once: once}
	return host, surface
}

// Send implements Transport.
func (p *pipeEnd) Send(payload []byte) error {
	select {
	case <-p.done:
		return ErrTransportClosed
	case p.send <- payload:
		return nil
	}
}

// Receive implements Transport.
func (p *pipeEnd) Receive() ([]byte, error) {
	select {
	case <-p.done:
		return nil, ErrTransportClosed
	case payload, ok := <-p.receive:
		if !ok {
			return nil, ErrTransportClosed
		}
		return payload, nil
	}
}

// Close implements Transport.
func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
