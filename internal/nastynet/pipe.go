package nastynet

import (
	"time"

	"fcopy/internal/transport"
)

// Pipe returns two connected in-memory RawConns, for tests that need a
// sender and receiver talking without a real socket.
func Pipe() (a, b RawConn) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	return &pipeConn{send: ab, recv: ba}, &pipeConn{send: ba, recv: ab}
}

type pipeConn struct {
	send chan<- []byte
	recv <-chan []byte
}

func (p *pipeConn) Send(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case p.send <- cp:
		return nil
	default:
		// Channel full: behaves like a congested link dropping the datagram.
		return nil
	}
}

func (p *pipeConn) Recv(timeout time.Duration) ([]byte, error) {
	select {
	case b := <-p.recv:
		return b, nil
	case <-time.After(timeout):
		return nil, transport.ErrTimeout
	}
}
