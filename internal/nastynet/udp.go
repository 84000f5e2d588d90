package nastynet

import (
	"net"
	"sync"
	"time"

	"fcopy/internal/transport"
)

const recvBufSize = 2048

// DialUDP opens a client-side socket bound to one server address, for use
// by the sender side of the protocol.
func DialUDP(serverAddr string) (*UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	return &UDPConn{conn: conn}, nil
}

// ListenUDP opens a server-side socket on port, for use by the receiver.
// It replies to whichever peer address most recently sent it a datagram,
// which is sufficient for a protocol that serves one session at a time.
func ListenUDP(port int) (*UDPConn, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPConn{conn: conn}, nil
}

// UDPConn is a RawConn backed by a real net.UDPConn.
type UDPConn struct {
	conn *net.UDPConn

	mu     sync.Mutex
	remote *net.UDPAddr // set once a datagram has been received (server side)
}

// Send writes b to the dialed peer, or to the last-seen remote address if
// this UDPConn was opened with ListenUDP.
func (u *UDPConn) Send(b []byte) error {
	u.mu.Lock()
	remote := u.remote
	u.mu.Unlock()

	if remote != nil && u.conn.RemoteAddr() == nil {
		_, err := u.conn.WriteToUDP(b, remote)
		return err
	}
	_, err := u.conn.Write(b)
	return err
}

// Recv reads one datagram, returning transport.ErrTimeout if none arrives
// within timeout.
func (u *UDPConn) Recv(timeout time.Duration) ([]byte, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	buf := make([]byte, recvBufSize)
	n, addr, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, transport.ErrTimeout
		}
		return nil, err
	}

	u.mu.Lock()
	u.remote = addr
	u.mu.Unlock()

	return buf[:n], nil
}

// Close releases the underlying socket.
func (u *UDPConn) Close() error {
	return u.conn.Close()
}
