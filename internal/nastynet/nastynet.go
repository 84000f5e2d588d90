// Package nastynet is a reference stand-in for the externally-supplied
// datagram socket the spec treats as an out-of-scope collaborator. UDPConn
// talks to a real net.UDPConn; Conn decorates any RawConn with simulated
// network nastiness (drop/duplicate/reorder/corrupt), for both local
// testing and for the production binaries (mirroring the original design,
// where the nasty socket wraps a real one regardless of side).
package nastynet

import (
	"math/rand"
	"sync"
	"time"

	"fcopy/internal/transport"
)

// MaxNastiness is the highest network nastiness level accepted (spec: 0-4).
const MaxNastiness = 4

var (
	dropProb     = [MaxNastiness + 1]float64{0, 0.05, 0.10, 0.20, 0.35}
	dupProb      = [MaxNastiness + 1]float64{0, 0.03, 0.07, 0.12, 0.20}
	reorderProb  = [MaxNastiness + 1]float64{0, 0.10, 0.20, 0.35, 0.50}
	corruptProb  = [MaxNastiness + 1]float64{0, 0.02, 0.05, 0.10, 0.20}
	reorderBurst = 3 // how many sends may queue before a forced flush
)

// RawConn is the pristine channel that Conn decorates with nastiness; it is
// satisfied by UDPConn (production) or an in-memory pipe (tests).
type RawConn interface {
	Send(b []byte) error
	Recv(timeout time.Duration) ([]byte, error)
}

// Conn wraps a RawConn, injecting simulated network nastiness on every
// send. It implements transport.Conn.
type Conn struct {
	raw       RawConn
	nastiness int
	rng       *rand.Rand

	mu      sync.Mutex
	pending [][]byte
}

// New wraps raw with the given network nastiness level (clamped 0-4).
func New(raw RawConn, nastiness int) *Conn {
	if nastiness < 0 {
		nastiness = 0
	}
	if nastiness > MaxNastiness {
		nastiness = MaxNastiness
	}
	return &Conn{
		raw:       raw,
		nastiness: nastiness,
		rng:       rand.New(rand.NewSource(int64(nastiness)*7919 + 1)),
	}
}

func (c *Conn) chance(p float64) bool {
	return c.rng.Float64() < p
}

// Send queues b for dispatch, possibly dropping, duplicating, corrupting,
// or reordering it relative to other recently-sent datagrams.
func (c *Conn) Send(b []byte) error {
	if c.nastiness == 0 {
		return c.raw.Send(b)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chance(dropProb[c.nastiness]) {
		return nil // silently dropped, never reaches the wire
	}

	data := make([]byte, len(b))
	copy(data, b)
	if c.chance(corruptProb[c.nastiness]) {
		corrupt(data, c.rng)
	}

	c.pending = append(c.pending, data)
	if c.chance(dupProb[c.nastiness]) {
		dup := make([]byte, len(data))
		copy(dup, data)
		c.pending = append(c.pending, dup)
	}

	if len(c.pending) >= reorderBurst || !c.chance(reorderProb[c.nastiness]) {
		return c.flushLocked()
	}
	return nil
}

// flushLocked dispatches all queued datagrams in a shuffled order.
func (c *Conn) flushLocked() error {
	batch := c.pending
	c.pending = nil
	c.rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
	for _, p := range batch {
		if err := c.raw.Send(p); err != nil {
			return err
		}
	}
	return nil
}

// Flush dispatches any datagrams still queued for reordering. Call this
// before shutting a Conn down so nothing is lost in the buffer.
func (c *Conn) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	return c.flushLocked()
}

// Recv delegates straight to the underlying RawConn; nastiness is injected
// at Send time on whichever side sent the datagram.
func (c *Conn) Recv(timeout time.Duration) ([]byte, error) {
	return c.raw.Recv(timeout)
}

func corrupt(buf []byte, rng *rand.Rand) {
	if len(buf) == 0 {
		return
	}
	flips := 1 + rng.Intn(3)
	for i := 0; i < flips; i++ {
		idx := rng.Intn(len(buf))
		buf[idx] ^= 1 << uint(rng.Intn(8))
	}
}

var _ transport.Conn = (*Conn)(nil)
