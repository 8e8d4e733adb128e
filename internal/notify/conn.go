package notify

import "github.com/google/uuid"

// DefaultBuffer is the queue length of a ChanConn.
const DefaultBuffer = 64

// ChanConn is a Conn backed by a buffered channel, drained by a transport
// goroutine.
type ChanConn struct {
	id string
	ch chan Message
}

var _ Conn = (*ChanConn)(nil)

// NewChanConn returns a connection with a fresh random id. A buffer of zero
// or less means DefaultBuffer.
func NewChanConn(buffer int) *ChanConn {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &ChanConn{id: uuid.NewString(), ch: make(chan Message, buffer)}
}

func (c *ChanConn) ID() string { return c.id }

func (c *ChanConn) Deliver(m Message) bool {
	select {
	case c.ch <- m:
		return true
	default:
		return false
	}
}

// C returns the channel of queued messages.
func (c *ChanConn) C() <-chan Message { return c.ch }
