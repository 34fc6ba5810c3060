package server

import (
	"errors"
	"log"
	"sync"
)

var (
	// ErrOutletClosed is returned by Send after the outlet was closed.
	ErrOutletClosed = errors.New("server: outlet closed")
	// ErrSlowConsumer is returned by Send when the queue is full. The
	// connection is dropped.
	ErrSlowConsumer = errors.New("server: client not keeping up")
)

// outlet queues lines for one connection and writes them from its own
// goroutine, so Send never blocks the session.
type outlet struct {
	conn  Conn
	queue chan string
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newOutlet(conn Conn, size int) *outlet {
	if size < 1 {
		size = 1
	}
	o := &outlet{
		conn:  conn,
		queue: make(chan string, size),
		done:  make(chan struct{}),
	}
	go o.run()
	return o
}

// Send queues line without blocking.
func (o *outlet) Send(line string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutletClosed
	}
	select {
	case o.queue <- line:
		return nil
	default:
		o.closeLocked()
		_ = o.conn.Close()
		return ErrSlowConsumer
	}
}

// Close stops accepting lines. Lines already queued are still written
// before the connection is closed.
func (o *outlet) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeLocked()
	return nil
}

func (o *outlet) closeLocked() {
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
}

// abort drops the connection without flushing.
func (o *outlet) abort() {
	o.mu.Lock()
	o.closeLocked()
	o.mu.Unlock()
	_ = o.conn.Close()
}

func (o *outlet) run() {
	defer close(o.done)
	for line := range o.queue {
		if err := o.conn.WriteLine(line); err != nil {
			log.Printf("write to %s: %v", o.conn.RemoteAddr(), err)
			o.abort()
			for range o.queue {
			}
			return
		}
	}
	_ = o.conn.Close()
}

// wait blocks until the writer has exited.
func (o *outlet) wait() { <-o.done }
