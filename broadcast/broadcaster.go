package broadcast

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed is returned once the broadcaster is closed
var ErrClosed = errors.New("broadcaster is closed")

type broadcast struct {
	c chan broadcast
	v interface{}
}

// Broadcaster fans every written value out to all receivers.
// Writers never wait for slow receivers.
type Broadcaster struct {
	listenc   chan chan chan broadcast
	sendc     chan interface{}
	shutdown  chan struct{}
	closeOnce sync.Once
}

// Receiver reads values written after it started listening
type Receiver struct {
	c        chan broadcast
	shutdown chan struct{}
}

// NewBroadcaster create a new broadcaster object.
func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{
		listenc:  make(chan chan chan broadcast),
		sendc:    make(chan interface{}),
		shutdown: make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broadcaster) run() {
	currc := make(chan broadcast, 1)
	for {
		select {
		case v := <-b.sendc:
			c := make(chan broadcast, 1)
			currc <- broadcast{c: c, v: v}
			currc = c
		case r := <-b.listenc:
			r <- currc
		case <-b.shutdown:
			return
		}
	}
}

// Close closes broadcaster, pending Read calls return ErrClosed
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		close(b.shutdown)
	})
}

// Listen start listening to the broadcasts.
func (b *Broadcaster) Listen() (*Receiver, error) {
	c := make(chan chan broadcast, 1)
	select {
	case b.listenc <- c:
	case <-b.shutdown:
		return nil, ErrClosed
	}
	return &Receiver{c: <-c, shutdown: b.shutdown}, nil
}

// Write broadcast a value to all listeners.
func (b *Broadcaster) Write(v interface{}) error {
	select {
	case b.sendc <- v:
		return nil
	case <-b.shutdown:
		return ErrClosed
	}
}

// Read read a value that has been broadcast,
// waiting until one is available if necessary.
func (r *Receiver) Read() (interface{}, error) {
	return r.ReadContext(context.Background())
}

// ReadContext is Read bounded by ctx
func (r *Receiver) ReadContext(ctx context.Context) (interface{}, error) {
	select {
	case b := <-r.c:
		// put it back for the other receivers sharing this node
		r.c <- b
		r.c = b.c
		return b.v, nil
	case <-r.shutdown:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "broadcast read")
	}
}
