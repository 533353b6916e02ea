package emitter

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hauxe/sioemitter/broadcast"
	lib "github.com/hauxe/sioemitter/library"
	"github.com/hauxe/sioemitter/parser"
)

// Delivery is the outcome of one Emit
type Delivery struct {
	ID       string
	Channel  string
	Envelope parser.Envelope
	// Payload is the msg value handed to the publisher, nil when serialization failed
	Payload interface{}
	Err     error

	raw []byte
}

// Failed reports whether the emission did not reach the publisher successfully
func (d Delivery) Failed() bool {
	return d.Err != nil
}

// Listener receives deliveries
type Listener struct {
	r *broadcast.Receiver
}

// Next waits for the next delivery
func (l *Listener) Next(ctx context.Context) (Delivery, error) {
	v, err := l.r.ReadContext(ctx)
	if err != nil {
		return Delivery{}, errors.Wrap(err, lib.StringTags("listener", "next"))
	}
	d, ok := v.(Delivery)
	if !ok {
		return Delivery{}, errors.Errorf("unexpected delivery type %T", v)
	}
	return d, nil
}
