package emitter

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	sdk "github.com/hauxe/sioemitter"
	"github.com/hauxe/sioemitter/broadcast"
	lib "github.com/hauxe/sioemitter/library"
	sdklog "github.com/hauxe/sioemitter/log"
	"github.com/hauxe/sioemitter/parser"
	"github.com/hauxe/sioemitter/pool"
	"github.com/hauxe/sioemitter/trace"
)

// LogPrefix starts every error line the emitter logs
const LogPrefix = "socket.io-emitter"

// ErrClosed is the delivery error of an Emit made after Close
var ErrClosed = errors.New("emitter is closed")

// flag names
const (
	FlagJSON      = "json"
	FlagVolatile  = "volatile"
	FlagBroadcast = "broadcast"
)

// Emitter publishes socket.io events to a relay channel.
// Rooms, flags and the namespace accumulate through the builder methods
// and apply to the next Emit only.
type Emitter struct {
	Config      *Options
	Base        string
	Channel     string
	Publisher   sdk.Publisher
	Codec       parser.Codec
	Worker      *pool.Worker
	TraceClient *trace.Client
	Logger      sdklog.Factory

	broadcaster *broadcast.Broadcaster
	pending     *inflight

	mux    sync.Mutex
	rooms  []string
	flags  map[string]interface{}
	notify []func(Delivery)
}

// Scope returns an emitter sharing e's publisher and listeners with its own
// empty targeting state and a copy of e's configuration
func (e *Emitter) Scope() *Emitter {
	config := *e.Config
	return &Emitter{
		Config:      &config,
		Base:        e.Base,
		Channel:     e.Channel,
		Publisher:   e.Publisher,
		Codec:       e.Codec,
		Worker:      e.Worker,
		TraceClient: e.TraceClient,
		Logger:      e.Logger,
		broadcaster: e.broadcaster,
		pending:     e.pending,
		rooms:       []string{},
		flags:       map[string]interface{}{},
	}
}

// JSON sets the json flag
func (e *Emitter) JSON() *Emitter {
	return e.flag(FlagJSON)
}

// Volatile sets the volatile flag
func (e *Emitter) Volatile() *Emitter {
	return e.flag(FlagVolatile)
}

// Broadcast sets the broadcast flag
func (e *Emitter) Broadcast() *Emitter {
	return e.flag(FlagBroadcast)
}

func (e *Emitter) flag(name string) *Emitter {
	e.mux.Lock()
	e.flags[name] = true
	e.mux.Unlock()
	e.Logger.Bg().Debug("flag on", zap.String("flag", name))
	return e
}

// To targets room, a room already targeted is ignored
func (e *Emitter) To(room string) *Emitter {
	e.mux.Lock()
	defer e.mux.Unlock()
	for _, r := range e.rooms {
		if r == room {
			return e
		}
	}
	e.rooms = append(e.rooms, room)
	e.Logger.Bg().Debug("room added", zap.String("room", room))
	return e
}

// In is an alias of To
func (e *Emitter) In(room string) *Emitter {
	return e.To(room)
}

// Of selects the namespace, the last call before Emit wins
func (e *Emitter) Of(nsp string) *Emitter {
	e.mux.Lock()
	e.flags[parser.NspFlag] = nsp
	e.mux.Unlock()
	e.Logger.Bg().Debug("namespace set", zap.String("nsp", nsp))
	return e
}

// Notify registers f for the outcome of the next Emit only
func (e *Emitter) Notify(f func(Delivery)) *Emitter {
	if f == nil {
		return e
	}
	e.mux.Lock()
	e.notify = append(e.notify, f)
	e.mux.Unlock()
	return e
}

// Rooms returns a copy of the pending rooms
func (e *Emitter) Rooms() []string {
	e.mux.Lock()
	defer e.mux.Unlock()
	rooms := make([]string, len(e.rooms))
	copy(rooms, e.rooms)
	return rooms
}

// Flags returns a copy of the pending flags
func (e *Emitter) Flags() map[string]interface{} {
	e.mux.Lock()
	defer e.mux.Unlock()
	flags := make(map[string]interface{}, len(e.flags))
	for k, v := range e.flags {
		flags[k] = v
	}
	return flags
}

// Emit sends event with args to the pending rooms and namespace then resets
// the targeting state. The publish is not awaited, its outcome is logged and
// reported to Notify callbacks and Listen receivers.
func (e *Emitter) Emit(event string, args ...interface{}) *Emitter {
	data := make([]interface{}, 0, len(args)+1)
	data = append(data, event)
	data = append(data, args...)

	e.mux.Lock()
	nsp := parser.RootNamespace
	if v, ok := e.flags[parser.NspFlag]; ok {
		nsp = lib.ToString(v)
		delete(e.flags, parser.NspFlag)
	}
	envelope := parser.Envelope{
		Packet:   parser.NewEventPacket(nsp, data),
		Metadata: parser.NewMetadata(e.rooms, e.flags),
	}
	notify := e.notify
	e.rooms = []string{}
	e.flags = map[string]interface{}{}
	e.notify = nil
	e.mux.Unlock()

	delivery := Delivery{
		ID:       uuid.New().String(),
		Channel:  e.Channel,
		Envelope: envelope,
	}
	logger := e.Logger.Bg().With(zap.String("id", delivery.ID))
	payload, raw, err := e.serialize(envelope)
	if err != nil {
		delivery.Err = errors.Wrap(err, lib.StringTags("emit", "serialize"))
		logger.Error(LogPrefix+": serialize failed", zap.Error(delivery.Err))
		e.complete(delivery, notify)
		return e
	}
	delivery.Payload = payload
	delivery.raw = raw
	logger.Debug("emitting",
		zap.String("event", event),
		zap.String("nsp", envelope.Packet.Nsp),
		zap.Stringer("type", envelope.Packet.Type),
		zap.Strings("rooms", envelope.Metadata.Rooms),
		zap.Bool("encode", e.Config.Encode))
	e.dispatch(delivery, notify)
	return e
}

// serialize returns the msg value posted to the relay: a msgpack hex string
// in encode mode, the raw JSON envelope otherwise. In encode mode the msgpack
// bytes are returned too for raw publishers.
func (e *Emitter) serialize(envelope parser.Envelope) (interface{}, []byte, error) {
	if e.Config.Encode {
		b, err := e.Codec.Encode(envelope)
		if err != nil {
			return nil, nil, err
		}
		return hex.EncodeToString(b), b, nil
	}
	if !e.Config.PlainTargeting {
		envelope.Metadata = parser.NewMetadata(nil, nil)
	}
	b, err := parser.JSONCodec{}.Encode(envelope)
	if err != nil {
		return nil, nil, err
	}
	return jsoniter.RawMessage(b), nil, nil
}

// dispatch never blocks the caller, a full worker pool delays the publish
// rather than the Emit
func (e *Emitter) dispatch(delivery Delivery, notify []func(Delivery)) {
	if !e.pending.add() {
		delivery.Err = ErrClosed
		e.complete(delivery, notify)
		return
	}
	run := func(ctx context.Context) error {
		defer e.pending.done()
		delivery.Err = e.publish(ctx, delivery)
		e.complete(delivery, notify)
		return delivery.Err
	}
	ctx := lib.WithRequestID(context.Background(), delivery.ID)
	if e.Worker == nil {
		go run(ctx)
		return
	}
	go func() {
		err := e.Worker.Submit(&pool.JobFunc{JobName: "emit " + delivery.ID, Ctx: ctx, F: run})
		if err != nil {
			defer e.pending.done()
			delivery.Err = errors.Wrap(err, lib.StringTags("emit", "queue publish"))
			e.complete(delivery, notify)
		}
	}()
}

func (e *Emitter) publish(ctx context.Context, delivery Delivery) (err error) {
	defer lib.Recover(func(er error) {
		if er != nil {
			err = er
		}
	})
	if e.Config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Config.PublishTimeout)
		defer cancel()
	}
	if e.TraceClient != nil {
		ctx, err = e.TraceClient.StartSpan(ctx, "emit",
			trace.Tag("channel", delivery.Channel),
			trace.Tag("nsp", delivery.Envelope.Packet.Nsp),
			trace.Tag("id", delivery.ID))
		if err != nil {
			return errors.Wrap(err, lib.StringTags("emit", "trace error"))
		}
		defer func() {
			e.TraceClient.StopTracing(ctx, err)
		}()
	}
	if e.Publisher == nil {
		return errors.New(lib.StringTags("emit", "publisher not found"))
	}
	if raw, ok := e.Publisher.(sdk.RawPublisher); ok && delivery.raw != nil {
		return raw.PublishRaw(ctx, delivery.Channel, delivery.raw)
	}
	return e.Publisher.Publish(ctx, delivery.Channel, delivery.Payload)
}

func (e *Emitter) complete(delivery Delivery, notify []func(Delivery)) {
	if delivery.Err != nil && delivery.Payload != nil {
		e.Logger.Bg().Error(LogPrefix+": publish failed",
			zap.String("id", delivery.ID),
			zap.String("url", e.Base),
			zap.Error(delivery.Err))
	}
	for _, f := range notify {
		f(delivery)
	}
	if err := e.broadcaster.Write(delivery); err != nil && err != broadcast.ErrClosed {
		e.Logger.Bg().Error(LogPrefix+": notify failed", zap.Error(err))
	}
}

// Listen returns a listener receiving every Delivery emitted from now on
// by e and the emitters scoped from it
func (e *Emitter) Listen() (*Listener, error) {
	r, err := e.broadcaster.Listen()
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("listen", "broadcaster"))
	}
	return &Listener{r: r}, nil
}

// Flush waits until every dispatched publish completed
func (e *Emitter) Flush() {
	e.pending.wait()
}

// Close flushes and stops the listeners, it is shared with scoped emitters.
// Emits made after Close fail with ErrClosed.
func (e *Emitter) Close() error {
	e.pending.close()
	e.broadcaster.Close()
	return nil
}

// inflight counts dispatched publishes, it refuses new ones once closed
type inflight struct {
	mux    sync.Mutex
	cond   *sync.Cond
	n      int
	closed bool
}

func newInflight() *inflight {
	f := &inflight{}
	f.cond = sync.NewCond(&f.mux)
	return f
}

func (f *inflight) add() bool {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.closed {
		return false
	}
	f.n++
	return true
}

func (f *inflight) done() {
	f.mux.Lock()
	f.n--
	if f.n <= 0 {
		f.cond.Broadcast()
	}
	f.mux.Unlock()
}

func (f *inflight) wait() {
	f.mux.Lock()
	for f.n > 0 {
		f.cond.Wait()
	}
	f.mux.Unlock()
}

func (f *inflight) close() {
	f.mux.Lock()
	f.closed = true
	f.mux.Unlock()
	f.wait()
}
