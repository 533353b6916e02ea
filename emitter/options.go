package emitter

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	sdk "github.com/hauxe/sioemitter"
	"github.com/hauxe/sioemitter/broadcast"
	"github.com/hauxe/sioemitter/environment"
	relay "github.com/hauxe/sioemitter/http"
	lib "github.com/hauxe/sioemitter/library"
	sdklog "github.com/hauxe/sioemitter/log"
	"github.com/hauxe/sioemitter/parser"
	"github.com/hauxe/sioemitter/pool"
	"github.com/hauxe/sioemitter/trace"
)

const (
	// default emitter config
	host           = "http://localhost"
	port           = 0
	db             = ""
	key            = "socket.io"
	encode         = false
	plainTargeting = false
	publishTimeout = time.Duration(0)

	channelSuffix = "#emitter"
)

// Options configures an Emitter. Host may carry the port ("relay:8080",
// "http://user:pw@relay:8080") when Port is zero.
type Options struct {
	Host string `env:"EMITTER_HOST"`
	Port int    `env:"EMITTER_PORT"`
	DB   string `env:"EMITTER_DB"`
	Key  string `env:"EMITTER_KEY"`
	// Encode sends msgpack hex payloads instead of the plain envelope
	Encode bool `env:"EMITTER_ENCODE"`
	// PlainTargeting keeps rooms and flags in plain payloads, they are emptied otherwise
	PlainTargeting bool          `env:"EMITTER_PLAIN_TARGETING"`
	PublishTimeout time.Duration `env:"EMITTER_PUBLISH_TIMEOUT"`
}

// New creates an emitter posting to Host:Port/DB. It never fails,
// a bad address only shows up as a publish error.
func New(opts Options) *Emitter {
	logger, err := sdklog.NewFactory()
	if err != nil {
		logger = sdklog.NewFactoryFrom(zap.NewNop())
	}
	return newEmitter(opts, logger)
}

// CreateEmitter creates an emitter from the EMITTER_* environment
func CreateEmitter(options ...environment.CreateENVOptions) (*Emitter, error) {
	env, err := environment.CreateENV(options...)
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create emitter", "create env"))
	}
	opts := Options{host, port, db, key, encode, plainTargeting, publishTimeout}
	if err = env.Parse(&opts); err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create emitter", "parse env"))
	}
	logger, err := sdklog.NewFactory()
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create emitter", "get logger"))
	}
	return newEmitter(opts, logger), nil
}

func newEmitter(opts Options, logger sdklog.Factory) *Emitter {
	if opts.Port == 0 {
		opts.Host, opts.Port = lib.SplitHostPort(opts.Host)
	}
	if opts.Key == "" {
		opts.Key = key
	}
	base := lib.GetURL(opts.Host, opts.Port) + "/" + strings.TrimPrefix(opts.DB, "/")
	logger = logger.With(zap.String("emitter", opts.Key+channelSuffix))
	return &Emitter{
		Config:      &opts,
		Base:        base,
		Channel:     opts.Key + channelSuffix,
		Publisher:   relay.NewClient(relay.ClientConfig{URL: base}, logger),
		Codec:       parser.MsgpackCodec{},
		Logger:      logger,
		broadcaster: broadcast.NewBroadcaster(),
		pending:     newInflight(),
		rooms:       []string{},
		flags:       map[string]interface{}{},
	}
}

// Connect applies options, it implements the sdk Client interface
func (e *Emitter) Connect(options ...func() error) (err error) {
	if e.Config == nil {
		return errors.New(lib.StringTags("connect emitter", "config not found"))
	}
	if err = lib.RunOptionalFunc(options...); err != nil {
		return errors.Wrap(err, lib.StringTags("connect emitter", "option error"))
	}
	return nil
}

// Disconnect waits for in flight publishes and stops notifications
func (e *Emitter) Disconnect() error {
	return e.Close()
}

// SetPublisherOption replaces the relay http client, e.g. by a redis or mqtt publisher
func (e *Emitter) SetPublisherOption(publisher sdk.Publisher) func() error {
	return func() (err error) {
		if publisher == nil {
			return errors.New("publisher is nil")
		}
		e.Publisher = publisher
		return nil
	}
}

// SetWorkerOption runs publishes as jobs of a started worker pool
// instead of one goroutine per emission
func (e *Emitter) SetWorkerOption(worker *pool.Worker) func() error {
	return func() (err error) {
		e.Worker = worker
		return nil
	}
}

// SetLoggerOption set logger
func (e *Emitter) SetLoggerOption(logger sdklog.Factory) func() error {
	return func() (err error) {
		e.Logger = logger.With(zap.String("emitter", e.Channel))
		return nil
	}
}

// SetTracerOption set tracer, it is shared with the default relay client
func (e *Emitter) SetTracerOption(tracer *trace.Client) func() error {
	return func() (err error) {
		e.TraceClient = tracer
		if client, ok := e.Publisher.(*relay.Client); ok {
			client.TraceClient = tracer
		}
		return nil
	}
}

// SetCodecOption set the binary codec used in encode mode
func (e *Emitter) SetCodecOption(codec parser.Codec) func() error {
	return func() (err error) {
		if codec == nil {
			return errors.New("codec is nil")
		}
		e.Codec = codec
		return nil
	}
}

// SetEncodeOption switch encode mode
func (e *Emitter) SetEncodeOption(encode bool) func() error {
	return func() (err error) {
		e.Config.Encode = encode
		return nil
	}
}

// SetPlainTargetingOption keep rooms and flags in plain mode payloads
func (e *Emitter) SetPlainTargetingOption(enabled bool) func() error {
	return func() (err error) {
		e.Config.PlainTargeting = enabled
		return nil
	}
}

// SetPublishTimeoutOption bounds every publish, zero leaves it to the publisher
func (e *Emitter) SetPublishTimeoutOption(timeout time.Duration) func() error {
	return func() (err error) {
		if timeout < 0 {
			return errors.Errorf("invalid publish timeout %s", timeout)
		}
		e.Config.PublishTimeout = timeout
		return nil
	}
}
