package redis

import (
	"context"
	"strings"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hauxe/sioemitter/environment"
	lib "github.com/hauxe/sioemitter/library"
	sdklog "github.com/hauxe/sioemitter/log"
	"github.com/hauxe/sioemitter/trace"
)

// ConnectClientOptions type indicates connect client options
type ConnectClientOptions func() error

const (
	separator          = "|"
	standAloneServer   = "0.0.0.0:6379"
	sentinelServers    = ""
	sentinelMasterName = ""
	password           = ""
	db                 = 0
)

// ClientConfig contains configuration to connect to redis
type ClientConfig struct {
	Separator          string `env:"REDIS_SEPARATOR"`
	StandAloneServer   string `env:"REDIS_STAND_ALONE_SERVER"`
	SentinelServers    string `env:"REDIS_SENTINEL_SERVERS"`
	SentinelMasterName string `env:"REDIS_SENTINEL_MASTER_NAME"`
	Password           string `env:"REDIS_PASSWORD"`
	DB                 int    `env:"REDIS_DB"`
}

// Client publishes emitter payloads straight to redis pub/sub,
// the channel socket.io redis adapters subscribe to
type Client struct {
	Config      *ClientConfig
	C           *redis.Client
	TraceClient *trace.Client
	Logger      sdklog.Factory
}

// CreateClient create redis client
func CreateClient(options ...environment.CreateENVOptions) (client *Client, err error) {
	env, err := environment.CreateENV(options...)
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "create env"))
	}
	config := ClientConfig{separator, standAloneServer, sentinelServers,
		sentinelMasterName, password, db}
	if err = env.Parse(&config); err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "parse env"))
	}
	logger, err := sdklog.NewFactory()
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "get logger"))
	}
	return &Client{Config: &config, Logger: logger}, nil
}

// Connect connects to redis, standalone unless a failover option picked sentinels
func (c *Client) Connect(options ...ConnectClientOptions) (err error) {
	if c.Config == nil {
		return errors.New(lib.StringTags("connect redis client", "config not found"))
	}
	for _, op := range options {
		if err = op(); err != nil {
			return errors.Wrap(err, lib.StringTags("connect redis client", "option error"))
		}
	}
	if c.C == nil {
		if err = c.ConnectStandaloneClientOption()(); err != nil {
			return errors.Wrap(err, lib.StringTags("connect redis client", "standalone"))
		}
	}
	if _, err = c.C.Ping().Result(); err != nil {
		return errors.Wrap(err, lib.StringTags("connect redis client", "ping client"))
	}
	return nil
}

// Disconnect closes redis client and releases any open resources.
func (c *Client) Disconnect() (err error) {
	if c.C == nil {
		return nil
	}
	if err = c.C.Close(); err != nil {
		return errors.Wrap(err, lib.StringTags("disconnect redis client"))
	}
	return nil
}

// Publish publishes msg on channel. Strings and bytes are sent as is,
// other values are JSON encoded.
func (c *Client) Publish(ctx context.Context, channel string, msg interface{}) error {
	payload, err := lib.Payload(msg)
	if err != nil {
		return errors.Wrap(err, lib.StringTags("redis publish", channel))
	}
	return c.PublishRaw(ctx, channel, payload)
}

// PublishRaw publishes payload bytes on channel unchanged
func (c *Client) PublishRaw(ctx context.Context, channel string, payload []byte) (err error) {
	if c.C == nil {
		return errors.New(lib.StringTags("redis publish", "not connected"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c.TraceClient != nil {
		ctx, err = c.TraceClient.StartTracing(ctx,
			trace.Tag("channel", channel),
			trace.Tag("size", len(payload)))
		if err != nil {
			return errors.Wrap(err, lib.StringTags("redis publish", "trace error"))
		}
		defer func() {
			c.TraceClient.StopTracing(ctx, err)
		}()
	}
	receivers, err := c.C.WithContext(ctx).Publish(channel, payload).Result()
	if err != nil {
		return errors.Wrap(err, lib.StringTags("redis publish", channel))
	}
	c.Logger.For(ctx).Debug("redis published",
		zap.String("channel", channel),
		zap.Int64("receivers", receivers))
	return nil
}

// SetTracerOption set tracer
func (c *Client) SetTracerOption(tracer *trace.Client) ConnectClientOptions {
	return func() (err error) {
		c.TraceClient = tracer
		return nil
	}
}

// SetAuthOption set redis auth
func (c *Client) SetAuthOption(password string) ConnectClientOptions {
	return func() (err error) {
		c.Config.Password = password
		return nil
	}
}

// SetDBOption set redis db
func (c *Client) SetDBOption(db int) ConnectClientOptions {
	return func() (err error) {
		c.Config.DB = db
		return nil
	}
}

// SetServerOption set the standalone server address
func (c *Client) SetServerOption(address string) ConnectClientOptions {
	return func() (err error) {
		c.Config.StandAloneServer = address
		return nil
	}
}

// ConnectFailoverClientOption connect to failover client
func (c *Client) ConnectFailoverClientOption() ConnectClientOptions {
	return func() (err error) {
		if c.Config.SentinelMasterName == "" ||
			c.Config.SentinelServers == "" {
			return errors.New("invalid failover client config")
		}
		c.C = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    c.Config.SentinelMasterName,
			SentinelAddrs: strings.Split(c.Config.SentinelServers, c.Config.Separator),
			Password:      c.Config.Password,
			DB:            c.Config.DB,
		})
		return nil
	}
}

// ConnectStandaloneClientOption connect to standalone client
func (c *Client) ConnectStandaloneClientOption() ConnectClientOptions {
	return func() (err error) {
		if c.Config.StandAloneServer == "" {
			return errors.New("invalid standalone client config")
		}
		c.C = redis.NewClient(&redis.Options{
			Addr:     c.Config.StandAloneServer,
			Password: c.Config.Password,
			DB:       c.Config.DB,
		})
		return nil
	}
}
