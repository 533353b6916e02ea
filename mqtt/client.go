package mqtt

import (
	"context"
	"time"

	mq "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/hauxe/sioemitter/environment"
	lib "github.com/hauxe/sioemitter/library"
	"github.com/hauxe/sioemitter/trace"
)

const (
	clientHost           = "tcp://0.0.0.0"
	clientPort           = 1883
	clientUserName       = ""
	clientPassword       = ""
	clientQoS            = 0
	clientConnectTimeout = 10 * time.Second
)

// ClientConfig defines mqtt client config properties
type ClientConfig struct {
	Host           string        `env:"MQTT_CLIENT_HOST"`
	Port           int           `env:"MQTT_CLIENT_PORT"`
	UserName       string        `env:"MQTT_CLIENT_USERNAME"`
	Password       string        `env:"MQTT_CLIENT_PASSWORD"`
	QoS            int           `env:"MQTT_CLIENT_QOS"`
	ConnectTimeout time.Duration `env:"MQTT_CLIENT_CONNECT_TIMEOUT"`
}

// Client publishes emitter payloads on mqtt topics named after the channel
type Client struct {
	Config      *ClientConfig
	C           mq.Client
	TraceClient *trace.Client
}

// CreateClient create mqtt client
func CreateClient(options ...environment.CreateENVOptions) (client *Client, err error) {
	env, err := environment.CreateENV(options...)
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "create env"))
	}
	config := ClientConfig{clientHost, clientPort, clientUserName, clientPassword,
		clientQoS, clientConnectTimeout}
	if err = env.Parse(&config); err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "parse env"))
	}
	return &Client{Config: &config}, nil
}

// Connect connect to a mqtt server
func (c *Client) Connect(options ...func() error) (err error) {
	if c.Config == nil {
		return errors.New(lib.StringTags("connect client", "config not found"))
	}
	if err = lib.RunOptionalFunc(options...); err != nil {
		return errors.Wrap(err, lib.StringTags("connect client", "option error"))
	}
	if c.Config.QoS < 0 || c.Config.QoS > 2 {
		return errors.Errorf("invalid qos %d", c.Config.QoS)
	}
	opts := mq.NewClientOptions()
	opts.AddBroker(lib.GetURL(c.Config.Host, c.Config.Port))
	opts.SetUsername(c.Config.UserName)
	opts.SetPassword(c.Config.Password)
	opts.SetConnectTimeout(c.Config.ConnectTimeout)
	opts.SetAutoReconnect(true)

	c.C = mq.NewClient(opts)
	if token := c.C.Connect(); token.Wait() && token.Error() != nil {
		err := token.Error()
		return errors.Wrap(err, lib.StringTags("connect client"))
	}
	return nil
}

// Disconnect close all mqtt connections
func (c *Client) Disconnect() error {
	if c.C != nil {
		c.C.Disconnect(300)
	}
	return nil
}

// SetAuthOption set mqtt auth
func (c *Client) SetAuthOption(username, password string) func() error {
	return func() (err error) {
		c.Config.UserName = username
		c.Config.Password = password
		return nil
	}
}

// SetHostPortOption set client host port
func (c *Client) SetHostPortOption(host string, port int) func() error {
	return func() (err error) {
		c.Config.Host = host
		c.Config.Port = port
		return nil
	}
}

// SetQoSOption set publish quality of service
func (c *Client) SetQoSOption(qos int) func() error {
	return func() (err error) {
		if qos < 0 || qos > 2 {
			return errors.Errorf("invalid qos %d", qos)
		}
		c.Config.QoS = qos
		return nil
	}
}

// SetConnectTimeoutOption set connect timeout
func (c *Client) SetConnectTimeoutOption(timeout time.Duration) func() error {
	return func() (err error) {
		c.Config.ConnectTimeout = timeout
		return nil
	}
}

// SetTracerOption set tracer
func (c *Client) SetTracerOption(tracer *trace.Client) func() error {
	return func() (err error) {
		c.TraceClient = tracer
		return nil
	}
}

// Publish sends msg to the topic named channel
func (c *Client) Publish(ctx context.Context, channel string, msg interface{}) error {
	payload, err := lib.Payload(msg)
	if err != nil {
		return errors.Wrap(err, lib.StringTags("mqtt publish", channel))
	}
	return c.Send(ctx, payload, channel)
}

// PublishRaw sends payload bytes to the topic named channel unchanged
func (c *Client) PublishRaw(ctx context.Context, channel string, payload []byte) error {
	return c.Send(ctx, payload, channel)
}

// Send send a message to topic
func (c *Client) Send(ctx context.Context, msg []byte, to string) (err error) {
	if c.C == nil {
		return errors.New(lib.StringTags("send message", "not connected"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c.TraceClient != nil {
		ctx, err = c.TraceClient.StartTracing(ctx,
			trace.Tag("size", len(msg)),
			trace.Tag("to", to))
		if err != nil {
			return errors.Wrap(err, lib.StringTags("client send", "trace error"))
		}
		defer func() {
			c.TraceClient.StopTracing(ctx, err)
		}()
	}
	token := c.C.Publish(to, byte(c.Config.QoS), false, msg)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), lib.StringTags("send message", to))
	}
	if err = token.Error(); err != nil {
		return errors.Wrap(err, lib.StringTags("send message", to))
	}
	return nil
}
