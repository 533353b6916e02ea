package circuitbreaker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cep21/circuit/v3"
	"github.com/cep21/circuit/v3/closers/hystrix"
	"github.com/cep21/circuit/v3/metriceventstream"
	"github.com/cep21/circuit/v3/metrics/rolling"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	sdk "github.com/hauxe/sioemitter"
	lib "github.com/hauxe/sioemitter/library"
	sdklog "github.com/hauxe/sioemitter/log"
)

// CreateClientOptions type indicates create client options
type CreateClientOptions func(*circuit.Manager) error

// StartClientOptions type indicates start client options
type StartClientOptions func(*circuit.Config, *hystrix.ConfigureCloser, *hystrix.ConfigureOpener) error

// Client keeps one circuit per relay destination
type Client struct {
	manager *circuit.Manager
	Logger  sdklog.Factory
	streams []*metriceventstream.MetricEventStream
	mux     sync.Mutex
}

// CreateClient create new circuit client, rolling stats are always collected
func CreateClient(options ...CreateClientOptions) (*Client, error) {
	stats := rolling.StatFactory{}
	manager := circuit.Manager{
		DefaultCircuitProperties: []circuit.CommandPropertiesConstructor{stats.CreateConfig},
	}
	for _, op := range options {
		if err := op(&manager); err != nil {
			return nil, errors.Wrap(err, lib.StringTags("create client", "option error"))
		}
	}
	logger, err := sdklog.NewFactory()
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "get logger"))
	}
	return &Client{manager: &manager, Logger: logger}, nil
}

// SetDefaultCircuitProperty set default circuit constructor
func SetDefaultCircuitProperty(cons circuit.CommandPropertiesConstructor) CreateClientOptions {
	return func(manager *circuit.Manager) error {
		manager.DefaultCircuitProperties = append(manager.DefaultCircuitProperties, cons)
		return nil
	}
}

// Start with a circuit name
func (c *Client) Start(name string, options ...StartClientOptions) error {
	// default is no timeout no max concurrent request
	config := circuit.Config{
		Execution: circuit.ExecutionConfig{
			Timeout:               time.Duration(-1),
			MaxConcurrentRequests: -1,
		},
		Fallback: circuit.FallbackConfig{
			MaxConcurrentRequests: -1,
		},
	}
	closerConfig := hystrix.ConfigureCloser{}
	openerConfig := hystrix.ConfigureOpener{}
	for _, op := range options {
		if err := op(&config, &closerConfig, &openerConfig); err != nil {
			return errors.Wrap(err, lib.StringTags("start client", "option error"))
		}
	}
	config.General.OpenToClosedFactory = hystrix.CloserFactory(closerConfig)
	config.General.ClosedToOpenFactory = hystrix.OpenerFactory(openerConfig)
	if _, err := c.manager.CreateCircuit(name, config); err != nil {
		return errors.Wrap(err, lib.StringTags("start client", "create circuit"))
	}
	return nil
}

// SetExecuteTimeoutOption set execution timeout config
func (c *Client) SetExecuteTimeoutOption(timeout time.Duration) StartClientOptions {
	return func(config *circuit.Config, _ *hystrix.ConfigureCloser, _ *hystrix.ConfigureOpener) error {
		config.Execution.Timeout = timeout
		return nil
	}
}

// SetExecuteMaxConcurrentRequestsOption set execution max concurrent config
func (c *Client) SetExecuteMaxConcurrentRequestsOption(maxConn int64) StartClientOptions {
	return func(config *circuit.Config, _ *hystrix.ConfigureCloser, _ *hystrix.ConfigureOpener) error {
		config.Execution.MaxConcurrentRequests = maxConn
		return nil
	}
}

// SetFallbackDisable set fallback disable/enable
func (c *Client) SetFallbackDisable(disable bool) StartClientOptions {
	return func(config *circuit.Config, _ *hystrix.ConfigureCloser, _ *hystrix.ConfigureOpener) error {
		config.Fallback.Disabled = disable
		return nil
	}
}

// SetCloserSleepWindow set closer sleep window
func (c *Client) SetCloserSleepWindow(sleepWindow time.Duration) StartClientOptions {
	return func(_ *circuit.Config, closer *hystrix.ConfigureCloser, _ *hystrix.ConfigureOpener) error {
		closer.SleepWindow = sleepWindow
		return nil
	}
}

// SetCloserAttempts set closer attempts
func (c *Client) SetCloserAttempts(attempts int64) StartClientOptions {
	return func(_ *circuit.Config, closer *hystrix.ConfigureCloser, _ *hystrix.ConfigureOpener) error {
		closer.HalfOpenAttempts = attempts
		return nil
	}
}

// SetCloserRequiredSuccessful set closer required successful request before close
func (c *Client) SetCloserRequiredSuccessful(require int64) StartClientOptions {
	return func(_ *circuit.Config, closer *hystrix.ConfigureCloser, _ *hystrix.ConfigureOpener) error {
		closer.RequiredConcurrentSuccessful = require
		return nil
	}
}

// SetOpenerErrorThreshold set opener error threshold
func (c *Client) SetOpenerErrorThreshold(threshold int64) StartClientOptions {
	return func(_ *circuit.Config, _ *hystrix.ConfigureCloser, opener *hystrix.ConfigureOpener) error {
		opener.ErrorThresholdPercentage = threshold
		return nil
	}
}

// SetOpenerRequestThreshold set opener request threshold
func (c *Client) SetOpenerRequestThreshold(threshold int64) StartClientOptions {
	return func(_ *circuit.Config, _ *hystrix.ConfigureCloser, opener *hystrix.ConfigureOpener) error {
		opener.RequestVolumeThreshold = threshold
		return nil
	}
}

// SetOpenerRollingDuration set opener rolling duration
func (c *Client) SetOpenerRollingDuration(rollingDuration time.Duration) StartClientOptions {
	return func(_ *circuit.Config, _ *hystrix.ConfigureCloser, opener *hystrix.ConfigureOpener) error {
		opener.RollingDuration = rollingDuration
		return nil
	}
}

// SetOpenerNumBuckets set opener number of buckets
func (c *Client) SetOpenerNumBuckets(buckets int) StartClientOptions {
	return func(_ *circuit.Config, _ *hystrix.ConfigureCloser, opener *hystrix.ConfigureOpener) error {
		opener.NumBuckets = buckets
		return nil
	}
}

// Execute execute based on circuit
func (c *Client) Execute(ctx context.Context, name string,
	runFunc func(context.Context) error, fallbackFunc func(context.Context, error) error) error {
	cb := c.manager.GetCircuit(name)
	if cb == nil {
		return errors.Errorf("no circuit match name %s", name)
	}
	if err := cb.Execute(ctx, runFunc, fallbackFunc); err != nil {
		return errors.Wrap(err, lib.StringTags("execute", name))
	}
	return nil
}

// IsOpen reports whether the named circuit currently rejects calls
func (c *Client) IsOpen(name string) bool {
	cb := c.manager.GetCircuit(name)
	return cb != nil && cb.IsOpen()
}

// Guard wraps publisher so every publish runs inside the named circuit.
// The circuit is created with options unless it already exists. A raw
// publisher stays raw once guarded.
func (c *Client) Guard(name string, publisher sdk.Publisher, options ...StartClientOptions) (sdk.Publisher, error) {
	if publisher == nil {
		return nil, errors.New(lib.StringTags("guard", "publisher is nil"))
	}
	if c.manager.GetCircuit(name) == nil {
		if err := c.Start(name, options...); err != nil {
			return nil, errors.Wrap(err, lib.StringTags("guard", name))
		}
	}
	g := &guarded{client: c, name: name, publisher: publisher}
	if raw, ok := publisher.(sdk.RawPublisher); ok {
		return &guardedRaw{guarded: g, raw: raw}, nil
	}
	return g, nil
}

type guarded struct {
	client    *Client
	name      string
	publisher sdk.Publisher
}

func (g *guarded) Publish(ctx context.Context, channel string, msg interface{}) error {
	return g.client.Execute(ctx, g.name, func(ctx context.Context) error {
		return g.publisher.Publish(ctx, channel, msg)
	}, nil)
}

type guardedRaw struct {
	*guarded
	raw sdk.RawPublisher
}

func (g *guardedRaw) PublishRaw(ctx context.Context, channel string, payload []byte) error {
	return g.client.Execute(ctx, g.name, func(ctx context.Context) error {
		return g.raw.PublishRaw(ctx, channel, payload)
	}, nil)
}

// GetMetricsHandler enable metrics and return metrics handler
func (c *Client) GetMetricsHandler(ctx context.Context) http.Handler {
	es := &metriceventstream.MetricEventStream{
		Manager: c.manager,
	}
	c.mux.Lock()
	c.streams = append(c.streams, es)
	c.mux.Unlock()
	go func() {
		if err := es.Start(); err != nil {
			c.Logger.For(ctx).Error("circuit breaker metrics error", zap.Error(err))
		}
	}()
	return es
}

// Close stops the metric streams
func (c *Client) Close() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	for _, es := range c.streams {
		if err := es.Close(); err != nil {
			return errors.Wrap(err, lib.StringTags("close", "metric stream"))
		}
	}
	c.streams = nil
	return nil
}

// BadRequest construct a bad request error, bad requests never open a circuit
func BadRequest(err error) circuit.SimpleBadRequest {
	return circuit.SimpleBadRequest{Err: err}
}
