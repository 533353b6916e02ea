package trace

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/hauxe/sioemitter/environment"
	lib "github.com/hauxe/sioemitter/library"
	sdklog "github.com/hauxe/sioemitter/log"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	zipkinot "github.com/openzipkin-contrib/zipkin-go-opentracing"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/reporter"
	zipkinhttp "github.com/openzipkin/zipkin-go/reporter/http"
	"github.com/openzipkin/zipkin-go/reporter/kafka"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// default tracer client config
	separator   = "|"
	servers     = "0.0.0.0:9092"
	serviceName = "socket.io-emitter"
	hostPort    = "0.0.0.0:0"
	sharedSpans = false
)

// defines tracer tag names
const (
	TracerTimeTag = "time"
	TracerFuncTag = "function"
	TracerFileTag = "file"
	TracerLineTag = "line"
)

// ClientConfig defines tracer client config properties
type ClientConfig struct {
	Separator   string `env:"TRACER_SEPARATOR"`
	Servers     string `env:"TRACER_KAFKA_SERVERS"`
	ServiceName string `env:"TRACER_SERVICE_NAME"`
	HostPort    string `env:"TRACER_HOST_PORT"`
	SharedSpans bool   `env:"TRACER_SHARED_SPANS"`
}

// Client defines tracer client properties
type Client struct {
	Config   *ClientConfig
	Reporter reporter.Reporter
	Tracer   opentracing.Tracer
	Logger   sdklog.Factory
}

// CreateClient creates tracer client
func CreateClient(options ...environment.CreateENVOptions) (client *Client, err error) {
	env, err := environment.CreateENV(options...)
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create tracer", "create env"))
	}
	config := ClientConfig{separator, servers, serviceName, hostPort, sharedSpans}
	if err = env.Parse(&config); err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create tracer", "parse env"))
	}
	logger, err := sdklog.NewFactory()
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create tracer", "get logger"))
	}
	return &Client{Config: &config, Logger: logger}, nil
}

// Connect builds the tracer, spans are dropped when no reporter option was given
func (c *Client) Connect(options ...func() error) (err error) {
	if c.Config == nil {
		return errors.New(lib.StringTags("connect tracer", "config not found"))
	}
	if err = lib.RunOptionalFunc(options...); err != nil {
		return errors.Wrap(err, lib.StringTags("connect tracer", "option error"))
	}
	if c.Reporter == nil {
		c.Reporter = reporter.NewNoopReporter()
	}
	endpoint, err := zipkin.NewEndpoint(c.Config.ServiceName, c.Config.HostPort)
	if err != nil {
		return errors.Wrap(err, lib.StringTags("connect tracer", "create endpoint"))
	}
	native, err := zipkin.NewTracer(c.Reporter,
		zipkin.WithLocalEndpoint(endpoint),
		zipkin.WithSharedSpans(c.Config.SharedSpans),
		zipkin.WithTraceID128Bit(true),
	)
	if err != nil {
		return errors.Wrap(err, lib.StringTags("connect tracer", "unable to create zipkin tracer"))
	}
	c.Tracer = zipkinot.Wrap(native)
	return nil
}

// Disconnect flushes and closes the reporter
func (c *Client) Disconnect() error {
	if c.Reporter != nil {
		return c.Reporter.Close()
	}
	return nil
}

// SetHostPortOption set tracing host and port option
func (c *Client) SetHostPortOption(host string, port int) func() error {
	return func() (err error) {
		c.Config.HostPort = lib.GetURL(host, port)
		return nil
	}
}

// SetServiceNameOption set tracing service name option
func (c *Client) SetServiceNameOption(serviceName string) func() error {
	return func() (err error) {
		c.Config.ServiceName = serviceName
		return nil
	}
}

// SetReporterOption set a ready made span reporter
func (c *Client) SetReporterOption(r reporter.Reporter) func() error {
	return func() (err error) {
		if r == nil {
			return errors.New("receive nil reporter")
		}
		c.Reporter = r
		return nil
	}
}

// SetKafkaReporterOption set tracing kafka reporter
func (c *Client) SetKafkaReporterOption(servers string) func() error {
	return func() (err error) {
		if servers == "" {
			servers = c.Config.Servers
		}
		c.Reporter, err = kafka.NewReporter(strings.Split(servers, c.Config.Separator))
		if err != nil {
			return errors.Wrap(err, lib.StringTags("connect tracer", "unable to create zipkin kafka reporter"))
		}
		return nil
	}
}

// SetHTTPReporterOption set tracing http reporter
func (c *Client) SetHTTPReporterOption(url string, options ...zipkinhttp.ReporterOption) func() error {
	return func() (err error) {
		if url == "" {
			return errors.New("must specify http reporter url")
		}
		c.Reporter = zipkinhttp.NewReporter(url, options...)
		return nil
	}
}

// StartTracing starts a span named after the calling function
func (c *Client) StartTracing(ctx context.Context, tags ...opentracing.StartSpanOption) (context.Context, error) {
	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		err := errors.New("get caller error")
		c.Logger.For(ctx).Error(err.Error())
		return nil, err
	}
	funcName := "start_tracing_func_name"
	if fc := runtime.FuncForPC(pc); fc != nil {
		parts := strings.Split(fc.Name(), ".")
		funcName = parts[len(parts)-1]
	}
	tags = append(tags, Tag(TracerFuncTag, funcName), Tag(TracerFileTag, file), Tag(TracerLineTag, line))
	return c.StartSpan(ctx, funcName, tags...)
}

// StartSpan starts a span with an explicit operation name
func (c *Client) StartSpan(ctx context.Context, operation string, tags ...opentracing.StartSpanOption) (context.Context, error) {
	if c.Tracer == nil {
		return nil, errors.New(lib.StringTags("start span", "tracer not connected"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tags = append(tags, Tag(TracerTimeTag, time.Now().Format(time.RFC3339)))
	_, ctx = opentracing.StartSpanFromContextWithTracer(ctx, c.Tracer, operation, tags...)
	return ctx, nil
}

// StopTracing finishes the span in ctx, err marks it as failed
func (c *Client) StopTracing(ctx context.Context, err error, tags ...opentracing.StartSpanOption) {
	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		c.Logger.For(ctx).Error("span not found")
		return
	}
	for _, tag := range tags {
		if t, ok := tag.(opentracing.Tag); ok {
			t.Set(span)
		}
	}
	if err != nil {
		c.Logger.For(ctx).Error("traced operation failed", zap.Error(err))
	}
	span.Finish()
}

// Inject writes the span context of ctx into HTTP headers
func (c *Client) Inject(ctx context.Context, header http.Header) error {
	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		return errors.New(lib.StringTags("inject", "span not found"))
	}
	ext.SpanKindRPCClient.Set(span)
	return c.Tracer.Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(header))
}

// Tag build a trace tag
func Tag(key string, value interface{}) opentracing.StartSpanOption {
	return opentracing.Tag{Key: key, Value: value}
}
