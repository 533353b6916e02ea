package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hauxe/sioemitter/environment"
	lib "github.com/hauxe/sioemitter/library"
	sdklog "github.com/hauxe/sioemitter/log"
	"github.com/hauxe/sioemitter/trace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StartClientOptions type indicates start client options
type StartClientOptions func() error

// SendClientOptions type indicates send client options
type SendClientOptions func(*RequestOption) error

const (
	relayURL        = ""
	timeout         = 32
	tlsVerification = false
	strictStatus    = false
)

// ClientConfig contains default config for the relay http client
type ClientConfig struct {
	URL             string `env:"HTTP_CLIENT_URL"`
	Timeout         int    `env:"HTTP_CLIENT_TIMEOUT"`
	TLSVerification bool   `env:"HTTP_CLIENT_TLS_VERIFICATION"`
	StrictStatus    bool   `env:"HTTP_CLIENT_STRICT_STATUS"`
}

// RequestOption contains optional header, query, body, timeout of the request
type RequestOption struct {
	Header    map[string]interface{}
	Query     map[string]interface{}
	Body      io.Reader
	Timeout   time.Duration
	Transport http.RoundTripper
	headerMux sync.Mutex
}

// Message is the body posted to the relay endpoint
type Message struct {
	Channel string      `json:"channel"`
	Msg     interface{} `json:"msg"`
}

// Client posts messages to a relay endpoint
type Client struct {
	Config      *ClientConfig
	TraceClient *trace.Client
	Logger      sdklog.Factory
	C           *http.Client
}

// CreateClient creates relay client from environment
func CreateClient(options ...environment.CreateENVOptions) (client *Client, err error) {
	env, err := environment.CreateENV(options...)
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "create env"))
	}
	config := ClientConfig{relayURL, timeout, tlsVerification, strictStatus}
	if err = env.Parse(&config); err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "parse env"))
	}
	logger, err := sdklog.NewFactory()
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "get logger"))
	}
	return NewClient(config, logger), nil
}

// NewClient creates a ready to use relay client from config
func NewClient(config ClientConfig, logger sdklog.Factory) *Client {
	if config.Timeout <= 0 {
		config.Timeout = timeout
	}
	c := &Client{Config: &config, Logger: logger}
	c.C = c.newHTTPClient()
	return c
}

func (c *Client) newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: time.Duration(c.Config.Timeout) * time.Second,
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !c.Config.TLSVerification},
		},
	}
}

// Connect applies options and rebuilds the underlying http client
func (c *Client) Connect(options ...StartClientOptions) (err error) {
	if c.Config == nil {
		return errors.New(lib.StringTags("connect client", "config not found"))
	}
	for _, op := range options {
		if err = op(); err != nil {
			return errors.Wrap(err, lib.StringTags("connect client", "option error"))
		}
	}
	c.C = c.newHTTPClient()
	return nil
}

// Disconnect closes idle relay connections
func (c *Client) Disconnect() error {
	if c.C != nil {
		c.C.CloseIdleConnections()
	}
	return nil
}

// SetTracerOption set tracer
func (c *Client) SetTracerOption(tracer *trace.Client) StartClientOptions {
	return func() (err error) {
		c.TraceClient = tracer
		return nil
	}
}

// SetURLOption set relay url
func (c *Client) SetURLOption(url string) StartClientOptions {
	return func() (err error) {
		c.Config.URL = url
		return nil
	}
}

// SetTimeoutOption set client timeout in seconds
func (c *Client) SetTimeoutOption(seconds int) StartClientOptions {
	return func() (err error) {
		if seconds <= 0 {
			return errors.Errorf("invalid timeout %d", seconds)
		}
		c.Config.Timeout = seconds
		return nil
	}
}

// SetStrictStatusOption makes Publish fail on non 2xx answers
func (c *Client) SetStrictStatusOption(strict bool) StartClientOptions {
	return func() (err error) {
		c.Config.StrictStatus = strict
		return nil
	}
}

// Publish posts {channel, msg} as JSON to the relay url.
// Only transport failures are errors unless StrictStatus is set.
func (c *Client) Publish(ctx context.Context, channel string, msg interface{}) error {
	res, err := c.Send(ctx, http.MethodPost, c.Config.URL,
		c.SetRequestOptionJSON(Message{Channel: channel, Msg: msg}))
	if err != nil {
		return errors.Wrap(err, lib.StringTags("publish", channel))
	}
	defer res.Body.Close()
	if c.Config.StrictStatus && (res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices) {
		body, _ := ReadBodyString(res)
		return errors.Wrap(&StatusError{StatusCode: res.StatusCode, Body: body},
			lib.StringTags("publish", channel))
	}
	_, _ = io.Copy(ioutil.Discard, res.Body)
	return nil
}

// Send sends general request to a URL and returns HTTP response
func (c *Client) Send(ctx context.Context, method string, url string,
	options ...SendClientOptions) (res *http.Response, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	requestOption := &RequestOption{}
	for _, op := range options {
		if err = op(requestOption); err != nil {
			return nil, errors.Wrap(err, lib.StringTags("client send", "option error"))
		}
	}
	request, err := http.NewRequest(method, url, requestOption.Body)
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("client send", "new request"))
	}
	if requestOption.Query != nil {
		q := request.URL.Query()
		for key, val := range requestOption.Query {
			q.Add(key, lib.ToString(val))
		}
		request.URL.RawQuery = q.Encode()
	}
	request.Header.Set(HeaderUserAgent, userAgent)
	if id := lib.RequestID(ctx); id != "" {
		request.Header.Set(HeaderRequestID, id)
	}
	for key, val := range requestOption.Header {
		request.Header.Set(key, lib.ToString(val))
	}

	if c.TraceClient != nil {
		ctx, err = c.TraceClient.StartSpan(ctx, "relay "+strings.ToLower(method),
			trace.Tag(string(ext.HTTPMethod), method),
			trace.Tag(string(ext.HTTPUrl), url))
		if err != nil {
			return nil, errors.Wrap(err, lib.StringTags("client send", "trace error"))
		}
		if injectErr := c.TraceClient.Inject(ctx, request.Header); injectErr != nil {
			c.Logger.For(ctx).Error("inject span failed", zap.Error(injectErr))
		}
		defer func() {
			if res != nil {
				c.TraceClient.StopTracing(ctx, err, trace.Tag(string(ext.HTTPStatusCode), res.StatusCode))
				return
			}
			c.TraceClient.StopTracing(ctx, err)
		}()
	}

	client := c.C
	if client == nil {
		client = c.newHTTPClient()
	}
	if requestOption.Timeout > 0 || requestOption.Transport != nil {
		custom := *client
		if requestOption.Timeout > 0 {
			custom.Timeout = requestOption.Timeout
		}
		if requestOption.Transport != nil {
			custom.Transport = requestOption.Transport
		}
		client = &custom
	}
	res, err = client.Do(request.WithContext(ctx))
	return res, err
}

// SetRequestOptionJSON set request json
func (c *Client) SetRequestOptionJSON(body interface{}) SendClientOptions {
	return func(ro *RequestOption) error {
		err := c.SetRequestOptionHeader(map[string]interface{}{
			HeaderContentType: ContentTypeJSON,
		})(ro)
		if err != nil {
			return errors.Wrap(err, lib.StringTags("set request option", "set json header"))
		}
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, lib.StringTags("set request option",
				fmt.Sprintf("error marshaling body: %v", body)))
		}
		ro.Body = bytes.NewReader(data)
		return nil
	}
}

// SetRequestOptionQuery set request query
func (c *Client) SetRequestOptionQuery(query map[string]interface{}) SendClientOptions {
	return func(ro *RequestOption) error {
		ro.Query = query
		return nil
	}
}

// SetRequestOptionHeader set request header
func (c *Client) SetRequestOptionHeader(headers map[string]interface{}) SendClientOptions {
	return func(ro *RequestOption) error {
		ro.headerMux.Lock()
		defer ro.headerMux.Unlock()
		if ro.Header == nil {
			ro.Header = make(map[string]interface{}, len(headers))
		}
		for key, header := range headers {
			ro.Header[key] = header
		}
		return nil
	}
}

// SetRequestOptionTimeout set request timeout
func (c *Client) SetRequestOptionTimeout(timeout time.Duration) SendClientOptions {
	return func(ro *RequestOption) error {
		ro.Timeout = timeout
		return nil
	}
}

// SetRequestOptionTransport set request transport
func (c *Client) SetRequestOptionTransport(transport http.RoundTripper) SendClientOptions {
	return func(ro *RequestOption) error {
		ro.Transport = transport
		return nil
	}
}

// ParseJSON parses response body to json type
func (c *Client) ParseJSON(resp *http.Response, dest interface{}) error {
	if resp == nil {
		return errors.New("response is nil")
	}
	if resp.Body == nil {
		return errors.New("body is nil")
	}
	defer resp.Body.Close()
	d := json.NewDecoder(resp.Body)
	d.UseNumber()
	return d.Decode(dest)
}

// ReadBodyString read response body as string
func ReadBodyString(r *http.Response) (string, error) {
	if r == nil {
		return "", errors.New("response is nil")
	}
	if r.Body == nil {
		return "", nil
	}
	defer r.Body.Close()
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
