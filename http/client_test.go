package http

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openzipkin/zipkin-go/reporter/recorder"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hauxe/sioemitter/environment"
	lib "github.com/hauxe/sioemitter/library"
	sdklog "github.com/hauxe/sioemitter/log"
	"github.com/hauxe/sioemitter/trace"
)

type captured struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

func createRelay(t *testing.T, status int) (*httptest.Server, <-chan captured) {
	requests := make(chan captured, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		require.Nil(t, err)
		requests <- captured{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header,
			Body:   string(body),
		}
		w.WriteHeader(status)
		w.Write([]byte(`{"ok":true}`))
	}))
	return server, requests
}

func TestCreateClient(t *testing.T) {
	t.Parallel()
	t.Run("env error", func(t *testing.T) {
		t.Parallel()
		client, err := CreateClient(func(_ *environment.ENVConfig) error {
			return errors.New("env error")
		})
		require.Error(t, err)
		require.Nil(t, client)
	})
	t.Run("success", func(t *testing.T) {
		t.Parallel()
		client, err := CreateClient()
		require.Nil(t, err)
		require.Equal(t, timeout, client.Config.Timeout)
		require.False(t, client.Config.StrictStatus)
		require.NotNil(t, client.C)
	})
}

func TestConnect(t *testing.T) {
	t.Parallel()
	t.Run("no config", func(t *testing.T) {
		t.Parallel()
		client := Client{}
		require.Error(t, client.Connect())
	})
	t.Run("option error", func(t *testing.T) {
		t.Parallel()
		client := NewClient(ClientConfig{}, sdklog.Factory{})
		require.Error(t, client.Connect(client.SetTimeoutOption(0)))
	})
	t.Run("success", func(t *testing.T) {
		t.Parallel()
		client := NewClient(ClientConfig{}, sdklog.Factory{})
		require.Nil(t, client.Connect(
			client.SetURLOption("http://relay/db"),
			client.SetTimeoutOption(5),
			client.SetStrictStatusOption(true)))
		require.Equal(t, "http://relay/db", client.Config.URL)
		require.Equal(t, 5*time.Second, client.C.Timeout)
		require.True(t, client.Config.StrictStatus)
		require.Nil(t, client.Disconnect())
	})
}

func TestPublish(t *testing.T) {
	t.Parallel()
	t.Run("success", func(t *testing.T) {
		t.Parallel()
		server, requests := createRelay(t, http.StatusOK)
		defer server.Close()
		client := NewClient(ClientConfig{URL: server.URL + "/events"}, sdklog.Factory{})
		ctx := lib.WithRequestID(context.Background(), "emission-1")
		err := client.Publish(ctx, "socket.io#emitter", []interface{}{"a", 1})
		require.Nil(t, err)
		req := <-requests
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "/events", req.Path)
		require.Equal(t, ContentTypeJSON, req.Header.Get(HeaderContentType))
		require.Equal(t, "emission-1", req.Header.Get(HeaderRequestID))
		require.JSONEq(t, `{"channel":"socket.io#emitter","msg":["a",1]}`, req.Body)
	})
	t.Run("status ignored", func(t *testing.T) {
		t.Parallel()
		server, requests := createRelay(t, http.StatusInternalServerError)
		defer server.Close()
		client := NewClient(ClientConfig{URL: server.URL}, sdklog.Factory{})
		require.Nil(t, client.Publish(context.Background(), "c", "m"))
		<-requests
	})
	t.Run("strict status", func(t *testing.T) {
		t.Parallel()
		server, requests := createRelay(t, http.StatusBadGateway)
		defer server.Close()
		client := NewClient(ClientConfig{URL: server.URL, StrictStatus: true}, sdklog.Factory{})
		err := client.Publish(context.Background(), "c", "m")
		require.Error(t, err)
		statusErr, ok := errors.Cause(err).(*StatusError)
		require.True(t, ok)
		require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
		require.Equal(t, `{"ok":true}`, statusErr.Body)
		<-requests
	})
	t.Run("transport error", func(t *testing.T) {
		t.Parallel()
		server, _ := createRelay(t, http.StatusOK)
		url := server.URL
		server.Close()
		client := NewClient(ClientConfig{URL: url, Timeout: 1}, sdklog.Factory{})
		require.Error(t, client.Publish(context.Background(), "c", "m"))
	})
	t.Run("malformed url", func(t *testing.T) {
		t.Parallel()
		client := NewClient(ClientConfig{URL: "localhost:undefined/db"}, sdklog.Factory{})
		require.Error(t, client.Publish(context.Background(), "c", "m"))
	})
	t.Run("unmarshalable message", func(t *testing.T) {
		t.Parallel()
		client := NewClient(ClientConfig{URL: "http://relay"}, sdklog.Factory{})
		require.Error(t, client.Publish(context.Background(), "c", make(chan int)))
	})
}

func TestSend(t *testing.T) {
	t.Parallel()
	server, requests := createRelay(t, http.StatusOK)
	defer server.Close()
	client := NewClient(ClientConfig{}, sdklog.Factory{})
	res, err := client.Send(context.Background(), http.MethodGet, server.URL+"/status",
		client.SetRequestOptionQuery(map[string]interface{}{"channel": "socket.io#emitter"}),
		client.SetRequestOptionHeader(map[string]interface{}{HeaderAccept: ContentTypeJSON}),
		client.SetRequestOptionTimeout(time.Second),
		client.SetRequestOptionTransport(http.DefaultTransport))
	require.Nil(t, err)
	var dest map[string]interface{}
	require.Nil(t, client.ParseJSON(res, &dest))
	require.Equal(t, true, dest["ok"])
	req := <-requests
	require.Equal(t, "channel=socket.io%23emitter", req.Query)
	require.Equal(t, ContentTypeJSON, req.Header.Get(HeaderAccept))
	require.Equal(t, userAgent, req.Header.Get(HeaderUserAgent))

	_, err = client.Send(context.Background(), http.MethodGet, server.URL,
		func(_ *RequestOption) error { return errors.New("option error") })
	require.Error(t, err)
}

func TestSendTraced(t *testing.T) {
	t.Parallel()
	server, requests := createRelay(t, http.StatusAccepted)
	defer server.Close()
	rec := recorder.NewReporter()
	tracer, err := trace.CreateClient()
	require.Nil(t, err)
	require.Nil(t, tracer.Connect(tracer.SetReporterOption(rec)))

	client := NewClient(ClientConfig{URL: server.URL}, sdklog.Factory{})
	require.Nil(t, client.Connect(client.SetTracerOption(tracer)))
	require.Nil(t, client.Publish(context.Background(), "socket.io#emitter", "payload"))

	req := <-requests
	require.NotEmpty(t, req.Header.Get("X-B3-Traceid"))
	spans := rec.Flush()
	require.Len(t, spans, 1)
	require.Equal(t, "relay post", spans[0].Name)
	require.Equal(t, "202", spans[0].Tags["http.status_code"])
}

func TestReadBodyString(t *testing.T) {
	t.Parallel()
	_, err := ReadBodyString(nil)
	require.Error(t, err)
	body, err := ReadBodyString(&http.Response{})
	require.Nil(t, err)
	require.Empty(t, body)

	client := NewClient(ClientConfig{}, sdklog.Factory{})
	require.Error(t, client.ParseJSON(nil, nil))
	require.Error(t, client.ParseJSON(&http.Response{}, nil))
}

func TestStatusError(t *testing.T) {
	t.Parallel()
	err := &StatusError{StatusCode: 500, Body: "down"}
	require.Equal(t, "relay answered status 500: down", err.Error())
}
