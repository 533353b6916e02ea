package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	sdk "github.com/hauxe/sioemitter"
	"github.com/hauxe/sioemitter/circuitbreaker"
	"github.com/hauxe/sioemitter/emitter"
	"github.com/hauxe/sioemitter/environment"
	sdklog "github.com/hauxe/sioemitter/log"
	"github.com/hauxe/sioemitter/mqtt"
	"github.com/hauxe/sioemitter/redis"
	"github.com/hauxe/sioemitter/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	var (
		prefix    = flag.String("env-prefix", "", "prefix of the EMITTER_* variables")
		transport = flag.String("transport", "http", "http, redis or mqtt")
		event     = flag.String("event", "", "event name")
		args      = flag.String("args", "[]", "JSON array of event arguments")
		rooms     = flag.String("to", "", "comma separated rooms")
		nsp       = flag.String("of", "", "namespace")
		broadcast = flag.Bool("broadcast", false, "set the broadcast flag")
		volatile  = flag.Bool("volatile", false, "set the volatile flag")
		asJSON    = flag.Bool("json", false, "set the json flag")
		guard     = flag.Bool("guard", false, "run publishes behind a circuit breaker")
		wait      = flag.Duration("wait", 30*time.Second, "max time to wait for the delivery")
		connect   = flag.Duration("connect-timeout", 30*time.Second, "max time spent connecting to a broker")
	)
	flag.Parse()

	logger, err := sdklog.NewFactory()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *event == "" {
		logger.Bg().Fatal("missing -event")
	}
	var data []interface{}
	if err := json.Unmarshal([]byte(*args), &data); err != nil {
		logger.Bg().Fatal("invalid -args", zap.Error(err))
	}

	var envOptions []environment.CreateENVOptions
	if *prefix != "" {
		envOptions = append(envOptions, environment.SetPrefixOption(*prefix))
	}
	e, err := emitter.CreateEmitter(envOptions...)
	if err != nil {
		logger.Bg().Fatal("create emitter", zap.Error(err))
	}
	retrier, err := retry.CreateClient(retry.UseExponentialRetry())
	if err == nil {
		err = retrier.Init(retrier.SetMaxElapsedTimeOption(*connect),
			retrier.SetNotifyOption(func(err error, next time.Duration) {
				logger.Bg().Info("broker connect failed", zap.Error(err), zap.Duration("retry in", next))
			}))
	}
	if err != nil {
		logger.Bg().Fatal("create retry client", zap.Error(err))
	}
	publisher, closePublisher, err := createPublisher(*transport, envOptions, retrier)
	if err != nil {
		logger.Bg().Fatal("create publisher", zap.String("transport", *transport), zap.Error(err))
	}
	defer closePublisher()
	if publisher == nil {
		publisher = e.Publisher
	}
	if *guard {
		cb, err := circuitbreaker.CreateClient()
		if err != nil {
			logger.Bg().Fatal("create circuit breaker", zap.Error(err))
		}
		if publisher, err = cb.Guard(e.Channel, publisher); err != nil {
			logger.Bg().Fatal("guard publisher", zap.Error(err))
		}
	}
	if err = e.Connect(e.SetPublisherOption(publisher), e.SetLoggerOption(logger)); err != nil {
		logger.Bg().Fatal("connect emitter", zap.Error(err))
	}

	for _, room := range strings.Split(*rooms, ",") {
		if room = strings.TrimSpace(room); room != "" {
			e.To(room)
		}
	}
	if *nsp != "" {
		e.Of(*nsp)
	}
	if *broadcast {
		e.Broadcast()
	}
	if *volatile {
		e.Volatile()
	}
	if *asJSON {
		e.JSON()
	}

	deliveries := make(chan emitter.Delivery, 1)
	e.Notify(func(d emitter.Delivery) { deliveries <- d }).Emit(*event, data...)

	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()
	select {
	case d := <-deliveries:
		if d.Failed() {
			logger.Bg().Fatal("emit failed", zap.String("id", d.ID), zap.Error(d.Err))
		}
		logger.Bg().Info("emitted", zap.String("id", d.ID), zap.String("channel", d.Channel))
	case <-ctx.Done():
		logger.Bg().Fatal("emit timed out", zap.Duration("wait", *wait))
	}
	if err = e.Close(); err != nil {
		logger.Bg().Error("close emitter", zap.Error(err))
	}
}

// createPublisher returns nil for http so the emitter keeps its relay client
func createPublisher(transport string, envOptions []environment.CreateENVOptions,
	retrier *retry.Client) (sdk.Publisher, func(), error) {
	switch transport {
	case "http":
		return nil, func() {}, nil
	case "redis":
		client, err := redis.CreateClient(envOptions...)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create redis client")
		}
		if err = retrier.Do(func() error { return client.Connect() }); err != nil {
			return nil, nil, errors.Wrap(err, "connect redis client")
		}
		return client, func() { client.Disconnect() }, nil
	case "mqtt":
		client, err := mqtt.CreateClient(envOptions...)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create mqtt client")
		}
		if err = retrier.Do(func() error { return client.Connect() }); err != nil {
			return nil, nil, errors.Wrap(err, "connect mqtt client")
		}
		return client, func() { client.Disconnect() }, nil
	}
	return nil, nil, errors.Errorf("unknown transport %q", transport)
}
