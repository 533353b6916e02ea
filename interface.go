package sdk

import (
	"context"

	"go.uber.org/zap/zapcore"
)

// Client interface defines client functions
type Client interface {
	Connect(options ...func() error) error
	Disconnect() error
}

// Publisher interface defines a channel message publisher
type Publisher interface {
	Publish(ctx context.Context, channel string, msg interface{}) error
}

// RawPublisher publishes encoded bytes as they are. Brokers read by socket.io
// adapters implement it so encoded emissions reach them as msgpack rather than hex text.
type RawPublisher interface {
	Publisher
	PublishRaw(ctx context.Context, channel string, payload []byte) error
}

// PublishFunc adapts a function to the Publisher interface
type PublishFunc func(ctx context.Context, channel string, msg interface{}) error

// Publish calls f(ctx, channel, msg)
func (f PublishFunc) Publish(ctx context.Context, channel string, msg interface{}) error {
	return f(ctx, channel, msg)
}

// Logger is a simplified abstraction of the zap.Logger
type Logger interface {
	Debug(msg string, fields ...zapcore.Field)
	Info(msg string, fields ...zapcore.Field)
	Error(msg string, fields ...zapcore.Field)
	Fatal(msg string, fields ...zapcore.Field)
	With(fields ...zapcore.Field) Logger
}
