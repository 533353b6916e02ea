package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"

	lib "github.com/hauxe/sioemitter/library"
)

// Func retry functions type
type Func func(*Client) error

// Client retries broker connections at startup. Emissions themselves are never retried.
type Client struct {
	C      backoff.BackOff
	notify func(error, time.Duration)
}

// CreateClient create retry client by type
func CreateClient(t Func) (*Client, error) {
	client := Client{}
	if err := t(&client); err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create client", "run retry func"))
	}
	return &client, nil
}

// UseConstantRetry setup constant retry
func UseConstantRetry(d time.Duration) Func {
	return func(c *Client) error {
		if d <= 0 {
			return errors.Errorf("invalid retry interval %s", d)
		}
		c.C = backoff.NewConstantBackOff(d)
		return nil
	}
}

// UseExponentialRetry setup exponential retry
func UseExponentialRetry() Func {
	return func(c *Client) error {
		c.C = backoff.NewExponentialBackOff()
		return nil
	}
}

// Init init the retry client
func (c *Client) Init(options ...func() error) error {
	if c.C == nil {
		return errors.New(lib.StringTags("init client", "retry client is not created"))
	}
	if err := lib.RunOptionalFunc(options...); err != nil {
		return errors.Wrap(err, lib.StringTags("init client", "option error"))
	}
	return nil
}

// SetContextOption stops retrying once ctx is done
func (c *Client) SetContextOption(ctx context.Context) func() error {
	return func() error {
		if ctx == nil {
			return errors.New("receive nil context")
		}
		c.C = backoff.WithContext(c.C, ctx)
		return nil
	}
}

// SetMaxRetriesOption set backoff max retries
func (c *Client) SetMaxRetriesOption(maxRetries uint64) func() error {
	return func() error {
		c.C = backoff.WithMaxRetries(c.C, maxRetries)
		return nil
	}
}

// SetNotifyOption calls f with each failed attempt and the wait before the next one
func (c *Client) SetNotifyOption(f func(err error, wait time.Duration)) func() error {
	return func() error {
		c.notify = f
		return nil
	}
}

func (c *Client) exponential() (*backoff.ExponentialBackOff, error) {
	exponential, ok := c.C.(*backoff.ExponentialBackOff)
	if !ok {
		return nil, errors.New("retry client is not an exponential backoff")
	}
	return exponential, nil
}

// SetInitialIntervalOption set backoff initial interval
func (c *Client) SetInitialIntervalOption(interval time.Duration) func() error {
	return func() error {
		exponential, err := c.exponential()
		if err != nil {
			return err
		}
		exponential.InitialInterval = interval
		return nil
	}
}

// SetMaxIntervalOption set backoff max interval
func (c *Client) SetMaxIntervalOption(maxInterval time.Duration) func() error {
	return func() error {
		exponential, err := c.exponential()
		if err != nil {
			return err
		}
		exponential.MaxInterval = maxInterval
		return nil
	}
}

// SetMaxElapsedTimeOption set backoff max elapsed time
func (c *Client) SetMaxElapsedTimeOption(maxElapsedTime time.Duration) func() error {
	return func() error {
		exponential, err := c.exponential()
		if err != nil {
			return err
		}
		exponential.MaxElapsedTime = maxElapsedTime
		return nil
	}
}

// Do runs operation until it succeeds or the backoff gives up, returning the last error
func (c *Client) Do(operation func() error) error {
	if c.C == nil {
		return errors.New(lib.StringTags("retry", "retry client is not created"))
	}
	c.C.Reset()
	if err := backoff.RetryNotify(operation, c.C, c.notify); err != nil {
		return errors.Wrap(err, lib.StringTags("retry", "give up"))
	}
	return nil
}
