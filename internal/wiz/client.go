package wiz

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wizlight/internal/logging"
)

// Client sends requests to bulbs over UDP.
// A Client is safe for concurrent use: every call owns its socket and retry state.
type Client struct {
	config  Config
	logger  *zap.Logger
	metrics *Metrics
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger used for datagram and retry logging
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics attaches prometheus metrics to the client
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client with the given retry policy
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		config: cfg,
		logger: logging.GetLogger().Named("wiz"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the client's retry policy
func (c *Client) Config() Config {
	return c.config
}

type sendOptions struct {
	timeout     time.Duration
	interval    time.Duration
	maxAttempts int
}

// SendOption overrides the client policy for a single call
type SendOption func(*sendOptions)

// WithTimeout overrides the overall deadline of a call
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) {
		o.timeout = d
	}
}

// WithSendInterval overrides the initial wait between retransmissions
func WithSendInterval(d time.Duration) SendOption {
	return func(o *sendOptions) {
		o.interval = d
	}
}

// WithMaxAttempts overrides the maximum number of datagrams sent
func WithMaxAttempts(n int) SendOption {
	return func(o *sendOptions) {
		o.maxAttempts = n
	}
}

// ResolveAddress resolves a bulb address, appending defaultPort when the
// destination has none.
func ResolveAddress(destination string, defaultPort int) (*net.UDPAddr, error) {
	if destination == "" {
		return nil, NewValidationError("destination must not be empty")
	}
	hostPort := destination
	if _, _, err := net.SplitHostPort(destination); err != nil {
		hostPort = net.JoinHostPort(destination, strconv.Itoa(defaultPort))
	}
	addr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		de := ClassifyNetworkError(err, destination)
		de.Type = ErrTypeNetwork
		de.Message = fmt.Sprintf("cannot resolve %s", destination)
		return nil, de
	}
	return addr, nil
}

// Send transmits method with params to destination and waits for the
// correlated reply. The request is retransmitted every send interval until a
// reply arrives, the attempt budget is spent, or the deadline passes.
func (c *Client) Send(ctx context.Context, destination string, method Method, params map[string]interface{}, opts ...SendOption) (Result, error) {
	o := sendOptions{
		timeout:     c.config.TimeoutFor(method),
		interval:    c.config.SendInterval,
		maxAttempts: c.config.MaxAttempts,
	}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	result, attempts, err := c.send(ctx, destination, method, params, o)
	if err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			devErr.Method = method
			devErr.Attempts = attempts
			if devErr.Destination == "" {
				devErr.Destination = destination
			}
		}
	}
	c.metrics.observe(method, time.Since(start), err)
	return result, err
}

func (c *Client) send(ctx context.Context, destination string, method Method, params map[string]interface{}, o sendOptions) (Result, int, error) {
	if o.timeout <= 0 || o.interval <= 0 || o.maxAttempts <= 0 {
		return nil, 0, NewValidationError("timeout, interval and attempts must be positive")
	}
	payload, err := EncodeRequest(method, params)
	if err != nil {
		return nil, 0, err
	}
	addr, err := ResolveAddress(destination, c.config.Port)
	if err != nil {
		return nil, 0, err
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, 0, ClassifyNetworkError(err, addr.String())
	}
	defer func() { _ = conn.Close() }()

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ex := &exchange{
		client:      c,
		conn:        conn,
		dest:        addr,
		method:      method,
		payload:     payload,
		interval:    o.interval,
		maxAttempts: o.maxAttempts,
		state:       stateSending,
		logger:      c.logger.With(zap.String("method", string(method)), zap.String("destination", addr.String())),
	}
	ex.run(callCtx)

	switch ex.state {
	case stateSucceeded:
		return ex.result, ex.attempts, nil
	case stateFailed:
		return nil, ex.attempts, ex.err
	}

	// TimedOut. A parent deadline counts as a timeout, only an explicit cancel does not.
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ex.attempts, NewCanceledError(ctx.Err())
	}
	if ex.lastDecodeErr != nil {
		de := NewDecodeError(fmt.Sprintf("no decodable reply after %d attempts", ex.attempts), ex.lastDecodeErr)
		return nil, ex.attempts, de
	}
	te := NewTimeoutError(fmt.Sprintf("no reply after %d attempts in %s", ex.attempts, time.Since(start).Round(time.Millisecond)))
	te.Err = ctx.Err()
	return nil, ex.attempts, te
}
