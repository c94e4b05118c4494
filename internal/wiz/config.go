package wiz

import (
	"fmt"
	"time"
)

const (
	// DefaultPort is the UDP port bulbs listen on for commands
	DefaultPort = 38899

	// DefaultQueryTimeout bounds read-only calls (getPilot, getSystemConfig, ...)
	DefaultQueryTimeout = 60 * time.Second

	// DefaultCommandTimeout bounds state-changing calls. Kept short so a late
	// retransmission is not visibly re-applied long after the user acted.
	DefaultCommandTimeout = 13 * time.Second

	// DefaultSendInterval is the wait between retransmissions
	DefaultSendInterval = 500 * time.Millisecond

	// DefaultMaxSendInterval caps the interval when backoff is enabled
	DefaultMaxSendInterval = 3 * time.Second

	// DefaultBackoffFactor of 1 keeps retransmissions evenly spaced
	DefaultBackoffFactor = 1.0

	// DefaultMaxAttempts is the upper bound on datagrams sent per call
	DefaultMaxAttempts = 100

	// DefaultMaxDatagramSize is the receive buffer size
	DefaultMaxDatagramSize = 4096
)

// Config holds the retry and timeout policy of a Client.
// It is passed explicitly to NewClient; there is no package-level state.
type Config struct {
	// Port is used when a destination has no port
	Port int

	// QueryTimeout is the overall deadline for get* methods
	QueryTimeout time.Duration

	// CommandTimeout is the overall deadline for every other method
	CommandTimeout time.Duration

	// SendInterval is the wait between retransmissions
	SendInterval time.Duration

	// MaxSendInterval caps the interval when BackoffFactor > 1
	MaxSendInterval time.Duration

	// BackoffFactor multiplies the interval after each send
	BackoffFactor float64

	// MaxAttempts is the maximum number of datagrams sent per call
	MaxAttempts int

	// MaxDatagramSize is the receive buffer size in bytes
	MaxDatagramSize int
}

// DefaultConfig returns the default retry policy
func DefaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		QueryTimeout:    DefaultQueryTimeout,
		CommandTimeout:  DefaultCommandTimeout,
		SendInterval:    DefaultSendInterval,
		MaxSendInterval: DefaultMaxSendInterval,
		BackoffFactor:   DefaultBackoffFactor,
		MaxAttempts:     DefaultMaxAttempts,
		MaxDatagramSize: DefaultMaxDatagramSize,
	}
}

// Validate checks that every field holds a usable value
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return NewValidationError(fmt.Sprintf("port must be between 1 and 65535 (got %d)", c.Port))
	}
	if c.QueryTimeout <= 0 {
		return NewValidationError(fmt.Sprintf("query timeout must be positive (got %s)", c.QueryTimeout))
	}
	if c.CommandTimeout <= 0 {
		return NewValidationError(fmt.Sprintf("command timeout must be positive (got %s)", c.CommandTimeout))
	}
	if c.SendInterval <= 0 {
		return NewValidationError(fmt.Sprintf("send interval must be positive (got %s)", c.SendInterval))
	}
	if c.MaxSendInterval <= 0 {
		return NewValidationError(fmt.Sprintf("max send interval must be positive (got %s)", c.MaxSendInterval))
	}
	if c.BackoffFactor < 1 {
		return NewValidationError(fmt.Sprintf("backoff factor must be at least 1 (got %g)", c.BackoffFactor))
	}
	if c.MaxAttempts <= 0 {
		return NewValidationError(fmt.Sprintf("max attempts must be positive (got %d)", c.MaxAttempts))
	}
	if c.MaxDatagramSize <= 0 {
		return NewValidationError(fmt.Sprintf("max datagram size must be positive (got %d)", c.MaxDatagramSize))
	}
	return nil
}

// TimeoutFor returns the overall deadline used for the given method
func (c Config) TimeoutFor(method Method) time.Duration {
	if method.IsQuery() {
		return c.QueryTimeout
	}
	return c.CommandTimeout
}

// nextInterval applies the backoff factor, capped at MaxSendInterval
func (c Config) nextInterval(current time.Duration) time.Duration {
	if c.BackoffFactor <= 1 {
		return current
	}
	next := time.Duration(float64(current) * c.BackoffFactor)
	if next > c.MaxSendInterval {
		return c.MaxSendInterval
	}
	return next
}
