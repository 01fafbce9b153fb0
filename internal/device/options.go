package device

import (
	"time"

	"github.com/muurk/iotctl/internal/transport"
)

const (
	// DefaultTimeout bounds every request a session makes
	DefaultTimeout = transport.DefaultTimeout

	// DefaultPollInterval is the tick rate for callers that poll IsReady
	DefaultPollInterval = 5 * time.Millisecond
)

// Option configures a Session
type Option func(*options)

type options struct {
	timeout      time.Duration
	userAgent    string
	pollInterval time.Duration
	factory      transport.Factory
	processes    ProcessProvider
}

func defaultOptions() options {
	return options{
		timeout:      DefaultTimeout,
		userAgent:    transport.DefaultUserAgent,
		pollInterval: DefaultPollInterval,
		factory:      transport.NewTransport,
		processes:    PortalProcessProvider{},
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithUserAgent overrides the identifying User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(o *options) {
		if userAgent != "" {
			o.userAgent = userAgent
		}
	}
}

// WithPollInterval sets the interval reported by PollInterval
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// WithTransportFactory replaces the factory used to build transports
func WithTransportFactory(factory transport.Factory) Option {
	return func(o *options) {
		if factory != nil {
			o.factory = factory
		}
	}
}

// WithProcessProvider replaces the process list provider
func WithProcessProvider(provider ProcessProvider) Option {
	return func(o *options) {
		if provider != nil {
			o.processes = provider
		}
	}
}
