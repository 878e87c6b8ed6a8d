package client

import (
	"net/http"
	"time"
)

// Option is a functional option for client configuration
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		clone := *c.httpClient
		clone.Timeout = timeout
		c.httpClient = &clone
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// CreateOptions holds options for creating a key
type CreateOptions struct {
	Name     string
	ReadOnly bool
}

// CreateOption is a functional option for Create
type CreateOption func(*CreateOptions)

// WithName sets the key name. Without it the server generates one.
func WithName(name string) CreateOption {
	return func(opts *CreateOptions) {
		opts.Name = name
	}
}

// WithReadOnly makes the key immutable after creation
func WithReadOnly() CreateOption {
	return func(opts *CreateOptions) {
		opts.ReadOnly = true
	}
}
