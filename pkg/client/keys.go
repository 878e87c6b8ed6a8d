package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Create stores a new key with value. The returned Key carries the name the
// server used, generated when WithName is absent.
func (c *Client) Create(ctx context.Context, value string, opts ...CreateOption) (Key, error) {
	options := &CreateOptions{}
	for _, opt := range opts {
		opt(options)
	}

	req := createRequest{Value: value, ReadOnly: options.ReadOnly}
	if options.Name != "" {
		req.Name = &options.Name
	}

	var resp createResponse
	if _, err := c.do(ctx, http.MethodPost, "/key", nil, req, &resp); err != nil {
		return Key{}, wrapError(err, "create")
	}
	return resp.Key, nil
}

// Get returns the key's value and refreshes its activity
func (c *Client) Get(ctx context.Context, name string) (string, error) {
	var resp getResponse
	if _, err := c.do(ctx, http.MethodGet, "/key", nameQuery(name), nil, &resp); err != nil {
		return "", wrapError(err, "get")
	}
	return resp.Value, nil
}

// Update replaces the key's value
func (c *Client) Update(ctx context.Context, name, value string) error {
	_, err := c.do(ctx, http.MethodPatch, "/key", nil, updateRequest{Name: name, Value: value}, nil)
	return wrapError(err, "update")
}

// Delete removes the key
func (c *Client) Delete(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, "/key", nameQuery(name), nil, nil)
	return wrapError(err, "delete")
}

// Stat returns the key's metadata without refreshing its activity
func (c *Client) Stat(ctx context.Context, name string) (Key, error) {
	header, err := c.do(ctx, http.MethodHead, "/key", nameQuery(name), nil, nil)
	if err != nil {
		return Key{}, wrapError(err, "stat")
	}

	key := Key{Name: name}
	key.ReadOnly, _ = strconv.ParseBool(header.Get("X-Key-Read-Only"))
	key.CreatedAt, _ = time.Parse(time.RFC3339Nano, header.Get("X-Key-Created-At"))
	key.LastActiveAt, _ = time.Parse(time.RFC3339Nano, header.Get("X-Key-Last-Active-At"))
	return key, nil
}

// Exists reports whether the key is present
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	_, err := c.Stat(ctx, name)
	if err == nil {
		return true, nil
	}
	if apiErr, ok := err.(*Error); ok && apiErr.IsNotFound() {
		return false, nil
	}
	return false, err
}

func nameQuery(name string) url.Values {
	return url.Values{"name": []string{name}}
}
