// Package httpclient issues raw HTTP requests against a running node's
// exposed port. It is glue for poking a cluster from tests and tooling,
// not part of the orchestration core.
package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/goccy/go-json"

	"github.com/clusterrunner/clusterrunner/pkg/engine"
	"github.com/clusterrunner/clusterrunner/pkg/types"
)

const requestTimeout = 30 * time.Second

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// JSON decodes the response body into a generic map.
func (r *Response) JSON() (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(r.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return out, nil
}

// Client wraps an http.Client with node-aware URL construction.
type Client struct {
	http *http.Client
}

// New creates a client with a sane default timeout.
func New() *Client {
	return &Client{
		http: &http.Client{Timeout: requestTimeout},
	}
}

// NodeURL builds the URL for a path on the given node.
func NodeURL(node engine.Node, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("http://localhost:%s%s", node.Settings().Get(types.SettingHTTPPort), path)
}

// Get issues a GET against a path on the node.
func (c *Client) Get(node engine.Node, path string) (*Response, error) {
	return c.do(http.MethodGet, NodeURL(node, path), nil)
}

// Post issues a POST with the given body against a path on the node.
func (c *Client) Post(node engine.Node, path string, body []byte) (*Response, error) {
	return c.do(http.MethodPost, NodeURL(node, path), body)
}

// Put issues a PUT with the given body against a path on the node.
func (c *Client) Put(node engine.Node, path string, body []byte) (*Response, error) {
	return c.do(http.MethodPut, NodeURL(node, path), body)
}

// Delete issues a DELETE against a path on the node.
func (c *Client) Delete(node engine.Node, path string) (*Response, error) {
	return c.do(http.MethodDelete, NodeURL(node, path), nil)
}

// GetURL issues a GET against a raw URL.
func (c *Client) GetURL(url string) (*Response, error) {
	return c.do(http.MethodGet, url, nil)
}

func (c *Client) do(method, url string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

// WaitForReady polls the node's root endpoint with exponential backoff
// until it answers or maxElapsed passes.
func (c *Client) WaitForReady(node engine.Node, maxElapsed time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		resp, err := c.Get(node, "/")
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("node answered %d", resp.StatusCode)
		}
		return nil
	}, policy)
}
