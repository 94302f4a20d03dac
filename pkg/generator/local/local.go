// Package local implements the Generator capability set against a
// single-endpoint, loopback/private-network HTTP backend with no
// authentication, grounded on the teacher's Ollama client adapter.
package local

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/ollama/ollama/api"

	"recoforge/pkg/generator"
	"recoforge/pkg/generrors"
)

// Client drives a local generation endpoint (e.g. an Ollama server) via the
// official api.Client, with every dial validated against the SSRF policy:
// the target host must resolve to loopback or an RFC1918 private address.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
	timeout time.Duration
}

// New creates a Local generator bound to hostURL (e.g.
// "http://localhost:11434") and model. timeout is the end-to-end deadline
// applied to every Invoke call in addition to the caller's context.
func New(hostURL, model string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(hostURL)
	if err != nil {
		return nil, generrors.NewWithCause(generrors.InvalidConfig, err, "invalid local backend host URL")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: ssrfGuardedDialer().DialContext,
		},
	}

	return &Client{
		client:  api.NewClient(parsed, httpClient),
		model:   model,
		hostURL: hostURL,
		timeout: timeout,
	}, nil
}

// ssrfGuardedDialer returns a net.Dialer whose Control hook rejects any
// connection attempt to a host that does not resolve to loopback or
// RFC1918 private space, before the dial is attempted.
func ssrfGuardedDialer() *net.Dialer {
	return &net.Dialer{
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				host = address
			}
			ip := net.ParseIP(host)
			if ip == nil || !isAllowedHost(ip) {
				return fmt.Errorf("recoforge: refusing to dial non-local address %q", address)
			}
			return nil
		},
	}
}

func isAllowedHost(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	return ip.IsPrivate()
}

// Invoke POSTs prompt to the backend's generate endpoint and returns its raw
// text response, enforcing an end-to-end deadline equal to
// min(configured timeout, ctx deadline).
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withBoundedDeadline(ctx, c.timeout)
	defer cancel()

	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": 0.7,
			"top_p":       0.9,
		},
	}

	var response string
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		response += resp.Response
		return nil
	})
	if err != nil {
		return "", classifyError(err)
	}
	if strings.TrimSpace(response) == "" {
		return "", generrors.New(generrors.BackendTransient, "local backend returned empty response body")
	}
	return response, nil
}

// Probe performs a minimal liveness check by listing available models.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := withBoundedDeadline(ctx, c.timeout)
	defer cancel()
	if _, err := c.client.List(ctx); err != nil {
		return classifyError(err)
	}
	return nil
}

// Name identifies this generator.
func (c *Client) Name() string { return "local:" + c.model }

// UpdateModel switches the active model, stripping any thinking suffix
// (local backends do not support vendor-specific extended reasoning).
func (c *Client) UpdateModel(modelID string) error {
	spec := generator.ParseModelID(modelID)
	c.model = spec.ModelID
	return nil
}

func withBoundedDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return generrors.NewWithCause(generrors.Cancelled, err, "local backend request cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return generrors.NewWithCause(generrors.DeadlineExceeded, err, "local backend request timed out")
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "refusing to dial"):
		return generrors.NewWithCause(generrors.InvalidConfig, err, "SSRF guard rejected local backend host")
	case strings.Contains(errStr, "connection refused"):
		return generrors.NewWithCause(generrors.BackendTransient, err, "local backend not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return generrors.NewWithCause(generrors.BackendBadRequest, err, "local backend model not found")
	default:
		return generrors.NewWithCause(generrors.BackendTransient, err, "local backend error")
	}
}
