package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudctl/cloudctl/pkg/core"
	"github.com/cloudctl/cloudctl/version"

	"github.com/google/uuid"
	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

const (
	headerRequestID     = "opc-request-id"
	headerWorkRequestID = "opc-work-request-id"
	headerIfMatch       = "if-match"
	headerETag          = "etag"
	contentTypeKey      = "Content-Type"
	applicationJson     = "application/json"
)

// Client talks to the provider's control-plane REST endpoints.
// Authentication beyond a bearer token is handled outside of this package.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	token      string
	userAgent  string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithToken(token string) Option {
	return func(client *Client) {
		client.token = token
	}
}

func WithUserAgent(ua string) Option {
	return func(client *Client) {
		client.userAgent = ua
	}
}

func New(endpoint string, options ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, core.Validation("NewClient", "control plane endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, core.Validation("NewClient", "invalid control plane endpoint %q: %v", endpoint, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, core.Validation("NewClient", "control plane endpoint %q must be an absolute URL", endpoint)
	}

	c := &Client{
		endpoint:   u,
		httpClient: cleanhttp.DefaultPooledClient(),
		userAgent:  fmt.Sprintf("cloudctl/%s", version.Version),
	}
	for _, option := range options {
		option(c)
	}

	return c, nil
}

// Endpoint returns the base URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

type request struct {
	op      string
	method  string
	path    string
	body    any
	ifMatch string
}

type response struct {
	statusCode int
	header     http.Header
}

type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, r request, out any) (*response, error) {
	u := c.endpoint.JoinPath(r.path)

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, core.Validation(r.op, "failed to marshal request body: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, core.Other(r.op, err)
	}
	req.Header.Set(headerRequestID, strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")))
	req.Header.Set("Accept", applicationJson)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set(contentTypeKey, applicationJson)
	}
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	if r.ifMatch != "" {
		req.Header.Set(headerIfMatch, r.ifMatch)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, core.Cancelled(r.op, ctxErr)
		}
		return nil, core.Transient(r.op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Transient(r.op, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.FromStatus(r.op, resp.StatusCode, decodeServiceError(resp.StatusCode, payload))
	}

	if out != nil && len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, core.Other(r.op, fmt.Errorf("failed to decode response: %w", err))
		}
	}

	return &response{statusCode: resp.StatusCode, header: resp.Header}, nil
}

func decodeServiceError(statusCode int, payload []byte) error {
	var se serviceError
	if err := json.Unmarshal(payload, &se); err == nil && (se.Code != "" || se.Message != "") {
		return fmt.Errorf("%s: %s", se.Code, se.Message)
	}
	if msg := strings.TrimSpace(string(payload)); msg != "" {
		return errors.New(msg)
	}
	return errors.New(http.StatusText(statusCode))
}
