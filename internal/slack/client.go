// Package slack is a minimal client for the two private Slack endpoints
// the service depends on: conversations.replies and users.list. Calls
// carry the captured workspace token in the form body and a request
// fingerprint in the query string so they match the web client's call
// shape.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	repliesEndpoint = "/api/conversations.replies"
	membersEndpoint = "/api/users.list"

	repliesPageLimit = "100"
	membersPageLimit = "1000"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithFingerprintSource sets a custom fingerprint source.
func WithFingerprintSource(src *FingerprintSource) ClientOption {
	return func(c *Client) {
		c.fingerprints = src
	}
}

// Client calls the Slack private API on a single workspace origin.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	fingerprints *FingerprintSource
}

// NewClient creates a client for the given workspace origin, e.g.
// "https://app.slack.com".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   http.DefaultClient,
		fingerprints: NewFingerprintSource("", ""),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConversationReplies fetches the thread rooted at threadTs, inclusive of
// the parent message.
func (c *Client) ConversationReplies(ctx context.Context, token, channel, threadTs string) ([]RawMessage, error) {
	form := url.Values{
		"token":       {token},
		"channel":     {channel},
		"ts":          {threadTs},
		"inclusive":   {"true"},
		"limit":       {repliesPageLimit},
		"_x_reason":   {"channel-history-store.CFM.fetch"},
		"_x_mode":     {"online"},
		"_x_sonic":    {"true"},
		"_x_app_name": {"client"},
	}

	var resp repliesResponse
	if err := c.post(ctx, repliesEndpoint, form, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &APIError{Endpoint: "conversations.replies", Reason: resp.Error}
	}
	return resp.Messages, nil
}

// UsersList fetches the workspace member directory.
func (c *Client) UsersList(ctx context.Context, token string) ([]Member, error) {
	form := url.Values{
		"token":          {token},
		"limit":          {membersPageLimit},
		"include_locale": {"false"},
		"_x_reason":      {"user-list-store.fetch"},
		"_x_mode":        {"online"},
		"_x_sonic":       {"true"},
	}

	var resp membersResponse
	if err := c.post(ctx, membersEndpoint, form, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &APIError{Endpoint: "users.list", Reason: resp.Error}
	}
	return resp.Members, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	target := c.baseURL + endpoint + "?" + c.fingerprints.Next().Query().Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
