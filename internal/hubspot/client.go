package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/davitran/hubsync/pkg/metrics"
)

// DefaultBaseURL points at the HubSpot contacts v1 API.
const DefaultBaseURL = "https://api.hubapi.com/contacts/v1"

// RemoteError reports a non-2xx response from the HubSpot API. It is
// propagated to the caller unmodified; there is no retry or backoff.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("hubspot: remote returned %d: %s", e.StatusCode, e.Body)
}

// Config collects the settings needed to construct a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// HTTPClient overrides the oauth2 bearer transport, used in tests.
	HTTPClient *http.Client
}

// Client is an explicitly constructed HubSpot contacts API client. It is
// injected wherever remote contact operations are needed; nothing about it
// is process-global.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient builds a Client whose transport attaches the API key as a
// Bearer token on every request.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("hubspot: api key must be configured")
		}
		httpc = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.APIKey,
			TokenType:   "Bearer",
		}))
	}
	if cfg.Timeout > 0 {
		httpc.Timeout = cfg.Timeout
	}

	return &Client{baseURL: baseURL, httpc: httpc}, nil
}

// AllContacts pulls every contact from the remote list endpoint.
func (c *Client) AllContacts(ctx context.Context) ([]RemoteContact, error) {
	body, err := c.get(ctx, "all_contacts", "/lists/all/contacts/all", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Contacts []RemoteContact `json:"contacts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("hubspot: decode contacts: %w", err)
	}
	return payload.Contacts, nil
}

// RecentlyUpdated returns the raw payload of recently modified contacts.
func (c *Client) RecentlyUpdated(ctx context.Context, count int) (json.RawMessage, error) {
	return c.get(ctx, "recently_updated", "/lists/recently_updated/contacts/recent", url.Values{
		"count": []string{strconv.Itoa(count)},
	})
}

// RecentlyCreated returns the raw payload of recently created contacts.
func (c *Client) RecentlyCreated(ctx context.Context, count int) (json.RawMessage, error) {
	return c.get(ctx, "recently_created", "/lists/all/contacts/recent", url.Values{
		"count": []string{strconv.Itoa(count)},
	})
}

// LifecycleLists returns the raw static lists payload used for lifecycle metrics.
func (c *Client) LifecycleLists(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "lifecycle_metrics", "/lists/static", nil)
}

// Statistics returns the raw contact statistics payload.
func (c *Client) Statistics(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "contact_statistics", "/contacts/statistics", nil)
}

// Search forwards a free-text contact search and returns the raw payload.
func (c *Client) Search(ctx context.Context, query string) (json.RawMessage, error) {
	return c.get(ctx, "search", "/search/query", url.Values{"q": []string{query}})
}

// CreateContact pushes a new contact property bag and returns the remote vid.
func (c *Client) CreateContact(ctx context.Context, properties PropertyBag) (string, error) {
	body, err := c.send(ctx, "create_contact", http.MethodPost, "/contact", propertyEnvelope{Properties: properties})
	if err != nil {
		return "", err
	}

	var payload struct {
		VID json.Number `json:"vid"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("hubspot: decode create response: %w", err)
	}
	return payload.VID.String(), nil
}

// UpdateContact pushes a property bag onto an existing remote contact.
func (c *Client) UpdateContact(ctx context.Context, vid string, properties PropertyBag) error {
	_, err := c.send(ctx, "update_contact", http.MethodPost, "/contact/vid/"+url.PathEscape(vid)+"/profile", propertyEnvelope{Properties: properties})
	return err
}

// DeleteContact removes the remote contact.
func (c *Client) DeleteContact(ctx context.Context, vid string) error {
	_, err := c.send(ctx, "delete_contact", http.MethodDelete, "/contact/vid/"+url.PathEscape(vid), nil)
	return err
}

type propertyEnvelope struct {
	Properties PropertyBag `json:"properties"`
}

func (c *Client) get(ctx context.Context, operation, path string, query url.Values) (json.RawMessage, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("hubspot: build request: %w", err)
	}

	return c.do(operation, req)
}

func (c *Client) send(ctx context.Context, operation, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("hubspot: encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("hubspot: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(operation, req)
}

func (c *Client) do(operation string, req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.HubSpotRequests.WithLabelValues(operation, "error").Inc()
		return nil, fmt.Errorf("hubspot: %s: %w", operation, err)
	}
	defer resp.Body.Close()

	metrics.HubSpotRequests.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hubspot: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return body, nil
}
