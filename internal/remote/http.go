package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/expandinAI/particle/internal/settings"
)

const defaultTimeout = 15 * time.Second

// HTTPClient implements Client over the backend's JSON REST API using
// bearer-token auth.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the API at baseURL. A trailing slash
// on baseURL is tolerated.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

func (c *HTTPClient) EnsureUser(ctx context.Context, externalID string) (*User, error) {
	body := map[string]string{"external_id": externalID}
	var user User
	if err := c.do(ctx, http.MethodPost, "/v1/users", body, &user); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return &user, nil
}

func (c *HTTPClient) UpsertProject(ctx context.Context, userID string, p Project) error {
	path := fmt.Sprintf("/v1/users/%s/projects/%s", url.PathEscape(userID), url.PathEscape(p.LocalID))
	if err := c.do(ctx, http.MethodPut, path, p, nil); err != nil {
		return fmt.Errorf("upsert project %s: %w", p.LocalID, err)
	}
	return nil
}

func (c *HTTPClient) UpsertSession(ctx context.Context, userID string, s Session) error {
	path := fmt.Sprintf("/v1/users/%s/sessions/%s", url.PathEscape(userID), url.PathEscape(s.LocalID))
	if err := c.do(ctx, http.MethodPut, path, s, nil); err != nil {
		return fmt.Errorf("upsert session %s: %w", s.LocalID, err)
	}
	return nil
}

func (c *HTTPClient) UpsertSettings(ctx context.Context, userID string, synced settings.Synced) (time.Time, error) {
	path := fmt.Sprintf("/v1/users/%s/settings", url.PathEscape(userID))
	var row SettingsRow
	if err := c.do(ctx, http.MethodPut, path, synced, &row); err != nil {
		return time.Time{}, fmt.Errorf("upsert settings: %w", err)
	}
	return row.UpdatedAt, nil
}

func (c *HTTPClient) FetchSettings(ctx context.Context, userID string) (*SettingsRow, error) {
	path := fmt.Sprintf("/v1/users/%s/settings", url.PathEscape(userID))
	var row SettingsRow
	err := c.do(ctx, http.MethodGet, path, nil, &row)
	if err != nil {
		var apiErr *APIError
		// 404 means the user has never pushed settings.
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch settings: %w", err)
	}
	return &row, nil
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// do sends one JSON request and decodes the response into out when out is
// non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
