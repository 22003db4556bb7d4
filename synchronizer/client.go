package synchronizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"k8s.io/klog/v2"

	"github.com/samandartukhtayev/user-sync/models"
)

// maxErrorBody bounds how much of a failed response is kept as the error message
const maxErrorBody = 512

// Client talks to the remote users collection over REST
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a client for the collection rooted at baseURL.
// A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, httpClient: httpClient}, nil
}

// List fetches the whole collection in server order
func (c *Client) List(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0)
	if err := c.do(ctx, "load users", http.MethodGet, c.collectionURL(), nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Create posts a new record and returns it with its server-assigned id
func (c *Client) Create(ctx context.Context, in models.UserInput) (models.User, error) {
	var user models.User
	if err := c.do(ctx, "create user", http.MethodPost, c.collectionURL(), in, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Update replaces the editable fields of the record with the given id
func (c *Client) Update(ctx context.Context, id string, in models.UserInput) (models.User, error) {
	var user models.User
	if err := c.do(ctx, "update user", http.MethodPut, c.resourceURL(id), in, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Delete removes the record with the given id
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete user", http.MethodDelete, c.resourceURL(id), nil, nil)
}

func (c *Client) collectionURL() string {
	return c.baseURL.JoinPath("users").String()
}

func (c *Client) resourceURL(id string) string {
	return c.baseURL.JoinPath("users", url.PathEscape(id)).String()
}

func (c *Client) do(ctx context.Context, op, method, target string, body, out any) error {
	logger := klog.FromContext(ctx).WithValues("method", method, "url", target)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	logger.V(4).Info("Request settled", "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failed response, falling back to the raw body
func errorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}
