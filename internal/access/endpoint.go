package access

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pantalytics/odoo-mcp-pro/internal/odoo"
)

// Client fetches access descriptors from the backend's MCP endpoints,
// authenticated with the same API key as the connection.
type Client struct {
	baseURL    string
	apiKey     string
	database   string
	httpClient *http.Client
}

var _ Fetcher = (*Client)(nil)

// NewClient creates an endpoint client from the connection configuration.
func NewClient(cfg odoo.Config) *Client {
	cfg = cfg.Normalized()
	return &Client{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		database:   cfg.Database,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// descriptorResponse is the envelope the MCP addon returns.
type descriptorResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Model      string      `json:"model"`
		Operations Permissions `json:"operations"`
	} `json:"data"`
}

// FetchPermissions asks the backend which operations are permitted on
// model. A 404 means the model is not enabled for MCP access: that is a
// deny verdict, not an error, so it caches like any other verdict.
func (c *Client) FetchPermissions(ctx context.Context, model string) (Permissions, error) {
	endpoint := fmt.Sprintf("%s/mcp/models/%s/access", c.baseURL, url.PathEscape(model))

	var perms Permissions
	err := odoo.RetryTransient(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", odoo.ErrUnavailable, err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: access check for %s: %v", odoo.ErrUnavailable, model, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			perms = Permissions{}
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: access check rejected the API key", odoo.ErrAuthentication)
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: access check for %s: HTTP %d", odoo.ErrUnavailable, model, resp.StatusCode)
		default:
			return fmt.Errorf("%w: access check for %s: HTTP %d", odoo.ErrRemoteOperation, model, resp.StatusCode)
		}

		var body descriptorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("%w: malformed access descriptor: %v", odoo.ErrRemoteOperation, err)
		}
		perms = body.Data.Operations
		return nil
	})
	if err != nil {
		return Permissions{}, err
	}
	return perms, nil
}

// ModelInfo describes one MCP-enabled model.
type ModelInfo struct {
	Model string `json:"model"`
	Name  string `json:"name"`
}

// modelsResponse is the envelope for the model listing endpoint.
type modelsResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Models []ModelInfo `json:"models"`
	} `json:"data"`
}

// ListModels returns the models enabled for MCP access.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	endpoint := c.baseURL + "/mcp/models"

	var models []ModelInfo
	err := odoo.RetryTransient(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", odoo.ErrUnavailable, err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: model listing: %v", odoo.ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("%w: model listing: HTTP %d", odoo.ErrUnavailable, resp.StatusCode)
			}
			return fmt.Errorf("%w: model listing: HTTP %d", odoo.ErrRemoteOperation, resp.StatusCode)
		}

		var body modelsResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("%w: malformed model listing: %v", odoo.ErrRemoteOperation, err)
		}
		models = body.Data.Models
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if c.database != "" {
		req.Header.Set("X-Odoo-Database", c.database)
	}
}
