package waclient

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// IdentityClient checks user existence against the users-service.
type IdentityClient struct {
	baseURL string
	client  *http.Client
}

// NewIdentityClient creates a client for the users-service at baseURL.
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// UserExists reports whether the users-service knows the user. A 404 is a
// normal "no" answer; other non-200 statuses are transport errors.
func (c *IdentityClient) UserExists(ctx context.Context, userID string) (bool, error) {
	url := fmt.Sprintf("%s/users/%s", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build users-service request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to make request to users-service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("users-service returned status code: %d", resp.StatusCode)
	}
}
