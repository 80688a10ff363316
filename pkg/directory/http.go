package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mahaj/dupahar-messaging/pkg/model"
)

// HTTPClient talks to the user service:
//
//	GET {base}/users/{id}          -> Contact
//	GET {base}/users/{id}/friends  -> []Contact
type HTTPClient struct {
	base   string
	client *http.Client
}

var _ Directory = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPClient) Friends(ctx context.Context, userID int64) ([]model.Contact, error) {
	var friends []model.Contact
	if err := c.get(ctx, fmt.Sprintf("/users/%d/friends", userID), &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

func (c *HTTPClient) Lookup(ctx context.Context, userID int64) (model.Contact, error) {
	var contact model.Contact
	err := c.get(ctx, fmt.Sprintf("/users/%d", userID), &contact)
	if errors.Is(err, errNotFound) {
		return model.Contact{ID: userID}, nil
	}
	if err != nil {
		return model.Contact{}, err
	}
	if contact.ID == 0 {
		contact.ID = userID
	}
	return contact, nil
}

var errNotFound = errors.New("directory: not found")

func (c *HTTPClient) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("directory: GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("directory: decode %s: %w", path, err)
	}
	return nil
}
