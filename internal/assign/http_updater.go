package assign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPUpdater performs category updates against the JSON API:
// POST {base}/api/transactions/{id}/categorize with {"category_id": n}.
type HTTPUpdater struct {
	client  *http.Client
	baseURL string
}

func NewHTTPUpdater(baseURL string, client *http.Client) *HTTPUpdater {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPUpdater{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type categorizeRequest struct {
	CategoryID *int64 `json:"category_id"`
}

type categorizeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UpdateCategory classifies failures along the transport boundary:
// transport errors are network failures, non-2xx statuses are server
// rejections even when a body is present, and a 2xx response either
// commits (status "success") or is an application rejection. A 2xx
// body that does not parse counts as a network failure since the
// outcome is unknown.
func (u *HTTPUpdater) UpdateCategory(ctx context.Context, transactionID int64, categoryID *int64) error {
	body, err := json.Marshal(categorizeRequest{CategoryID: categoryID})
	if err != nil {
		return &UpdateError{Kind: FailureNetwork, Err: fmt.Errorf("marshal request: %w", err)}
	}

	url := fmt.Sprintf("%s/api/transactions/%d/categorize", u.baseURL, transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &UpdateError{Kind: FailureNetwork, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return &UpdateError{Kind: FailureNetwork, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &UpdateError{Kind: FailureNetwork, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := ""
		var decoded categorizeResponse
		if json.Unmarshal(payload, &decoded) == nil {
			message = decoded.Message
		}
		return &UpdateError{
			Kind:    FailureServerRejected,
			Message: message,
			Err:     fmt.Errorf("server returned %s", resp.Status),
		}
	}

	var decoded categorizeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return &UpdateError{Kind: FailureNetwork, Err: fmt.Errorf("malformed response body: %w", err)}
	}
	if decoded.Status != "success" {
		return &UpdateError{Kind: FailureApplicationRejected, Message: decoded.Message}
	}
	return nil
}
