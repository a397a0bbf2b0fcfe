// Package adapters connects the gate to its external collaborators.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"escrowops/internal/gate/models"
)

// CustodyHTTP asks the custody service to prepare a key bundle. The service
// writes the bundle to object storage and answers with its handle.
type CustodyHTTP struct {
	baseURL string
	client  *http.Client
}

func NewCustodyHTTP(baseURL string, timeout time.Duration) *CustodyHTTP {
	return &CustodyHTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type bundleRequest struct {
	IntentID    string `json:"intent_id"`
	RequestedBy string `json:"requested_by"`
}

type bundleResponse struct {
	Handle string `json:"handle"`
}

func (c *CustodyHTTP) PrepareBundle(ctx context.Context, intentID, requestedBy string) (models.BundleHandle, error) {
	body, err := json.Marshal(bundleRequest{IntentID: intentID, RequestedBy: requestedBy})
	if err != nil {
		return "", fmt.Errorf("encode bundle request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/bundles", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build bundle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", intentID)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bundle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("custody returned %s", resp.Status)
	}
	var out bundleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode bundle response: %w", err)
	}
	if out.Handle == "" {
		return "", fmt.Errorf("custody returned no bundle handle")
	}
	return models.BundleHandle(out.Handle), nil
}
