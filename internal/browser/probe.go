package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Health is the decoded service health report.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Probe checks whether the local app service is reachable. Calls are bounded
// by a timeout so the UI loop never hangs on a dead service.
type Probe struct {
	baseURL string
	client  *http.Client
}

// NewProbe targets the service at baseURL with the given per-call timeout.
func NewProbe(baseURL string, timeout time.Duration) *Probe {
	return &Probe{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Check fetches the health endpoint and decodes the report.
func (p *Probe) Check(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("service unreachable: %w", err)
	}
	defer resp.Body.Close()

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("service degraded: status %d", resp.StatusCode)
	}
	return &health, nil
}
