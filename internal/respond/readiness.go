package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Readiness probes a backend's flight-check endpoint.
type Readiness struct {
	url  string
	http *http.Client
}

// NewReadiness returns a probe for the flight-check endpoint at url. A nil
// hc uses a client with a 5s timeout.
func NewReadiness(url string, hc *http.Client) *Readiness {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	return &Readiness{url: url, http: hc}
}

// Check fetches the flight check. A reachable backend that reports itself
// degraded is not an error; inspect [FlightCheck.Ready].
func (r *Readiness) Check(ctx context.Context) (FlightCheck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return FlightCheck{}, fmt.Errorf("respond: build flight check: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return FlightCheck{}, fmt.Errorf("respond: flight check: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return FlightCheck{}, fmt.Errorf("respond: read flight check: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FlightCheck{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	var fc FlightCheck
	if err := json.Unmarshal(data, &fc); err != nil {
		return FlightCheck{}, fmt.Errorf("respond: decode flight check: %w", err)
	}
	if fc.OverallStatus == "" {
		return FlightCheck{}, fmt.Errorf("respond: flight check without overall_status")
	}
	return fc, nil
}
