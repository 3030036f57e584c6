// ABOUTME: HTTP-callback transport: POSTs the snapshot to the agent's move endpoint.
// ABOUTME: Aborts exactly at the deadline via context; never retries.

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// moveCallRequest is the JSON body sent to an HTTP-callback agent.
type moveCallRequest struct {
	GameState json.RawMessage `json:"gameState"`
	TimeoutMs int64           `json:"timeoutMs"`
}

type httpTransport struct {
	client *http.Client
}

func newHTTPTransport() *httpTransport {
	// Per-request deadlines come from the caller's context; the client
	// itself carries no timeout so the two can never disagree.
	return &httpTransport{client: &http.Client{}}
}

func (t *httpTransport) requestDecision(ctx context.Context, endpoint string, snapshot json.RawMessage, timeout time.Duration) (Decision, error) {
	if endpoint == "" {
		return Decision{}, errors.New("http-callback agent has no endpoint")
	}

	body, err := json.Marshal(moveCallRequest{GameState: snapshot, TimeoutMs: timeout.Milliseconds()})
	if err != nil {
		return Decision{}, fmt.Errorf("marshaling move call: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimSuffix(endpoint, "/") + "/move"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, fmt.Errorf("building move call: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("calling agent endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Decision{}, fmt.Errorf("agent endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return Decision{}, fmt.Errorf("decoding agent response: %w", err)
	}
	if len(decision.Action) == 0 {
		return Decision{}, errors.New("agent response missing action")
	}
	return decision, nil
}

// notify POSTs a lifecycle payload to one of the agent's callback routes.
// The response body is discarded; only the status matters.
func (t *httpTransport) notify(ctx context.Context, endpoint, path string, body any) error {
	if endpoint == "" {
		return errors.New("http-callback agent has no endpoint")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s notification: %w", path, err)
	}

	url := strings.TrimSuffix(endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s notification: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling agent endpoint: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent endpoint returned %d", resp.StatusCode)
	}
	return nil
}
