package attestation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Prover runs the out-of-band attestation. StartAttestation may block for as
// long as the user takes to complete the proof; it returns when ctx is done.
type Prover interface {
	StartAttestation(ctx context.Context, signedRequest string) (string, error)
}

// HTTPProver talks to the attestation service over HTTP.
type HTTPProver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProver - client has no timeout, the wait is bounded by ctx only
func NewHTTPProver(baseURL string) *HTTPProver {
	return &HTTPProver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

type startResponse struct {
	Code        int             `json:"code"`
	Message     string          `json:"message"`
	Attestation json.RawMessage `json:"attestation"`
}

// StartAttestation posts the signed request and waits for the attestation.
func (p *HTTPProver) StartAttestation(ctx context.Context, signedRequest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/attestation/start", bytes.NewBufferString(signedRequest))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach attestation service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http error %d: %s", resp.StatusCode, string(raw))
	}

	var result startResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("attestation rejected (code %d): %s", result.Code, result.Message)
	}
	if len(result.Attestation) == 0 || string(result.Attestation) == "null" {
		return "", fmt.Errorf("attestation service returned no attestation")
	}
	// the service may return the attestation either inline or as a JSON string
	if result.Attestation[0] == '"' {
		var s string
		if err := json.Unmarshal(result.Attestation, &s); err != nil {
			return "", fmt.Errorf("failed to decode attestation: %w", err)
		}
		return s, nil
	}
	return string(result.Attestation), nil
}
