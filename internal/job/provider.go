// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package job

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/atelier/internal/config"
	"github.com/tomtom215/atelier/internal/resource"
)

// SlotStatus is the polled state of one batch slot. A slot is collectable
// once it is available and no longer scheduled; BlobURL may still be empty
// for slots that completed without producing an image.
type SlotStatus struct {
	Scheduled bool
	Available bool
	BlobURL   string
}

// Provider is the generation backend. Create submits a batch without
// waiting, Poll reports per-slot status for a submission token, and
// FetchBlob downloads a finished image.
type Provider interface {
	Create(ctx context.Context, input resource.Input) (string, error)
	Poll(ctx context.Context, token string) ([]SlotStatus, error)
	FetchBlob(ctx context.Context, blobURL string) ([]byte, error)
}

// HTTPProvider talks to the Civitai orchestration API.
type HTTPProvider struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider client from configuration.
func NewHTTPProvider(cfg *config.ProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		baseURL: cfg.URL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// createRequest is the submission envelope: the text-to-image input plus
// the provider's job type discriminator.
type createRequest struct {
	Type string `json:"$type"`
	resource.Input
}

type createResponse struct {
	Token string `json:"token"`
}

type pollResponse struct {
	Jobs []struct {
		Scheduled bool `json:"scheduled"`
		Result    struct {
			Available bool   `json:"available"`
			BlobURL   string `json:"blobUrl"`
		} `json:"result"`
	} `json:"jobs"`
}

// Create submits a batch without waiting and returns the polling token.
func (p *HTTPProvider) Create(ctx context.Context, input resource.Input) (string, error) {
	payload, err := json.Marshal(createRequest{Type: "textToImage", Input: input})
	if err != nil {
		return "", fmt.Errorf("encode job input: %w", err)
	}

	reqURL := p.baseURL + "/consumer/jobs?wait=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("job submission request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("job submission failed with status %d: %s", resp.StatusCode, string(body))
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode job submission response: %w", err)
	}
	if created.Token == "" {
		return "", fmt.Errorf("job submission response carried no token")
	}
	return created.Token, nil
}

// Poll reports the current status of every slot in the submission.
func (p *HTTPProvider) Poll(ctx context.Context, token string) ([]SlotStatus, error) {
	reqURL := p.baseURL + "/consumer/jobs?token=" + token
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("poll failed with status %d: %s", resp.StatusCode, string(body))
	}

	var polled pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&polled); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}

	slots := make([]SlotStatus, len(polled.Jobs))
	for i, job := range polled.Jobs {
		slots[i] = SlotStatus{
			Scheduled: job.Scheduled,
			Available: job.Result.Available,
			BlobURL:   job.Result.BlobURL,
		}
	}
	return slots, nil
}

// FetchBlob downloads a finished image by its blob URL.
func (p *HTTPProvider) FetchBlob(ctx context.Context, blobURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create blob request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob fetch failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
