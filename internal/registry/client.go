// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package registry resolves model URNs against the upstream model registry
// (Civitai) to fetch the latest published version of a model. Lookups are
// fronted by a Resolver interface so callers can be tested against fakes,
// and production wiring layers a circuit breaker and a rate limiter on top
// of the plain HTTP client.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/goccy/go-json"

	"github.com/tomtom215/atelier/internal/config"
	"github.com/tomtom215/atelier/internal/metrics"
)

// UnknownVersionName is the display name used when a model's version cannot
// be determined, either because its urn carries no registry id or because
// the registry lookup failed.
const UnknownVersionName = "unknown"

// VersionInfo describes the latest published version of a model.
type VersionInfo struct {
	Name       string
	PreviewURL string
	Unknown    bool
}

// Unknown returns the degraded version info used when resolution is not
// possible. Callers treat Unknown versions as "outdated or unavailable".
func Unknown() *VersionInfo {
	return &VersionInfo{Name: UnknownVersionName, Unknown: true}
}

// Resolver resolves a model urn to its latest registry version.
type Resolver interface {
	Resolve(ctx context.Context, urn string) (*VersionInfo, error)
}

// versionIDPattern extracts the numeric registry id embedded in a model urn,
// e.g. "urn:air:sdxl:checkpoint:civitai:101055@128078" yields "101055".
var versionIDPattern = regexp.MustCompile(`:(\d+)@`)

// VersionID extracts the registry model id from a urn. The second return
// is false when the urn carries no numeric id.
func VersionID(urn string) (string, bool) {
	m := versionIDPattern.FindStringSubmatch(urn)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// modelResponse is the subset of the registry's model payload we consume.
type modelResponse struct {
	ModelVersions []struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"modelVersions"`
}

// Client is the plain HTTP registry client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a registry client from configuration.
func NewClient(cfg *config.RegistryConfig) *Client {
	return &Client{
		baseURL: cfg.URL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Resolve fetches the latest version of the model identified by urn. A urn
// without a numeric registry id resolves to Unknown without a network call.
// Transport and status errors are returned to the caller so resilience
// wrappers can observe them.
func (c *Client) Resolve(ctx context.Context, urn string) (*VersionInfo, error) {
	id, ok := VersionID(urn)
	if !ok {
		metrics.RegistryLookups.WithLabelValues("unknown").Inc()
		return Unknown(), nil
	}

	reqURL := fmt.Sprintf("%s/models/%s", c.baseURL, id)
	if c.token != "" {
		reqURL += "?token=" + url.QueryEscape(c.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		metrics.RegistryLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create registry request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RegistryLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.RegistryLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("registry request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var model modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&model); err != nil {
		metrics.RegistryLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode registry response: %w", err)
	}

	if len(model.ModelVersions) == 0 {
		metrics.RegistryLookups.WithLabelValues("unknown").Inc()
		return Unknown(), nil
	}

	latest := model.ModelVersions[0]
	info := &VersionInfo{Name: latest.Name}
	if len(latest.Images) > 0 {
		info.PreviewURL = latest.Images[0].URL
	}
	metrics.RegistryLookups.WithLabelValues("ok").Inc()
	return info, nil
}
