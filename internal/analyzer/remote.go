package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Remote talks to an external analysis service over HTTP. Each
// capability is one endpoint taking the raw content and returning a
// small JSON document. Network failures and 5xx responses are
// transient; 4xx responses mean the content itself cannot be analyzed
// and are permanent.
type Remote struct {
	baseURL string
	client  *http.Client
}

// NewRemote creates a client for the analysis service at baseURL.
// Per-request deadlines come from the caller's context, so the client
// itself carries no timeout.
func NewRemote(baseURL string) *Remote {
	return &Remote{
		baseURL: baseURL,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        8,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Analyzer returns the full capability set backed by this service.
func (r *Remote) Analyzer() Analyzer {
	return Analyzer{
		Tagger:         r,
		TextRecognizer: r,
		FaceDetector:   r,
		Geocoder:       r,
	}
}

func (r *Remote) Tags(ctx context.Context, content []byte) ([]string, error) {
	var out struct {
		Tags []string `json:"tags"`
	}
	if err := r.post(ctx, CapabilityTags, "/v1/tags", content, &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

func (r *Remote) RecognizeText(ctx context.Context, content []byte) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := r.post(ctx, CapabilityText, "/v1/text", content, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (r *Remote) DetectFaces(ctx context.Context, content []byte) ([]string, error) {
	var out struct {
		Signatures []string `json:"signatures"`
	}
	if err := r.post(ctx, CapabilityFaces, "/v1/faces", content, &out); err != nil {
		return nil, err
	}
	return out.Signatures, nil
}

func (r *Remote) Locate(ctx context.Context, content []byte) (string, error) {
	var out struct {
		Location string `json:"location"`
	}
	if err := r.post(ctx, CapabilityLocation, "/v1/location", content, &out); err != nil {
		return "", err
	}
	return out.Location, nil
}

func (r *Remote) post(ctx context.Context, cap Capability, path string, content []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(content))
	if err != nil {
		return Permanent(cap, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return Transient(cap, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Permanent(cap, fmt.Errorf("analysis service rejected content: %s", resp.Status))
	default:
		return Transient(cap, fmt.Errorf("analysis service error: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transient(cap, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Transient(cap, fmt.Errorf("malformed analysis response: %w", err))
	}
	return nil
}
