// Package neurosync implements [a2f.Provider] against a NeuroSync-style HTTP
// inference endpoint.
//
// The audio file is POSTed as the raw request body with the API key in an
// API-Key header. The service answers with a JSON object holding one array of
// blendshape values per output frame:
//
//	{"blendshapes": [[0.01, 0.2, ...], ...]}
//
// Example usage:
//
//	p, err := neurosync.New("http://127.0.0.1:5000/audio_to_blendshapes", neurosync.WithAPIKey(key))
//	take, err := p.Generate(ctx, wavBytes)
package neurosync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/provider/a2f"
)

// Ensure Provider implements the a2f.Provider interface at compile time.
var _ a2f.Provider = (*Provider)(nil)

// ErrEmptyResponse is returned when the service answers without frames.
var ErrEmptyResponse = errors.New("neurosync: response contains no blendshape frames")

// maxErrorBody bounds how much of an error response is quoted in errors.
const maxErrorBody = 512

// Provider calls a NeuroSync inference endpoint. Safe for concurrent use.
type Provider struct {
	url        string
	apiKey     string
	fps        int
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithAPIKey sets the value of the API-Key request header.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// WithTimeout sets a per-request HTTP timeout. Zero means no timeout beyond
// the request context.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithFPS sets the frame rate the model produces. Defaults to
// [face.DefaultFPS].
func WithFPS(fps int) Option {
	return func(p *Provider) {
		if fps > 0 {
			p.fps = fps
		}
	}
}

// New constructs a Provider for the endpoint at url.
func New(url string, opts ...Option) (*Provider, error) {
	if url == "" {
		return nil, fmt.Errorf("neurosync: url must not be empty")
	}
	p := &Provider{
		url:        url,
		fps:        face.DefaultFPS,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type generateResponse struct {
	Blendshapes face.RawSequence `json:"blendshapes"`
}

// Generate implements [a2f.Provider].
func (p *Provider) Generate(ctx context.Context, audio []byte) (face.Take, error) {
	if len(audio) == 0 {
		return face.Take{}, fmt.Errorf("neurosync: generate: empty audio")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(audio))
	if err != nil {
		return face.Take{}, fmt.Errorf("neurosync: generate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if p.apiKey != "" {
		req.Header.Set("API-Key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return face.Take{}, fmt.Errorf("neurosync: generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return face.Take{}, fmt.Errorf("neurosync: generate: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return face.Take{}, fmt.Errorf("neurosync: generate: decode response: %w", err)
	}
	if len(out.Blendshapes) == 0 {
		return face.Take{}, ErrEmptyResponse
	}
	return face.Take{FPS: p.fps, Frames: out.Blendshapes}, nil
}
