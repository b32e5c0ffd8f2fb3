// Package together is the HTTP client for the Together AI image API.
package together

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fluxgate/fluxgate/internal/config"
	"github.com/fluxgate/fluxgate/internal/util"
)

// DefaultBaseURL is the Together API root.
const DefaultBaseURL = "https://api.together.xyz"

// Client calls the image-generation endpoint. The shared server key is
// immutable; a caller-supplied key is bound per request instead of
// mutating client state, so there is nothing to restore after a call.
type Client struct {
	baseURL    string
	sharedKey  string
	httpClient *http.Client
	catalog    *config.ModelCatalog
}

// NewClient creates an image-generation client around the shared key.
func NewClient(baseURL, sharedKey string, catalog *config.ModelCatalog) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		sharedKey: sharedKey,
		catalog:   catalog,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Image generation is slow
		},
	}
}

// GenerateRequest carries the caller's generation parameters. UserAPIKey
// is empty for free-tier calls going through the shared credential.
type GenerateRequest struct {
	Prompt        string
	Model         string
	Width         int
	Height        int
	Steps         int
	IterativeMode bool
	UserAPIKey    string
}

// GenerateResult is the single image the API returns per call.
type GenerateResult struct {
	B64JSON string  `json:"b64_json"`
	Timings Timings `json:"timings"`
}

// Timings reports upstream inference duration in seconds.
type Timings struct {
	Inference float64 `json:"inference"`
}

// ErrUnknownModel rejects a requested model the catalog does not list.
var ErrUnknownModel = errors.New("unknown model")

// UpstreamError wraps a non-2xx response from the image API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("image API returned %d: %s", e.StatusCode, util.TruncateLog(e.Body, 256))
}

// ResolveModel applies the credential-switch model policy. Callers with
// a personal key get their requested model, validated against the
// catalog. Keyless callers may only select models the shared credential
// serves; a requested model that needs a key falls back to the default.
// The returned steps come from the catalog when the caller did not set
// them.
func (c *Client) ResolveModel(req *GenerateRequest) (model string, steps int, err error) {
	model = config.DefaultModel
	if req.Model != "" {
		spec, ok := c.catalog.Lookup(req.Model)
		if !ok {
			return "", 0, fmt.Errorf("%w: %s", ErrUnknownModel, req.Model)
		}
		if req.UserAPIKey != "" || !spec.RequiresKey {
			model = spec.Name
		}
	}
	steps = req.Steps
	if steps <= 0 {
		steps = c.catalog.DefaultSteps(model)
	}
	return model, steps, nil
}

type generatePayload struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	N              int    `json:"n"`
	Seed           *int   `json:"seed,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type generateResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		Timings struct {
			Inference float64 `json:"inference"`
		} `json:"timings"`
	} `json:"data"`
}

// GenerateImage calls the images endpoint and returns the first result.
func (c *Client) GenerateImage(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	model, steps, err := c.ResolveModel(req)
	if err != nil {
		return nil, err
	}

	width, height := req.Width, req.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 768
	}

	payload := generatePayload{
		Prompt:         req.Prompt,
		Model:          model,
		Width:          width,
		Height:         height,
		Steps:          steps,
		N:              1,
		ResponseFormat: "base64",
	}
	// Iterative mode pins the seed so prompt tweaks evolve one image.
	if req.IterativeMode {
		seed := 123
		payload.Seed = &seed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Per-call credential binding: the user key, when present, applies
	// to this request only.
	key := c.sharedKey
	if req.UserAPIKey != "" {
		key = req.UserAPIKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image API response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode image API response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("image API returned no images")
	}

	return &GenerateResult{
		B64JSON: parsed.Data[0].B64JSON,
		Timings: Timings{Inference: parsed.Data[0].Timings.Inference},
	}, nil
}
