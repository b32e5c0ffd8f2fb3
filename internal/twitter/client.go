// Package twitter is the HTTP client for posting tweets and uploading
// media on behalf of a linked account.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fluxgate/fluxgate/internal/util"
)

// Default API hosts. Overridable for tests.
const (
	DefaultAPIBaseURL    = "https://api.twitter.com"
	DefaultUploadBaseURL = "https://upload.twitter.com"
)

// Client calls the Twitter API. Access tokens are passed per call so one
// client serves every linked account.
type Client struct {
	apiBaseURL    string
	uploadBaseURL string
	httpClient    *http.Client
}

// NewClient creates a client against the production API hosts.
func NewClient() *Client {
	return NewClientWithBaseURLs(DefaultAPIBaseURL, DefaultUploadBaseURL)
}

// NewClientWithBaseURLs creates a client against custom hosts.
func NewClientWithBaseURLs(apiBaseURL, uploadBaseURL string) *Client {
	return &Client{
		apiBaseURL:    apiBaseURL,
		uploadBaseURL: uploadBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Tweet is the posted status as the API reports it.
type Tweet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PostTweet publishes a status, optionally referencing uploaded media.
func (c *Client) PostTweet(ctx context.Context, accessToken, text string, mediaIDs []string) (*Tweet, error) {
	payload := map[string]interface{}{"text": text}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]interface{}{"media_ids": mediaIDs}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tweet payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create tweet request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tweet request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tweet response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tweet endpoint returned %d: %s", resp.StatusCode, util.TruncateLog(string(respBody), 256))
	}

	var parsed struct {
		Data Tweet `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode tweet response: %w", err)
	}
	return &parsed.Data, nil
}

// DownloadImage fetches a public image URL and returns its bytes and
// MIME type, for feeding into the media upload.
func DownloadImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
