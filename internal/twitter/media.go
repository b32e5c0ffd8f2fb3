package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fluxgate/fluxgate/internal/util"
)

const (
	mediaUploadPath = "/1.1/media/upload.json"

	// chunkSize is the per-APPEND segment size. Generated images fit in
	// one segment; larger assets get split across indexed segments.
	chunkSize = 5 * 1024 * 1024

	// statusPollLimit bounds the STATUS loop so a stuck transcode fails
	// instead of hanging the request.
	statusPollLimit = 10
	maxPollDelay    = 10 * time.Second
)

// StepError identifies which protocol step a failed upload died on,
// carrying the upstream status and body.
type StepError struct {
	Step       string
	StatusCode int
	Body       string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("media upload %s failed with %d: %s", e.Step, e.StatusCode, util.TruncateLog(e.Body, 256))
}

type mediaResponse struct {
	MediaIDString  string `json:"media_id_string"`
	ProcessingInfo *struct {
		State          string `json:"state"`
		CheckAfterSecs int    `json:"check_after_secs"`
		Error          *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"processing_info"`
}

// UploadMedia runs the INIT/APPEND/FINALIZE/STATUS sequence and returns
// the provider media id. Any non-2xx at any step aborts the whole upload
// with a StepError; nothing is retried.
func (c *Client) UploadMedia(ctx context.Context, accessToken string, data []byte, mimeType string) (string, error) {
	initResp, err := c.mediaCommand(ctx, accessToken, "INIT", url.Values{
		"command":     {"INIT"},
		"total_bytes": {strconv.Itoa(len(data))},
		"media_type":  {mimeType},
	})
	if err != nil {
		return "", err
	}
	mediaID := initResp.MediaIDString
	if mediaID == "" {
		return "", fmt.Errorf("media upload INIT returned no media id")
	}

	for segment := 0; segment*chunkSize < len(data); segment++ {
		end := (segment + 1) * chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := c.appendSegment(ctx, accessToken, mediaID, segment, data[segment*chunkSize:end]); err != nil {
			return "", err
		}
	}

	finalizeResp, err := c.mediaCommand(ctx, accessToken, "FINALIZE", url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	})
	if err != nil {
		return "", err
	}

	// Asynchronous transcoding: poll STATUS until the terminal state.
	info := finalizeResp.ProcessingInfo
	for poll := 0; info != nil && info.State != "succeeded"; poll++ {
		if info.State == "failed" {
			msg := "processing failed"
			if info.Error != nil {
				msg = info.Error.Message
			}
			return "", fmt.Errorf("media upload STATUS terminal failure: %s", msg)
		}
		if poll >= statusPollLimit {
			return "", fmt.Errorf("media upload still %s after %d status polls", info.State, statusPollLimit)
		}

		delay := time.Duration(info.CheckAfterSecs) * time.Second
		if delay <= 0 {
			delay = time.Second
		}
		if delay > maxPollDelay {
			delay = maxPollDelay
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}

		statusResp, err := c.mediaStatus(ctx, accessToken, mediaID)
		if err != nil {
			return "", err
		}
		info = statusResp.ProcessingInfo
		if info == nil {
			break
		}
	}

	return mediaID, nil
}

// mediaCommand sends a form-encoded INIT or FINALIZE request.
func (c *Client) mediaCommand(ctx context.Context, accessToken, step string, form url.Values) (*mediaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadBaseURL+mediaUploadPath, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", step, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.doMediaRequest(req, step)
}

// appendSegment uploads one indexed chunk of the raw bytes.
func (c *Client) appendSegment(ctx context.Context, accessToken, mediaID string, segment int, chunk []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("command", "APPEND")
	writer.WriteField("media_id", mediaID)
	writer.WriteField("segment_index", strconv.Itoa(segment))

	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return fmt.Errorf("failed to build APPEND form: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return fmt.Errorf("failed to write APPEND chunk: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish APPEND form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadBaseURL+mediaUploadPath, &body)
	if err != nil {
		return fmt.Errorf("failed to create APPEND request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	_, err = c.doMediaRequest(req, "APPEND")
	return err
}

// mediaStatus polls the processing state after FINALIZE.
func (c *Client) mediaStatus(ctx context.Context, accessToken, mediaID string) (*mediaResponse, error) {
	statusURL := fmt.Sprintf("%s%s?command=STATUS&media_id=%s", c.uploadBaseURL, mediaUploadPath, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create STATUS request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.doMediaRequest(req, "STATUS")
}

func (c *Client) doMediaRequest(req *http.Request, step string) (*mediaResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media upload %s request failed: %w", step, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", step, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StepError{Step: step, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	// APPEND returns 204 with no body.
	if len(respBody) == 0 {
		return &mediaResponse{}, nil
	}

	var parsed mediaResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", step, err)
	}
	return &parsed, nil
}
