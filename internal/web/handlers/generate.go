package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fluxgate/fluxgate/internal/ratelimit"
	"github.com/fluxgate/fluxgate/internal/upstream/together"
	validation "github.com/go-ozzo/ozzo-validation"
)

// RateLimitedMessage is the fixed response when the free tier is
// exhausted.
const RateLimitedMessage = "No requests left. Please add your own API key or try again in 24h."

// GenerateImagesRequest is the body of POST /api/generateImages.
type GenerateImagesRequest struct {
	Prompt        string `json:"prompt"`
	UserAPIKey    string `json:"userAPIKey,omitempty"`
	Model         string `json:"model,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	Steps         int    `json:"steps,omitempty"`
	IterativeMode bool   `json:"iterativeMode,omitempty"`
}

// Validate checks field-level constraints before any upstream call.
func (r GenerateImagesRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Prompt, validation.Required, validation.Length(1, 2000)),
		validation.Field(&r.Width, validation.Min(0), validation.Max(2048)),
		validation.Field(&r.Height, validation.Min(0), validation.Max(2048)),
		validation.Field(&r.Steps, validation.Min(0), validation.Max(64)),
	)
}

// GenerateImagesHandler forwards a prompt to the image model. Calls
// without a personal API key consume the shared credential and go
// through the per-IP rate limiter first.
// POST /api/generateImages
func GenerateImagesHandler(limiter *ratelimit.Limiter, client *together.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateImagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if req.UserAPIKey == "" {
			ip := ratelimit.ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				log.Printf("[%s] Rate limiter error for %s: %v", requestID(r), ip, err)
				writeError(w, http.StatusInternalServerError, "rate limiter unavailable")
				return
			}
			if !allowed {
				writeError(w, http.StatusTooManyRequests, RateLimitedMessage)
				return
			}
		}

		result, err := client.GenerateImage(r.Context(), &together.GenerateRequest{
			Prompt:        req.Prompt,
			Model:         req.Model,
			Width:         req.Width,
			Height:        req.Height,
			Steps:         req.Steps,
			IterativeMode: req.IterativeMode,
			UserAPIKey:    req.UserAPIKey,
		})
		if err != nil {
			if errors.Is(err, together.ErrUnknownModel) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			var upErr *together.UpstreamError
			if errors.As(err, &upErr) {
				log.Printf("[%s] Image API error %d: %s", requestID(r), upErr.StatusCode, upErr.Body)
			} else {
				log.Printf("[%s] Image generation failed: %v", requestID(r), err)
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}
