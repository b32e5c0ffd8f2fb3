package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/fluxgate/fluxgate/internal/auth/session"
	"github.com/fluxgate/fluxgate/internal/db/models"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SaveImageRequest is the body of POST /api/images.
type SaveImageRequest struct {
	Prompt   string `json:"prompt"`
	Model    string `json:"model,omitempty"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

func (r SaveImageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Prompt, validation.Required),
		validation.Field(&r.URL, validation.Required),
	)
}

// ListImagesHandler returns the user's saved images, newest first.
// GET /api/images
func ListImagesHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := session.UserID(r.Context())

		var images []models.GeneratedImage
		if err := database.Where("user_id = ?", userID).Order("created_at DESC").Find(&images).Error; err != nil {
			log.Printf("[%s] Failed to list images for %s: %v", requestID(r), userID, err)
			writeError(w, http.StatusInternalServerError, "failed to list images")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"images": images})
	}
}

// SaveImageHandler records a generated image the user chose to keep.
// POST /api/images
func SaveImageHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := session.UserID(r.Context())

		var req SaveImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		image := models.GeneratedImage{
			ID:       uuid.New().String(),
			UserID:   userID,
			Prompt:   req.Prompt,
			Model:    req.Model,
			URL:      req.URL,
			Filename: req.Filename,
		}
		if err := database.Create(&image).Error; err != nil {
			log.Printf("[%s] Failed to save image for %s: %v", requestID(r), userID, err)
			writeError(w, http.StatusInternalServerError, "failed to save image")
			return
		}
		writeJSON(w, http.StatusCreated, image)
	}
}

// DeleteImageHandler removes a saved image. Scoped to the owner, so a
// foreign id falls through to 404.
// DELETE /api/images/{id}
func DeleteImageHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := session.UserID(r.Context())
		imageID := chi.URLParam(r, "id")

		result := database.Where("id = ? AND user_id = ?", imageID, userID).Delete(&models.GeneratedImage{})
		if result.Error != nil {
			log.Printf("[%s] Failed to delete image %s: %v", requestID(r), imageID, result.Error)
			writeError(w, http.StatusInternalServerError, "failed to delete image")
			return
		}
		if result.RowsAffected == 0 {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}
