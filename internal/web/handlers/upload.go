package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/fluxgate/fluxgate/internal/storage"
)

// maxUploadBytes caps a single uploaded image.
const maxUploadBytes = 10 << 20

// UploadImageHandler stores a multipart "image" field in the blob store
// and returns its public URL.
// POST /api/uploadImage
func UploadImageHandler(store storage.Uploader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "image storage is not configured")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "image field is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read image")
			return
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}

		url, err := store.Upload(r.Context(), data, contentType)
		if err != nil {
			log.Printf("[%s] Failed to store uploaded image: %v", requestID(r), err)
			writeError(w, http.StatusInternalServerError, "failed to store image")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}
