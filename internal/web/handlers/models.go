package handlers

import (
	"net/http"

	"github.com/fluxgate/fluxgate/internal/config"
)

// ModelsHandler returns the model catalog and premade prompts.
// GET /api/models
func ModelsHandler(catalog *config.ModelCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"default":        config.DefaultModel,
			"models":         catalog.Models,
			"premadePrompts": catalog.PremadePrompts,
		})
	}
}
