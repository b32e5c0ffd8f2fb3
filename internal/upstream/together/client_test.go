package together

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fluxgate/fluxgate/internal/config"
)

func TestResolveModel(t *testing.T) {
	c := NewClient("", "shared-key", config.DefaultCatalog())

	tests := []struct {
		name      string
		req       GenerateRequest
		wantModel string
		wantSteps int
		wantErr   error
	}{
		{
			name:      "no key forces default for key-requiring model",
			req:       GenerateRequest{Model: "black-forest-labs/FLUX.1.1-pro"},
			wantModel: config.DefaultModel,
			wantSteps: 2,
		},
		{
			name:      "personal key honors caller model",
			req:       GenerateRequest{Model: "black-forest-labs/FLUX.1.1-pro", UserAPIKey: "sk-user"},
			wantModel: "black-forest-labs/FLUX.1.1-pro",
			wantSteps: 28,
		},
		{
			name:      "personal key without model still defaults",
			req:       GenerateRequest{UserAPIKey: "sk-user"},
			wantModel: config.DefaultModel,
			wantSteps: 2,
		},
		{
			name:      "explicit steps preserved",
			req:       GenerateRequest{UserAPIKey: "sk-user", Model: "black-forest-labs/FLUX.1-schnell", Steps: 8},
			wantModel: "black-forest-labs/FLUX.1-schnell",
			wantSteps: 8,
		},
		{
			name:      "no key may select a model the shared credential serves",
			req:       GenerateRequest{Model: config.DefaultModel},
			wantModel: config.DefaultModel,
			wantSteps: 2,
		},
		{
			name:    "unknown model rejected with key",
			req:     GenerateRequest{Model: "no-such-lab/not-a-model", UserAPIKey: "sk-user"},
			wantErr: ErrUnknownModel,
		},
		{
			name:    "unknown model rejected without key",
			req:     GenerateRequest{Model: "no-such-lab/not-a-model"},
			wantErr: ErrUnknownModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, steps, err := c.ResolveModel(&tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveModel: %v", err)
			}
			if model != tt.wantModel {
				t.Fatalf("model = %q, want %q", model, tt.wantModel)
			}
			if steps != tt.wantSteps {
				t.Fatalf("steps = %d, want %d", steps, tt.wantSteps)
			}
		})
	}
}

func TestGenerateImage_UnknownModelNoUpstreamCall(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	c := NewClient(server.URL, "shared-key", config.DefaultCatalog())
	_, err := c.GenerateImage(context.Background(), &GenerateRequest{
		Prompt: "p", Model: "no-such-lab/not-a-model", UserAPIKey: "sk-user",
	})
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("rejected model must not reach upstream, got %d calls", calls)
	}
}

func TestGenerateImage_PerCallKeyBinding(t *testing.T) {
	var seenAuth []string
	var seenModels []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = append(seenAuth, r.Header.Get("Authorization"))

		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		seenModels = append(seenModels, payload["model"].(string))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"b64_json": "aGVsbG8=", "timings": map[string]float64{"inference": 0.42}},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "shared-key", config.DefaultCatalog())
	ctx := context.Background()

	// Call with a personal key, then without. The second call must use
	// the shared key: nothing lingers from the first.
	if _, err := c.GenerateImage(ctx, &GenerateRequest{Prompt: "p", Model: "black-forest-labs/FLUX.1.1-pro", UserAPIKey: "sk-user"}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	result, err := c.GenerateImage(ctx, &GenerateRequest{Prompt: "A red balloon", Model: "black-forest-labs/FLUX.1.1-pro"})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if seenAuth[0] != "Bearer sk-user" {
		t.Fatalf("first call auth = %q, want user key", seenAuth[0])
	}
	if seenAuth[1] != "Bearer shared-key" {
		t.Fatalf("second call auth = %q, want shared key", seenAuth[1])
	}
	if seenModels[0] != "black-forest-labs/FLUX.1.1-pro" {
		t.Fatalf("first call model = %q, want caller's model", seenModels[0])
	}
	if seenModels[1] != config.DefaultModel {
		t.Fatalf("second call model = %q, want forced default", seenModels[1])
	}
	if result.B64JSON != "aGVsbG8=" {
		t.Fatalf("unexpected payload %q", result.B64JSON)
	}
	if result.Timings.Inference != 0.42 {
		t.Fatalf("unexpected inference timing %v", result.Timings.Inference)
	}
}

func TestGenerateImage_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "shared-key", config.DefaultCatalog())
	_, err := c.GenerateImage(context.Background(), &GenerateRequest{Prompt: "p"})

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upErr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", upErr.StatusCode)
	}
}
