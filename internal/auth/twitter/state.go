package twitter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// LinkState is the opaque value round-tripped through the provider
// redirect. It carries the local user id and the PKCE verifier so the
// callback can complete the exchange without server-side session state.
type LinkState struct {
	UserID       string `json:"userId"`
	CodeVerifier string `json:"codeVerifier"`
}

// EncodeState serializes a LinkState for the authorization URL.
func EncodeState(s LinkState) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode link state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeState parses the state parameter returned by the provider. Any
// malformed input is an error; the callback must not proceed to token
// exchange with a state it cannot decode.
func DecodeState(raw string) (LinkState, error) {
	var s LinkState
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return s, fmt.Errorf("state is not valid base64url: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("state is not a valid link payload: %w", err)
	}
	if s.UserID == "" || s.CodeVerifier == "" {
		return s, fmt.Errorf("state is missing required fields")
	}
	return s, nil
}
