package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cadre-oss/statecast/internal/state"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// apiError is the server's JSON error body.
type apiError struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Suggestion string `json:"suggestion"`
}

func postJSON(url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func getJSON(url string, out interface{}) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Error != "" {
			if ae.Suggestion != "" {
				return fmt.Errorf("server returned %d: %s (%s)", resp.StatusCode, ae.Error, ae.Suggestion)
			}
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, ae.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// emitRemote posts a raw event to a running server.
func emitRemote(baseURL string, p state.Partial) (state.Event, error) {
	var ev state.Event
	err := postJSON(baseURL+"/api/state/events", p, &ev)
	return ev, err
}
