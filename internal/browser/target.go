package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Target is one entry of the DevTools /json listing.
type Target struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	WebSocketURL string `json:"webSocketDebuggerUrl"`
}

// VersionInfo is the DevTools /json/version payload.
type VersionInfo struct {
	Browser      string `json:"Browser"`
	ProtocolVer  string `json:"Protocol-Version"`
	UserAgent    string `json:"User-Agent"`
	V8Version    string `json:"V8-Version"`
	WebSocketURL string `json:"webSocketDebuggerUrl"`
}

// FetchTargets lists targets at endpoint ("host:port").
// The caller's context bounds the request.
func FetchTargets(ctx context.Context, endpoint string) ([]Target, error) {
	var targets []Target
	if err := getJSON(ctx, "http://"+endpoint+"/json", &targets); err != nil {
		return nil, fmt.Errorf("fetch targets: %w", err)
	}
	return targets, nil
}

// FetchVersion reads browser version info from endpoint ("host:port").
func FetchVersion(ctx context.Context, endpoint string) (*VersionInfo, error) {
	var info VersionInfo
	if err := getJSON(ctx, "http://"+endpoint+"/json/version", &info); err != nil {
		return nil, fmt.Errorf("fetch version: %w", err)
	}
	return &info, nil
}

func getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// FindPageTarget returns the first page target, or nil.
func FindPageTarget(targets []Target) *Target {
	for i := range targets {
		if targets[i].Type == "page" {
			return &targets[i]
		}
	}
	return nil
}
