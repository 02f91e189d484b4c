package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Credentials is the deviceCode/apiToken pair from the device store.
type Credentials struct {
	DeviceCode string
	APIToken   string
}

// Client talks to the game-control API on behalf of one device.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

// NewClient builds a client. The default timeout is short because callers
// are poll loops that prefer a fast failure over a stalled iteration.
func NewClient(baseURL string, creds Credentials) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// DeviceRequest polls for a pending control-panel request; nil when none.
func (c *Client) DeviceRequest(ctx context.Context) (*PendingRequest, error) {
	var out PendingRequest
	ok, err := c.getJSON(ctx, pathDeviceRequest, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// AckDeviceRequest acknowledges a pending request by id. The server is
// idempotent to duplicate acks.
func (c *Client) AckDeviceRequest(ctx context.Context, id string) error {
	return c.postJSON(ctx, pathDeviceRequestAck, map[string]string{"id": id}, nil)
}

// GameDetails fetches the current game state; nil when no game is active.
func (c *Client) GameDetails(ctx context.Context) (*GameDetails, error) {
	var out GameDetails
	ok, err := c.getJSON(ctx, pathGameDetails, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// GameClue polls for an undelivered clue; nil when none.
func (c *Client) GameClue(ctx context.Context) (*Clue, error) {
	var out Clue
	ok, err := c.getJSON(ctx, pathGameClue, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// TimerRequest polls for a pending timer adjustment; nil when none.
func (c *Client) TimerRequest(ctx context.Context) (*TimerRequest, error) {
	var out TimerRequest
	ok, err := c.getJSON(ctx, pathTimerRequest, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// AckTimerRequest acknowledges a timer request by id.
func (c *Client) AckTimerRequest(ctx context.Context, id string) error {
	return c.postJSON(ctx, pathTimerRequestAck, map[string]string{"id": id}, nil)
}

// PowerRequest polls for a pending restart/shutdown order; nil when none.
func (c *Client) PowerRequest(ctx context.Context) (*PowerRequest, error) {
	var out PowerRequest
	ok, err := c.getJSON(ctx, pathPowerRequest, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// AckPowerRequest acknowledges a power request by id.
func (c *Client) AckPowerRequest(ctx context.Context, id string) error {
	return c.postJSON(ctx, pathPowerRequestAck, map[string]string{"id": id}, nil)
}

// PostHeartbeat reports the device as alive.
func (c *Client) PostHeartbeat(ctx context.Context, hb Heartbeat) error {
	return c.postJSON(ctx, pathHeartbeat, hb, nil)
}

// ScreenshotRequest polls for a pending capture request; nil when none.
func (c *Client) ScreenshotRequest(ctx context.Context) (*ScreenshotRequest, error) {
	var out ScreenshotRequest
	ok, err := c.getJSON(ctx, pathScreenshotReq, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// UploadScreenshot posts a captured PNG for the given request id.
func (c *Client) UploadScreenshot(ctx context.Context, id string, png []byte) error {
	u := c.baseURL + pathScreenshotUpload + "?id=" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(png))
	if err != nil {
		return fmt.Errorf("build screenshot upload: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	if err := c.do(req, nil); err != nil && err != errNoContent {
		return err
	}
	return nil
}

// RoomConfig fetches the room configuration; nil when the device is not
// assigned to a room.
func (c *Client) RoomConfig(ctx context.Context) (*RoomConfig, error) {
	var out RoomConfig
	ok, err := c.getJSON(ctx, pathRoomConfig, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// MediaManifestRaw fetches the room media manifest as signed URL lists.
type MediaManifestRaw struct {
	Categories map[string]string `json:"categories"`
	ClueFiles  []string          `json:"clueFiles"`
}

// MediaManifest fetches the current media manifest; nil when none assigned.
func (c *Client) MediaManifest(ctx context.Context) (*MediaManifestRaw, error) {
	var out MediaManifestRaw
	ok, err := c.getJSON(ctx, pathMediaManifest, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// getJSON performs an authenticated GET. The second return is false when
// the server reports no content for this device (204 or 404).
func (c *Client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build request %s: %w", path, err)
	}
	if err := c.do(req, out); err != nil {
		if err == errNoContent {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	err = c.do(req, out)
	if err == errNoContent {
		return nil
	}
	return err
}

var errNoContent = fmt.Errorf("api: no content")

func (c *Client) do(req *http.Request, out any) error {
	req.SetBasicAuth(c.creds.DeviceCode, c.creds.APIToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotFound:
		return errNoContent
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("api: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response %s: %w", req.URL.Path, err)
	}
	return nil
}
