package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/roomtrek/kioskd/internal/api"
	"github.com/roomtrek/kioskd/internal/bridge"
	"github.com/roomtrek/kioskd/internal/events"
)

// Worker registry names. These are the only names the supervisor accepts.
const (
	NameClue            = "clue"
	NameGameInfo        = "game-info"
	NameTimerRequests   = "timer-requests"
	NameUpdateRoom      = "update-room"
	NameShutdownRestart = "shutdown-restart"
	NameHeartbeat       = "device-heartbeat"
	NameScreenshot      = "screenshot"
	NameDeviceRequests  = "device-requests"
)

// All builds every known worker keyed by name.
func All(deps Deps) map[string]*Worker {
	workers := []*Worker{
		NewClueWorker(deps),
		NewGameInfoWorker(deps),
		NewTimerWorker(deps),
		NewUpdateRoomWorker(deps),
		NewPowerWorker(deps),
		NewHeartbeatWorker(deps),
		NewScreenshotWorker(deps),
		NewDeviceRequestWorker(deps),
	}
	byName := make(map[string]*Worker, len(workers))
	for _, w := range workers {
		byName[w.Name()] = w
	}
	return byName
}

// NewClueWorker polls for pushed clues. Latency-sensitive, so it runs tight.
func NewClueWorker(d Deps) *Worker {
	return newWorker(NameClue, d.interval(NameClue, time.Second), d, func(c *api.Client, _ *bridge.Client) Handler {
		return &clueHandler{api: c}
	})
}

type clueHandler struct {
	api    *api.Client
	lastID string
}

func (h *clueHandler) Poll(ctx context.Context) ([]events.Message, error) {
	clue, err := h.api.GameClue(ctx)
	if err != nil {
		return nil, err
	}
	if clue == nil || clue.ID == h.lastID {
		return nil, nil
	}
	h.lastID = clue.ID
	return []events.Message{events.Event("clue", "received", map[string]any{
		"id":       clue.ID,
		"text":     clue.Text,
		"mediaUrl": clue.MediaURL,
		"speak":    clue.Speak,
	})}, nil
}

// NewGameInfoWorker tracks the game status and mirrors it into the store.
func NewGameInfoWorker(d Deps) *Worker {
	return newWorker(NameGameInfo, d.interval(NameGameInfo, 2*time.Second), d, func(c *api.Client, br *bridge.Client) Handler {
		return &gameInfoHandler{api: c, bridge: br}
	})
}

type gameInfoHandler struct {
	api        *api.Client
	bridge     *bridge.Client
	lastStatus string
}

func (h *gameInfoHandler) Poll(ctx context.Context) ([]events.Message, error) {
	details, err := h.api.GameDetails(ctx)
	if err != nil {
		return nil, err
	}
	status := "idle"
	var msgs []events.Message
	if details != nil {
		status = details.Status
	}
	if status == h.lastStatus {
		return nil, nil
	}
	h.lastStatus = status
	if err := h.bridge.Set(ctx, "gameStatus", status); err != nil {
		return nil, fmt.Errorf("store game status: %w", err)
	}
	payload := map[string]any{"status": status}
	if details != nil {
		payload["remainingSecond"] = details.RemainingSecond
		payload["teamName"] = details.TeamName
	}
	msgs = append(msgs, events.Event("game", "status-changed", payload))
	return msgs, nil
}

// NewTimerWorker polls for countdown adjustments and acknowledges each one.
func NewTimerWorker(d Deps) *Worker {
	return newWorker(NameTimerRequests, d.interval(NameTimerRequests, time.Second), d, func(c *api.Client, _ *bridge.Client) Handler {
		return &timerHandler{api: c}
	})
}

type timerHandler struct {
	api         *api.Client
	lastAckedID string
}

func (h *timerHandler) Poll(ctx context.Context) ([]events.Message, error) {
	req, err := h.api.TimerRequest(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, nil
	}
	// Ack exactly once per observed id. After a restart the same id may be
	// observed and re-acked; the remote side tolerates duplicate acks.
	if req.ID == h.lastAckedID {
		return nil, nil
	}
	if err := h.api.AckTimerRequest(ctx, req.ID); err != nil {
		return nil, err
	}
	h.lastAckedID = req.ID
	return []events.Message{events.Event("timer", req.Action, map[string]any{
		"id":            req.ID,
		"adjustSeconds": req.AdjustSeconds,
	})}, nil
}

// NewUpdateRoomWorker keeps the room configuration in the store current.
func NewUpdateRoomWorker(d Deps) *Worker {
	return newWorker(NameUpdateRoom, d.interval(NameUpdateRoom, 5*time.Second), d, func(c *api.Client, br *bridge.Client) Handler {
		return &updateRoomHandler{api: c, bridge: br, lastVersion: -1}
	})
}

type updateRoomHandler struct {
	api         *api.Client
	bridge      *bridge.Client
	lastVersion int
}

func (h *updateRoomHandler) Poll(ctx context.Context) ([]events.Message, error) {
	cfg, err := h.api.RoomConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil || cfg.Version == h.lastVersion {
		return nil, nil
	}
	if err := h.bridge.Set(ctx, "roomId", cfg.RoomID); err != nil {
		return nil, fmt.Errorf("store room id: %w", err)
	}
	if err := h.bridge.Set(ctx, "roomConfigVersion", fmt.Sprintf("%d", cfg.Version)); err != nil {
		return nil, fmt.Errorf("store room version: %w", err)
	}
	h.lastVersion = cfg.Version
	return []events.Message{events.Event("room", "updated", map[string]any{
		"roomId":   cfg.RoomID,
		"roomName": cfg.RoomName,
		"version":  cfg.Version,
	})}, nil
}

// NewPowerWorker polls for remote restart/shutdown orders. The resulting
// SystemAction is intercepted by the supervisor, never forwarded to the UI.
func NewPowerWorker(d Deps) *Worker {
	return newWorker(NameShutdownRestart, d.interval(NameShutdownRestart, 10*time.Second), d, func(c *api.Client, _ *bridge.Client) Handler {
		return &powerHandler{api: c}
	})
}

type powerHandler struct {
	api         *api.Client
	lastAckedID string
}

func (h *powerHandler) Poll(ctx context.Context) ([]events.Message, error) {
	req, err := h.api.PowerRequest(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil || req.ID == h.lastAckedID {
		return nil, nil
	}
	if err := h.api.AckPowerRequest(ctx, req.ID); err != nil {
		return nil, err
	}
	h.lastAckedID = req.ID
	action := events.ActionRestart
	if req.Action == "shutdown" {
		action = events.ActionShutdown
	}
	return []events.Message{events.System(action)}, nil
}

// NewHeartbeatWorker posts the device's liveness and current game status.
func NewHeartbeatWorker(d Deps) *Worker {
	return newWorker(NameHeartbeat, d.interval(NameHeartbeat, 10*time.Second), d, func(c *api.Client, br *bridge.Client) Handler {
		return &heartbeatHandler{api: c, bridge: br, started: time.Now()}
	})
}

type heartbeatHandler struct {
	api     *api.Client
	bridge  *bridge.Client
	started time.Time
}

func (h *heartbeatHandler) Poll(ctx context.Context) ([]events.Message, error) {
	status, err := h.bridge.Get(ctx, "gameStatus")
	if err != nil {
		status = ""
	}
	hb := api.Heartbeat{
		GameStatus: status,
		UptimeSec:  int64(time.Since(h.started).Seconds()),
	}
	if err := h.api.PostHeartbeat(ctx, hb); err != nil {
		return nil, err
	}
	return nil, nil
}

// NewDeviceRequestWorker polls for queued control-panel requests (notify
// messages, device resets) and acknowledges each one before forwarding it.
func NewDeviceRequestWorker(d Deps) *Worker {
	return newWorker(NameDeviceRequests, d.interval(NameDeviceRequests, 2*time.Second), d, func(c *api.Client, _ *bridge.Client) Handler {
		return &deviceRequestHandler{api: c}
	})
}

type deviceRequestHandler struct {
	api         *api.Client
	lastAckedID string
}

func (h *deviceRequestHandler) Poll(ctx context.Context) ([]events.Message, error) {
	req, err := h.api.DeviceRequest(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil || req.ID == h.lastAckedID {
		return nil, nil
	}
	if err := h.api.AckDeviceRequest(ctx, req.ID); err != nil {
		return nil, err
	}
	h.lastAckedID = req.ID
	return []events.Message{events.Event("device", req.Action, map[string]any{
		"id":     req.ID,
		"params": req.Params,
	})}, nil
}

// NewScreenshotWorker answers remote capture requests.
func NewScreenshotWorker(d Deps) *Worker {
	return newWorker(NameScreenshot, d.interval(NameScreenshot, 5*time.Second), d, func(c *api.Client, _ *bridge.Client) Handler {
		return &screenshotHandler{api: c, capture: d.Capture}
	})
}

type screenshotHandler struct {
	api         *api.Client
	capture     CaptureFunc
	lastAckedID string
}

func (h *screenshotHandler) Poll(ctx context.Context) ([]events.Message, error) {
	req, err := h.api.ScreenshotRequest(ctx)
	if err != nil {
		return nil, err
	}
	if req == nil || req.ID == h.lastAckedID {
		return nil, nil
	}
	if h.capture == nil {
		return nil, fmt.Errorf("no capture collaborator configured")
	}
	png, err := h.capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	if err := h.api.UploadScreenshot(ctx, req.ID, png); err != nil {
		return nil, err
	}
	h.lastAckedID = req.ID
	return []events.Message{events.Event("screenshot", "uploaded", map[string]any{"id": req.ID})}, nil
}
