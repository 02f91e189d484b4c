package api

// PendingRequest is a queued control-panel request awaiting this device.
type PendingRequest struct {
	ID     string         `json:"id"`
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// GameDetails is the current game state for the room this device serves.
type GameDetails struct {
	Status          string `json:"status"`
	GameID          string `json:"gameId,omitempty"`
	RemainingSecond int    `json:"remainingSecond,omitempty"`
	TeamName        string `json:"teamName,omitempty"`
}

// Clue is a pushed hint. Exactly one of Text/MediaURL may be empty.
type Clue struct {
	ID       string `json:"id"`
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
	Speak    bool   `json:"speak,omitempty"`
}

// TimerRequest asks the device to adjust the countdown.
type TimerRequest struct {
	ID            string `json:"id"`
	Action        string `json:"action"` // pause | resume | adjust
	AdjustSeconds int    `json:"adjustSeconds,omitempty"`
}

// PowerRequest asks the device to restart or shut down.
type PowerRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"` // restart | shutdown
}

// ScreenshotRequest asks the device for a capture of its current display.
type ScreenshotRequest struct {
	ID string `json:"id"`
}

// RoomConfig is the per-room configuration pushed from the control panel.
type RoomConfig struct {
	RoomID     string `json:"roomId"`
	RoomName   string `json:"roomName,omitempty"`
	DurationMn int    `json:"durationMinutes,omitempty"`
	Version    int    `json:"version"`
}

// Heartbeat is the periodic device status post.
type Heartbeat struct {
	GameStatus string `json:"gameStatus,omitempty"`
	UptimeSec  int64  `json:"uptimeSec"`
}
