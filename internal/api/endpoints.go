package api

// Per-device polling endpoints on the game-control API. Paths are relative
// to the configured base URL.
const (
	pathDeviceRequest    = "/api/device/request"
	pathDeviceRequestAck = "/api/device/request/ack"
	pathGameDetails      = "/api/game/details"
	pathGameClue         = "/api/game/clue"
	pathTimerRequest     = "/api/game/timer-request"
	pathTimerRequestAck  = "/api/game/timer-request/ack"
	pathPowerRequest     = "/api/device/shutdown-restart-request"
	pathPowerRequestAck  = "/api/device/shutdown-restart-request/ack"
	pathHeartbeat        = "/api/device/heartbeat"
	pathScreenshotReq    = "/api/device/screenshot-request"
	pathScreenshotUpload = "/api/device/screenshot"
	pathRoomConfig       = "/api/room/config"
	pathMediaManifest    = "/api/room/media"
)
