package config

import "path/filepath"

// Room media categories that hold exactly one file each. The directory names
// are a contract with the render process and must not change.
const (
	CategoryMusic       = "music-files"
	CategoryIdleScreen  = "idleScreen-media"
	CategoryBackground  = "gameBackground-media"
	CategoryIntro       = "intro-media"
	CategorySuccess     = "success-media"
	CategoryFail        = "fail-media"
	CategoryCustomAlert = "custom-clue-media"
)

// SingleFileCategories lists the room-media categories in a stable order.
var SingleFileCategories = []string{
	CategoryMusic,
	CategoryIdleScreen,
	CategoryBackground,
	CategoryIntro,
	CategorySuccess,
	CategoryFail,
	CategoryCustomAlert,
}

// RoomMediaDir is the parent of the single-file category directories.
func (p PathsConfig) RoomMediaDir() string {
	return filepath.Join(p.DataDir, "media-files", "room-media-files")
}

// CategoryDir returns the directory for one single-file category.
func (p PathsConfig) CategoryDir(category string) string {
	return filepath.Join(p.RoomMediaDir(), category)
}

// ClueMediaDir holds the many-file clue asset set.
func (p PathsConfig) ClueMediaDir() string {
	return filepath.Join(p.DataDir, "media-files", "clue-media-files")
}

// TTSCacheDir holds synthesized wav entries plus the voice tracker record.
func (p PathsConfig) TTSCacheDir() string {
	return filepath.Join(p.DataDir, "tts-cache")
}

// StorePath is the device-state database file.
func (p PathsConfig) StorePath() string {
	return filepath.Join(p.DataDir, "device-state.db")
}
