package prefs

import "context"

// Mode selects how much work a job does per segment.
type Mode string

const (
	// ModeFast produces the English translation only.
	ModeFast Mode = "fast"
	// ModeFull produces the original-language transcription and the
	// English translation.
	ModeFull Mode = "full"
)

// Preferences are the per-owner processing settings.
type Preferences struct {
	Language   string `json:"language"`
	Mode       Mode   `json:"mode"`
	ShowStats  bool   `json:"show_stats"`
	Timestamps bool   `json:"timestamps"`
	UILanguage string `json:"ui_language"`
}

// Defaults keep the first-audio flow unblocked: Spanish source hint and
// UI, full mode, stats on.
func Defaults() Preferences {
	return Preferences{
		Language:   "es",
		Mode:       ModeFull,
		ShowStats:  true,
		Timestamps: false,
		UILanguage: "es",
	}
}

// Store persists per-owner preferences. Get returns defaults for an
// unknown owner; Put overwrites the whole record.
type Store interface {
	Get(ctx context.Context, ownerID int64) (Preferences, error)
	Put(ctx context.Context, ownerID int64, p Preferences) error
	Close() error
}
