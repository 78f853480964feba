// internal/app/system/limits/limits.go
package limits

// Size limits for realtime input.
// These keep a single client from flooding a group or the store.
const (
	// MaxFrameBytes is the default largest inbound websocket frame.
	MaxFrameBytes = 16 << 10 // 16 KB

	// MaxMessageRunes is the longest chat text accepted after sanitizing.
	MaxMessageRunes = 2000
)
