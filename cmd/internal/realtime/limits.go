package realtime

import "time"

// Security/performance limits for the websocket surface.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max bytes for a message_send body payload.
	maxBodyBytes = 16 << 10 // 16 KiB
)

const (
	// Heartbeat defaults (can be overridden by env in gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second

	// The first envelope on a connection must be a hello within this window.
	helloDeadline = 10 * time.Second
)
