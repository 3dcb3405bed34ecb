package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, RIPPLE_CREDENTIAL_HMAC_KEY MUST be set (>= 32 bytes) and
	// credential fingerprinting must be HMAC-based.
	RequireCredentialHMAC bool

	// Session registry.
	SessionCap int

	// Presence tracker debounce window.
	PresenceDebounce time.Duration

	// Typing relay auto-expiry.
	TypingExpiry time.Duration

	// Delivery router knobs.
	DispatchTimeout   time.Duration
	DeliveryRetention time.Duration

	// Revocation policy.
	// RetentionCap bounds the revocation lifetime derived from credentials
	// without an expiry; FailOpen flips the guard from its fail-closed
	// default and must never be set in production.
	RevocationRetentionCap time.Duration
	RevocationFailOpen     bool

	// Background sweeper cadence (session expiry, revocation compaction,
	// receipt retention).
	SweepInterval time.Duration

	// Dev-only seeded conversations, "conv:alice,bob;other:bob,carol".
	// Ignored when a database is configured.
	DevConversations string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("RIPPLE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("RIPPLE_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("RIPPLE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("RIPPLE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("RIPPLE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("RIPPLE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("RIPPLE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("RIPPLE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("RIPPLE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("RIPPLE_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("RIPPLE_READINESS_REQUIRE_DB", false),

		RequireCredentialHMAC: EnvBool("RIPPLE_REQUIRE_CREDENTIAL_HMAC", false),

		SessionCap: EnvInt("RIPPLE_SESSION_CAP", 5),

		PresenceDebounce: EnvDuration("RIPPLE_PRESENCE_DEBOUNCE", 1500*time.Millisecond),

		TypingExpiry: EnvDuration("RIPPLE_TYPING_EXPIRY", 5*time.Second),

		DispatchTimeout:   EnvDuration("RIPPLE_DISPATCH_TIMEOUT", 5*time.Second),
		DeliveryRetention: EnvDuration("RIPPLE_DELIVERY_RETENTION", 24*time.Hour),

		RevocationRetentionCap: EnvDuration("RIPPLE_REVOCATION_RETENTION_CAP", 30*24*time.Hour),
		RevocationFailOpen:     EnvBool("RIPPLE_REVOCATION_FAIL_OPEN", false),

		SweepInterval: EnvDuration("RIPPLE_SWEEP_INTERVAL", time.Minute),

		DevConversations: EnvString("RIPPLE_DEV_CONVERSATIONS", ""),
	}
}
