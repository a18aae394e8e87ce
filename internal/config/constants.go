package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. ServerWriteTimeout must outlast ServerRequestTimeout
// so the timeout middleware's 504 can still be written.
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 75 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Request body cap for the JSON API
const MaxRequestBodyBytes = 1 << 20

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Activation code shape and generation
const (
	ActivationCodeLength      = 6
	ActivationCodeMaxAttempts = 5
)

// Unauthenticated activation endpoints, requests per IP per minute
const ActivationRateLimitPerMin = 30

// Control-device login session lifetime
const SessionTTL = 7 * 24 * time.Hour
