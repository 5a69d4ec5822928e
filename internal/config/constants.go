package config

import "time"

// Application constants
const (
	AppName = "csvmail"

	// DefaultMaxUploadBytes bounds one multipart upload.
	DefaultMaxUploadBytes = 64 << 20

	// DefaultArtifactTTL is how long an unused artifact is kept.
	DefaultArtifactTTL = time.Hour

	// DefaultWaitTimeout bounds a synchronous validate request. The job keeps
	// running past it.
	DefaultWaitTimeout = 5 * time.Minute
)

// Version is set at build time with -ldflags "-X csvmail/internal/config.Version=...".
var Version = "dev"
