package core

// Version is the application version, set at build time via ldflags:
//
//	go build -ldflags "-X batchgen/core.Version=$(git describe --tags --always)" .
var Version = "dev"

// GitCommit is the short commit hash, set at build time via ldflags.
var GitCommit = "unknown"

// UserAgent is sent on every request to remote services.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// GetVersionInfo returns "version (commit hash)".
func GetVersionInfo() string {
	return Version + " (commit " + GitCommit + ")"
}
