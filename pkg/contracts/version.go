// Package contracts holds the wire contracts shared by the csvmail server
// and its clients.
package contracts

import (
	"fmt"
	"runtime"
)

const (
	// APIVersion is the version of the HTTP and WebSocket contracts
	APIVersion = "v1"

	// ReportFormatVersion is bumped when validation report columns change
	ReportFormatVersion = "1"
)

var (
	// BuildTime is set during build using ldflags
	BuildTime = "unknown"

	// GitCommit is set during build using ldflags
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version       string `json:"version"`
	BuildTime     string `json:"build_time"`
	GitCommit     string `json:"git_commit"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Architecture  string `json:"architecture"`
	APIVersion    string `json:"api_version"`
	ReportVersion string `json:"report_version"`
}

// GetVersionInfo returns version information for the given release.
func GetVersionInfo(version string) VersionInfo {
	return VersionInfo{
		Version:       version,
		BuildTime:     BuildTime,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		APIVersion:    APIVersion,
		ReportVersion: ReportFormatVersion,
	}
}

// GetFullVersionString returns a detailed version string
func GetFullVersionString(name, version string) string {
	info := GetVersionInfo(version)
	return fmt.Sprintf(
		"%s %s (built: %s, commit: %s, go: %s, os: %s/%s)",
		name,
		info.Version,
		info.BuildTime,
		info.GitCommit,
		info.GoVersion,
		info.OS,
		info.Architecture,
	)
}
