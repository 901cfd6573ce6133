package model

import "time"

// Release is the subset of a GitHub release payload that thrushdeps uses.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset is the subset of a GitHub release asset payload that thrushdeps uses.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// PlatformKey identifies one of the supported target platforms.
type PlatformKey string

const (
	PlatformLinux   PlatformKey = "linux"
	PlatformWindows PlatformKey = "windows"
)

// Platforms lists every supported platform in display order.
var Platforms = []PlatformKey{PlatformLinux, PlatformWindows}

// InstallPaths holds the directories a run writes to. StagingDir is
// ephemeral; FinalDir accumulates the installed payload.
type InstallPaths struct {
	StagingDir string
	FinalDir   string
}

// Step names recorded by the outcome reporter.
const (
	StepDownload = "download"
	StepVerify   = "verify"
	StepExtract  = "extract"
	StepSync     = "sync"
)

// StepResult is the exit status of one external operation.
type StepResult struct {
	Step     string
	ExitCode int
}

// Receipt records what was installed into FinalDir.
type Receipt struct {
	Tag         string      `json:"tag,omitempty"`
	Asset       string      `json:"asset"`
	URL         string      `json:"url"`
	Platform    PlatformKey `json:"platform"`
	SHA256      string      `json:"sha256,omitempty"`
	InstalledAt time.Time   `json:"installedAt"`
}
