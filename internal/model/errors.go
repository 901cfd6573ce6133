package model

import "errors"

// Error kinds. Every failure a run can produce wraps exactly one of these, so
// callers classify with errors.Is.
var (
	ErrUnsupportedPlatform  = errors.New("unsupported platform")
	ErrMissingEnv           = errors.New("missing environment variable")
	ErrDirectory            = errors.New("cannot create install directory")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrNoConnectivity       = errors.New("no internet connectivity")
	ErrNetwork              = errors.New("network error")
	ErrParse                = errors.New("malformed release index")
	ErrTagNotFound          = errors.New("release tag not found")
	ErrNoAssetForPlatform   = errors.New("no asset for platform")
	ErrDownload             = errors.New("download failed")
	ErrChecksum             = errors.New("checksum mismatch")
	ErrExtraction           = errors.New("extraction failed")
	ErrInstallStepAggregate = errors.New("installation step failed")
)

var classes = []struct {
	err  error
	name string
}{
	{ErrUnsupportedPlatform, "UnsupportedPlatformError"},
	{ErrMissingEnv, "MissingEnvironmentError"},
	{ErrDirectory, "DirectoryError"},
	{ErrInvalidConfig, "InvalidConfigError"},
	{ErrNoConnectivity, "NoConnectivityError"},
	{ErrNetwork, "NetworkError"},
	{ErrParse, "ParseError"},
	{ErrTagNotFound, "TagNotFoundError"},
	{ErrNoAssetForPlatform, "NoAssetForPlatformError"},
	{ErrDownload, "DownloadError"},
	{ErrChecksum, "ChecksumError"},
	{ErrExtraction, "ExtractionError"},
	{ErrInstallStepAggregate, "InstallStepAggregateError"},
}

// Class returns the failure class name for err, or "Error" when err wraps none
// of the known kinds.
func Class(err error) string {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.name
		}
	}
	return "Error"
}
