package verify

import (
	"fmt"
	"strings"

	"github.com/thrushlang/thrushdeps/internal/model"
)

// ChecksumCandidates lists checksum file names probed in a release, most
// specific first. {{asset}} expands to the selected asset's name.
var ChecksumCandidates = []string{
	"{{asset}}.sha256",
	"{{asset}}.sha256.txt",
	"{{asset}}.sha512",
	"SHA256SUMS",
	"SHA256SUMS.txt",
	"SHA2-256SUMS",
	"SHA512SUMS",
	"SHA2-512SUMS",
	"checksums.txt",
}

// FindChecksumAsset returns the first checksum asset in assets that covers
// assetName, or nil.
func FindChecksumAsset(assets []model.Asset, assetName string) *model.Asset {
	for _, tpl := range ChecksumCandidates {
		name := strings.ReplaceAll(tpl, "{{asset}}", assetName)
		for i := range assets {
			if assets[i].Name == name {
				return &assets[i]
			}
		}
	}
	return nil
}

// DetectChecksumAlgorithm infers the digest algorithm from a checksum file name.
func DetectChecksumAlgorithm(filename, defaultAlgo string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.Contains(lower, "sha2-512sums"),
		strings.Contains(lower, "sha512sums"),
		strings.HasSuffix(lower, ".sha512"),
		strings.HasSuffix(lower, ".sha512.txt"):
		return "sha512"
	case strings.Contains(lower, "sha2-256sums"),
		strings.Contains(lower, "sha256sums"),
		strings.HasSuffix(lower, ".sha256"),
		strings.HasSuffix(lower, ".sha256.txt"):
		return "sha256"
	default:
		return defaultAlgo
	}
}

// FormatSize formats bytes as human-readable size.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
