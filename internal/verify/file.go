package verify

import (
	"fmt"
	"os"

	"github.com/thrushlang/thrushdeps/internal/model"
)

// File checks the staged archive at assetPath against the checksum file at
// checksumPath and returns the archive's digest. A mismatch is ErrChecksum.
func File(assetPath, assetName, checksumPath, checksumName string) (string, error) {
	algo := DetectChecksumAlgorithm(checksumName, "sha256")

	// #nosec G304 -- checksumPath is staged by us
	data, err := os.ReadFile(checksumPath)
	if err != nil {
		return "", fmt.Errorf("%w: read checksum: %w", model.ErrChecksum, err)
	}
	expected, err := ExtractChecksum(data, algo, assetName)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrChecksum, err)
	}
	actual, err := HashFile(assetPath, algo)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrChecksum, err)
	}
	if actual != expected {
		return "", fmt.Errorf("%w: %s: expected %s %s, got %s", model.ErrChecksum, assetName, algo, expected, actual)
	}
	return actual, nil
}
