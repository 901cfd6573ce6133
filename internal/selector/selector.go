// Package selector picks the one release asset to install for a platform.
package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/thrushlang/thrushdeps/internal/model"
)

// Strategy breaks ties between several assets that match the platform.
type Strategy string

const (
	// DigitSum prefers the name whose digits add up to the largest total.
	// It is a coarse stand-in for "newest version" kept for parity with
	// existing installs; it is not a version ordering.
	DigitSum Strategy = "digitsum"
	// Semver parses the first version-looking run in each name and prefers
	// the highest.
	Semver Strategy = "semver"
)

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case DigitSum, "":
		return DigitSum, nil
	case Semver:
		return Semver, nil
	default:
		return "", fmt.Errorf("unknown selection strategy %q (supported: %s, %s)", s, DigitSum, Semver)
	}
}

// Select returns the asset of the release tagged tag whose name contains
// token (case-insensitive), breaking ties with strategy. It has no side
// effects and returns the same asset for the same input.
func Select(releases []model.Release, tag, token string, strategy Strategy) (model.Asset, error) {
	rel := findRelease(releases, tag)
	if rel == nil {
		return model.Asset{}, fmt.Errorf("%w: no release tagged %q among %d releases", model.ErrTagNotFound, tag, len(releases))
	}

	candidates := MatchPlatform(rel.Assets, token)
	if len(candidates) == 0 {
		return model.Asset{}, fmt.Errorf("%w: release %q has no asset containing %q", model.ErrNoAssetForPlatform, tag, token)
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	switch strategy {
	case Semver:
		return candidates[pickSemver(candidates)], nil
	default:
		return candidates[pickDigitSum(candidates)], nil
	}
}

func findRelease(releases []model.Release, tag string) *model.Release {
	for i := range releases {
		if releases[i].TagName == tag {
			return &releases[i]
		}
	}
	return nil
}

// MatchPlatform keeps the assets whose name contains token, ignoring case,
// in their original order.
func MatchPlatform(assets []model.Asset, token string) []model.Asset {
	needle := strings.ToLower(token)
	var out []model.Asset
	for _, a := range assets {
		if needle != "" && strings.Contains(strings.ToLower(a.Name), needle) {
			out = append(out, a)
		}
	}
	return out
}

// DigitSumOf adds up every decimal digit in name.
func DigitSumOf(name string) int {
	sum := 0
	for _, ch := range name {
		if ch >= '0' && ch <= '9' {
			sum += int(ch - '0')
		}
	}
	return sum
}

func pickDigitSum(candidates []model.Asset) int {
	best, bestSum := 0, DigitSumOf(candidates[0].Name)
	for i := 1; i < len(candidates); i++ {
		// strictly greater: first occurrence wins equal sums
		if s := DigitSumOf(candidates[i].Name); s > bestSum {
			best, bestSum = i, s
		}
	}
	return best
}

var versionRun = regexp.MustCompile(`v?\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.-]*[0-9A-Za-z])?`)

// VersionOf returns the first semantic version embedded in name, or nil.
// Archive suffixes are not mistaken for prerelease tags.
func VersionOf(name string) *semver.Version {
	for _, m := range versionRun.FindAllString(name, -1) {
		m = trimArchiveTail(m)
		if v, err := semver.NewVersion(m); err == nil {
			return v
		}
	}
	return nil
}

var archiveTails = []string{".tar.gz", ".tar.zst", ".tar.xz", ".tar.bz2", ".tgz", ".tar", ".zip"}

func trimArchiveTail(s string) string {
	lower := strings.ToLower(s)
	for _, ext := range archiveTails {
		if i := strings.Index(lower, ext); i > 0 {
			s, lower = s[:i], lower[:i]
		}
	}
	for _, tok := range []string{"-x86_64", "-x64", "-amd64", "-arm64", "-aarch64", "-linux", "-windows"} {
		if i := strings.Index(lower, tok); i > 0 {
			s, lower = s[:i], lower[:i]
		}
	}
	return s
}

func pickSemver(candidates []model.Asset) int {
	best := 0
	bestV := VersionOf(candidates[0].Name)
	for i := 1; i < len(candidates); i++ {
		v := VersionOf(candidates[i].Name)
		if v == nil {
			continue
		}
		if bestV == nil || v.GreaterThan(bestV) {
			best, bestV = i, v
		}
	}
	return best
}
