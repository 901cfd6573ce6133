package install

import (
	"fmt"

	"github.com/thrushlang/thrushdeps/internal/model"
	"github.com/thrushlang/thrushdeps/internal/selector"
)

type Decision string

const (
	DecisionInstall   Decision = "install"   // Nothing installed yet
	DecisionSkip      Decision = "skip"      // Same asset already installed
	DecisionReinstall Decision = "reinstall" // Same asset, --force given
	DecisionReplace   Decision = "replace"   // A different asset is installed
)

// Decide compares the receipt of the current install (nil when there is
// none) with the asset about to be installed.
//
// Returns the Decision and a human message.
func Decide(prev *model.Receipt, next model.Asset, force bool) (Decision, string) {
	if prev == nil {
		return DecisionInstall, fmt.Sprintf("Installing %s", next.Name)
	}
	if prev.Asset == next.Name {
		if force {
			return DecisionReinstall, fmt.Sprintf("Reinstalling %s...", next.Name)
		}
		return DecisionSkip, fmt.Sprintf("Already installed (%s). Use --force to reinstall.", next.Name)
	}

	pv, nv := selector.VersionOf(prev.Asset), selector.VersionOf(next.Name)
	if pv == nil || nv == nil {
		return DecisionReplace, fmt.Sprintf("Replacing %s with %s", prev.Asset, next.Name)
	}
	switch nv.Compare(pv) {
	case 1:
		return DecisionReplace, fmt.Sprintf("Upgrading LLVM-C API: %s → %s", FormatVersionDisplay(pv.String()), FormatVersionDisplay(nv.String()))
	case -1:
		return DecisionReplace, fmt.Sprintf("Downgrading LLVM-C API: %s → %s", FormatVersionDisplay(pv.String()), FormatVersionDisplay(nv.String()))
	default:
		return DecisionReplace, fmt.Sprintf("Replacing %s with %s (same version %s)", prev.Asset, next.Name, FormatVersionDisplay(nv.String()))
	}
}

// FormatVersionDisplay adds a "v" prefix when missing.
func FormatVersionDisplay(v string) string {
	if v == "" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// DescribeDecision returns a short status line for logs.
func DescribeDecision(d Decision) string {
	switch d {
	case DecisionInstall:
		return "Not installed"
	case DecisionSkip:
		return "Already installed (nothing to do)"
	case DecisionReinstall:
		return "Force reinstall requested"
	case DecisionReplace:
		return "Different build installed"
	default:
		return string(d)
	}
}
