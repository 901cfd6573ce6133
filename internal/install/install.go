// Package install places an extracted archive into the final install
// directory.
//
// Extraction always happens in a temporary sibling of the final directory.
// Only a fully extracted tree is promoted, so a failed run leaves the final
// directory exactly as it was.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thrushlang/thrushdeps/internal/extract"
	"github.com/thrushlang/thrushdeps/internal/model"
)

// Installer extracts staged archives and promotes the result.
type Installer struct {
	Extractor extract.ArchiveExtractor
	Sync      FileSync
	Log       logrus.FieldLogger
}

// Install extracts staged into finalDir, stripping strip leading path
// components from every entry. The returned results cover the extract step
// and, when extraction succeeded, the sync step.
func (in *Installer) Install(ctx context.Context, staged, finalDir string, strip int) ([]model.StepResult, error) {
	log := in.logger().WithFields(logrus.Fields{"archive": filepath.Base(staged), "dest": finalDir})

	parent := filepath.Dir(filepath.Clean(finalDir))
	if err := // #nosec G301 -- install root is user-owned
		os.MkdirAll(parent, 0o755); err != nil {
		res := model.StepResult{Step: model.StepExtract, ExitCode: 1}
		return []model.StepResult{res}, fmt.Errorf("%w: mkdir %s: %w", model.ErrExtraction, parent, err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(finalDir)+".tmp-")
	if err != nil {
		res := model.StepResult{Step: model.StepExtract, ExitCode: 1}
		return []model.StepResult{res}, fmt.Errorf("%w: create temp dir: %w", model.ErrExtraction, err)
	}
	defer os.RemoveAll(tmp)

	log.WithField("strip", strip).Debug("extracting")
	res, err := in.extractor().Extract(ctx, staged, tmp, strip)
	res.Step = model.StepExtract
	if err == nil && res.ExitCode != 0 {
		err = fmt.Errorf("%w: extractor exited with status %d", model.ErrExtraction, res.ExitCode)
	}
	if err != nil {
		if res.ExitCode == 0 {
			res.ExitCode = 1
		}
		return []model.StepResult{res}, err
	}
	results := []model.StepResult{res}

	if err := // #nosec G301 -- finalDir is user-owned
		os.MkdirAll(finalDir, 0o755); err != nil {
		results = append(results, model.StepResult{Step: model.StepSync, ExitCode: 1})
		return results, fmt.Errorf("%w: mkdir %s: %w", model.ErrExtraction, finalDir, err)
	}
	if err := in.sync().Promote(tmp, finalDir); err != nil {
		results = append(results, model.StepResult{Step: model.StepSync, ExitCode: 1})
		return results, fmt.Errorf("%w: promote into %s: %w", model.ErrExtraction, finalDir, err)
	}
	results = append(results, model.StepResult{Step: model.StepSync})
	log.Info("installed")
	return results, nil
}

// NewReceipt describes asset as installed at now.
func NewReceipt(tag string, asset model.Asset, key model.PlatformKey, digest string, now time.Time) model.Receipt {
	return model.Receipt{
		Tag:         tag,
		Asset:       asset.Name,
		URL:         asset.BrowserDownloadURL,
		Platform:    key,
		SHA256:      digest,
		InstalledAt: now.UTC(),
	}
}

func (in *Installer) extractor() extract.ArchiveExtractor {
	if in.Extractor == nil {
		return extract.Native{Log: in.Log}
	}
	return in.Extractor
}

func (in *Installer) sync() FileSync {
	if in.Sync == nil {
		return RenameSync{}
	}
	return in.Sync
}

func (in *Installer) logger() logrus.FieldLogger {
	if in.Log == nil {
		return logrus.StandardLogger()
	}
	return in.Log
}
