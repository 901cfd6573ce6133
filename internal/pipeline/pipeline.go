// Package pipeline runs one provisioning pass: resolve the asset, stage it,
// verify it, install it and report. Steps run strictly in order and the
// first failure ends the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thrushlang/thrushdeps/internal/config"
	"github.com/thrushlang/thrushdeps/internal/extract"
	gh "github.com/thrushlang/thrushdeps/internal/host/github"
	"github.com/thrushlang/thrushdeps/internal/hostenv"
	"github.com/thrushlang/thrushdeps/internal/index"
	"github.com/thrushlang/thrushdeps/internal/install"
	"github.com/thrushlang/thrushdeps/internal/model"
	"github.com/thrushlang/thrushdeps/internal/platform"
	"github.com/thrushlang/thrushdeps/internal/report"
	"github.com/thrushlang/thrushdeps/internal/selector"
	"github.com/thrushlang/thrushdeps/internal/stage"
	"github.com/thrushlang/thrushdeps/internal/verify"
)

// Retention decides what happens to the staging directory after a
// successful install.
type Retention int

const (
	// RetainAsk asks through Runner.Confirm; only an explicit "no" discards.
	RetainAsk Retention = iota
	RetainKeep
	RetainDiscard
)

// RetainQuestion is asked when Retention is RetainAsk.
const RetainQuestion = "Do you want to save the precompiled LLVM-C API? (yes/no)"

// Runner holds everything one run needs. Config, Platform and Paths are
// resolved by the caller and never modified here.
type Runner struct {
	Config   config.Config
	Platform model.PlatformKey
	Paths    model.InstallPaths

	HTTP      *gh.Client
	Prober    *index.Prober // nil skips the connectivity probe
	Extractor extract.ArchiveExtractor
	Reporter  *report.Reporter
	Log       logrus.FieldLogger
	Out       io.Writer

	Force     bool
	Retention Retention
	// Confirm asks question and returns the answer. nil keeps the archive.
	Confirm func(question string) (string, error)

	Now func() time.Time
}

// Run executes the pipeline. Step results are recorded on Reporter; the
// returned error wraps the model kind of the first failure.
func (r *Runner) Run(ctx context.Context) error {
	if r.Reporter == nil {
		r.Reporter = &report.Reporter{}
	}
	log := r.logger().WithField("platform", r.Platform)
	plat, ok := r.Config.Platform(r.Platform)
	if !ok {
		return fmt.Errorf("%w: no configuration for %s", model.ErrUnsupportedPlatform, r.Platform)
	}

	if host, ok := platform.Host(); !ok || host != r.Platform {
		log.WithField("host", hostName(host, ok)).Warn("target platform differs from the running OS")
	}
	for _, w := range hostenv.Warnings(r.Paths.FinalDir) {
		log.Warn(w)
	}

	if err := platform.EnsureDirs(r.Paths); err != nil {
		return err
	}

	asset, release, err := r.resolve(ctx)
	if err != nil {
		return err
	}
	log = log.WithField("asset", asset.Name)
	fmt.Fprintf(r.out(), "Asset: %s\n", asset.Name)

	prev, err := install.ReadReceipt(r.Paths.FinalDir)
	if err != nil {
		log.WithError(err).Warn("ignoring unreadable install receipt")
	}
	decision, msg := install.Decide(prev, asset, r.Force)
	log.WithField("decision", decision).Debug(install.DescribeDecision(decision))
	fmt.Fprintln(r.out(), msg)
	if decision == install.DecisionSkip {
		return nil
	}

	mgr := &stage.Manager{HTTP: r.HTTP, Dir: r.Paths.StagingDir, Log: r.Log}
	staged, err := mgr.Fetch(ctx, asset)
	if err != nil {
		r.Reporter.Record(model.StepDownload, 1)
		return err
	}
	r.Reporter.Record(model.StepDownload, 0)

	digest, err := r.verify(ctx, mgr, asset, release)
	if err != nil {
		r.Reporter.Record(model.StepVerify, 1)
		if derr := mgr.Discard(asset); derr != nil {
			log.WithError(derr).Warn("could not remove rejected archive")
		}
		return err
	}

	in := &install.Installer{Extractor: r.Extractor, Log: r.Log}
	results, err := in.Install(ctx, staged, r.Paths.FinalDir, plat.StripComponents)
	r.Reporter.RecordAll(results)
	if err != nil {
		return err
	}

	receipt := install.NewReceipt(r.Config.Index.Tag, asset, r.Platform, digest, r.now())
	if r.Config.FixedURL() {
		receipt.Tag = ""
	}
	if err := install.WriteReceipt(r.Paths.FinalDir, receipt); err != nil {
		log.WithError(err).Warn("could not write install receipt")
	}

	r.retain(log)
	return nil
}

// resolve picks the asset to install. In fixed-URL mode the index is never
// consulted and release is nil.
func (r *Runner) resolve(ctx context.Context) (model.Asset, *model.Release, error) {
	if r.Config.FixedURL() {
		asset, err := fixedAsset(r.Config.Index.AssetURL)
		return asset, nil, err
	}

	client := &index.Client{HTTP: r.HTTP, Prober: r.Prober, Log: r.Log}
	releases, err := client.Fetch(ctx, r.Config.Index.URL)
	if err != nil {
		return model.Asset{}, nil, err
	}
	strategy, err := selector.ParseStrategy(r.Config.Selection.Strategy)
	if err != nil {
		return model.Asset{}, nil, fmt.Errorf("%w: %w", model.ErrInvalidConfig, err)
	}
	plat, _ := r.Config.Platform(r.Platform)
	asset, err := selector.Select(releases, r.Config.Index.Tag, plat.AssetToken, strategy)
	if err != nil {
		return model.Asset{}, nil, err
	}
	for i := range releases {
		if releases[i].TagName == r.Config.Index.Tag {
			return asset, &releases[i], nil
		}
	}
	return asset, nil, nil
}

func fixedAsset(raw string) (model.Asset, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return model.Asset{}, fmt.Errorf("%w: asset url: %w", model.ErrInvalidConfig, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return model.Asset{}, fmt.Errorf("%w: asset url %q has no file name", model.ErrInvalidConfig, raw)
	}
	return model.Asset{Name: name, BrowserDownloadURL: u.String()}, nil
}

// verify checks the staged archive against a checksum file published in the
// same release. It returns the archive digest, or "" when nothing was
// checked.
func (r *Runner) verify(ctx context.Context, mgr *stage.Manager, asset model.Asset, release *model.Release) (string, error) {
	if !r.Config.VerifyChecksums || release == nil {
		return "", nil
	}
	log := r.logger().WithField("asset", asset.Name)
	sums := verify.FindChecksumAsset(release.Assets, asset.Name)
	if sums == nil {
		log.Info("no checksum published for asset; skipping verification")
		return "", nil
	}
	// A checksum file is tiny and may change between runs, so it is always
	// fetched fresh.
	if err := mgr.Discard(*sums); err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrChecksum, err)
	}
	sumsPath, err := mgr.Fetch(ctx, *sums)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrChecksum, err)
	}
	digest, err := verify.File(mgr.Path(asset), asset.Name, sumsPath, sums.Name)
	if err != nil {
		return "", err
	}
	r.Reporter.Record(model.StepVerify, 0)
	fmt.Fprintf(r.out(), "Checksum verified OK (%s)\n", sums.Name)
	if verify.DetectChecksumAlgorithm(sums.Name, "sha256") != "sha256" {
		digest, err = verify.HashFile(mgr.Path(asset), "sha256")
		if err != nil {
			return "", fmt.Errorf("%w: %w", model.ErrChecksum, err)
		}
	}
	return digest, nil
}

func (r *Runner) retain(log logrus.FieldLogger) {
	keep := true
	switch r.Retention {
	case RetainKeep:
	case RetainDiscard:
		keep = false
	default:
		if r.Confirm != nil {
			answer, err := r.Confirm(RetainQuestion)
			if err != nil && !errors.Is(err, io.EOF) {
				log.WithError(err).Warn("could not read answer; keeping archive")
			}
			keep = strings.ToLower(strings.TrimSpace(answer)) != "no"
		}
	}
	if keep {
		log.WithField("dir", r.Paths.StagingDir).Debug("keeping staging directory")
		return
	}
	if err := os.RemoveAll(r.Paths.StagingDir); err != nil {
		log.WithError(err).Warn("could not remove staging directory")
	}
}

func hostName(key model.PlatformKey, ok bool) string {
	if !ok {
		return "unsupported"
	}
	return string(key)
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}
