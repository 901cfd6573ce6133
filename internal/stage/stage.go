// Package stage downloads release assets into the staging directory. A file
// already staged under the asset's name is reused without network access.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	gh "github.com/thrushlang/thrushdeps/internal/host/github"
	"github.com/thrushlang/thrushdeps/internal/model"
	"github.com/thrushlang/thrushdeps/internal/verify"
)

const (
	partSuffix   = ".part"
	maxErrorBody = 512
)

// Manager stages assets into Dir.
type Manager struct {
	HTTP *gh.Client
	Dir  string
	Log  logrus.FieldLogger
}

// Path returns where asset is (or would be) staged.
func (m *Manager) Path(asset model.Asset) string {
	return filepath.Join(m.Dir, asset.Name)
}

// Fetch returns the staged path of asset, downloading it only when no valid
// staged copy exists. A staged file whose size disagrees with asset.Size is a
// leftover partial download and is replaced.
func (m *Manager) Fetch(ctx context.Context, asset model.Asset) (string, error) {
	if err := checkName(asset.Name); err != nil {
		return "", err
	}
	dest := m.Path(asset)
	log := m.logger().WithFields(logrus.Fields{"asset": asset.Name, "path": dest})

	if info, err := os.Stat(dest); err == nil {
		if info.Mode().IsRegular() && (asset.Size <= 0 || info.Size() == asset.Size) {
			log.Debug("reusing staged asset")
			return dest, nil
		}
		log.WithFields(logrus.Fields{"have": info.Size(), "want": asset.Size}).Warn("discarding incomplete staged asset")
		if err := os.RemoveAll(dest); err != nil {
			return "", fmt.Errorf("%w: remove stale %s: %w", model.ErrDownload, dest, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: stat %s: %w", model.ErrDownload, dest, err)
	}

	if err := // #nosec G301 -- staging dir is user-owned
		os.MkdirAll(m.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %w", model.ErrDownload, m.Dir, err)
	}

	n, err := m.download(ctx, asset.BrowserDownloadURL, dest)
	if err != nil {
		return "", err
	}
	if asset.Size > 0 && n != asset.Size {
		os.Remove(dest)
		return "", fmt.Errorf("%w: %s: got %d bytes, index lists %d", model.ErrDownload, asset.Name, n, asset.Size)
	}
	log.WithField("size", verify.FormatSize(n)).Info("downloaded")
	return dest, nil
}

// download streams url into dest via a .part sibling so an interrupted
// transfer never carries the final name.
func (m *Manager) download(ctx context.Context, url, dest string) (int64, error) {
	resp, err := m.HTTP.Get(ctx, url, "application/octet-stream")
	if err != nil {
		return 0, fmt.Errorf("%w: fetch %s: %w", model.ErrDownload, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, fmt.Errorf("%w: status %d from %s: %s", model.ErrDownload, resp.StatusCode, url, strings.TrimSpace(string(body)))
	}

	part := dest + partSuffix
	// #nosec G304 -- part lives in the staging dir
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", model.ErrDownload, part, err)
	}
	n, err := io.Copy(f, resp.Body)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return 0, fmt.Errorf("%w: write %s: %w", model.ErrDownload, part, err)
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return 0, fmt.Errorf("%w: rename %s: %w", model.ErrDownload, part, err)
	}
	return n, nil
}

// Discard removes the staged copy of asset, if any.
func (m *Manager) Discard(asset model.Asset) error {
	if err := os.Remove(m.Path(asset)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (m *Manager) logger() logrus.FieldLogger {
	if m.Log == nil {
		return logrus.StandardLogger()
	}
	return m.Log
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: refusing asset name %q", model.ErrDownload, name)
	}
	return nil
}
