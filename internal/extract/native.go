package extract

import (
	"archive/tar"
	"bufio"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"github.com/thrushlang/thrushdeps/internal/model"
)

// Native extracts archives in-process.
type Native struct {
	Log logrus.FieldLogger
}

func (n Native) Extract(ctx context.Context, archive, dest string, strip int) (model.StepResult, error) {
	if strip < 0 {
		return failed(fmt.Errorf("%w: negative strip count %d", model.ErrExtraction, strip))
	}
	format, err := DetectFormat(archive)
	if err != nil {
		return failed(err)
	}
	if err := // #nosec G301 -- dest is an install temp dir
		os.MkdirAll(dest, 0o755); err != nil {
		return failed(fmt.Errorf("%w: mkdir %s: %w", model.ErrExtraction, dest, err))
	}

	w := &writer{ctx: ctx, dest: filepath.Clean(dest), strip: strip}
	if format == FormatZip {
		err = w.zip(archive)
	} else {
		err = w.tarFile(archive, format)
	}
	if err == nil {
		err = w.checkLinks()
	}
	if err != nil {
		return failed(fmt.Errorf("%w: %s: %w", model.ErrExtraction, filepath.Base(archive), err))
	}
	n.logger().WithFields(logrus.Fields{"format": format, "entries": w.entries, "dest": dest}).Debug("archive extracted")
	return model.StepResult{Step: model.StepExtract}, nil
}

func (n Native) logger() logrus.FieldLogger {
	if n.Log == nil {
		return logrus.StandardLogger()
	}
	return n.Log
}

type writer struct {
	ctx     context.Context
	dest    string
	strip   int
	entries int
}

func (w *writer) tarFile(archive string, format Format) error {
	// #nosec G304 -- archive is a staged file
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	switch format {
	case FormatTar:
	case FormatTarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	case FormatTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	case FormatTarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return err
		}
		r = xr
	case FormatTarBz2:
		r = bzip2.NewReader(r)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	return w.tar(r)
}

func (w *writer) tar(r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		rel, ok, err := w.target(hdr.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		target := filepath.Join(w.dest, filepath.FromSlash(rel))
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = w.dir(target)
		case tar.TypeReg, tar.TypeRegA:
			err = w.file(target, tr, os.FileMode(hdr.Mode).Perm())
		case tar.TypeSymlink:
			err = w.symlink(target, hdr.Linkname)
		case tar.TypeLink:
			err = w.hardlink(target, hdr.Linkname)
		case tar.TypeXGlobalHeader:
			continue
		default:
			return fmt.Errorf("unsupported tar entry %q (type %c)", hdr.Name, hdr.Typeflag)
		}
		if err != nil {
			return err
		}
		w.entries++
	}
}

func (w *writer) zip(archive string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		rel, ok, err := w.target(zf.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		target := filepath.Join(w.dest, filepath.FromSlash(rel))
		mode := zf.Mode()
		switch {
		case mode.IsDir() || strings.HasSuffix(zf.Name, "/"):
			err = w.dir(target)
		case mode&os.ModeSymlink != 0:
			err = w.zipSymlink(zf, target)
		default:
			err = w.zipFile(zf, target, mode.Perm())
		}
		if err != nil {
			return err
		}
		w.entries++
	}
	return nil
}

func (w *writer) zipFile(zf *zip.File, target string, perm os.FileMode) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return w.file(target, rc, perm)
}

func (w *writer) zipSymlink(zf *zip.File, target string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	link, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return err
	}
	return w.symlink(target, string(link))
}

// target validates an archive entry name and applies the strip count. ok is
// false for entries consumed entirely by stripping.
func (w *writer) target(name string) (string, bool, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", false, fmt.Errorf("invalid archive entry %q", name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false, fmt.Errorf("invalid archive entry %q", name)
	}
	if clean == "." {
		return "", false, nil
	}
	parts := strings.Split(clean, "/")
	if len(parts) <= w.strip {
		return "", false, nil
	}
	rel := path.Join(parts[w.strip:]...)
	if !isSubpath(w.dest, filepath.Join(w.dest, filepath.FromSlash(rel))) {
		return "", false, fmt.Errorf("invalid archive entry %q", name)
	}
	return rel, true, nil
}

func (w *writer) dir(target string) error {
	if err := w.checkParents(target); err != nil {
		return err
	}
	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%s: symlink in the way of a directory", target)
	}
	return mkdir(target)
}

// prepare makes the parent of target and clears whatever an earlier entry left
// at target. Parents must be real directories under dest.
func (w *writer) prepare(target string) error {
	if err := w.checkParents(target); err != nil {
		return err
	}
	if err := mkdir(filepath.Dir(target)); err != nil {
		return err
	}
	return clearNonDir(target)
}

func (w *writer) file(target string, r io.Reader, perm os.FileMode) error {
	if err := w.prepare(target); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	// #nosec G304 -- target checked by isSubpath and checkParents
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, contextReader{w.ctx, r}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (w *writer) symlink(target, link string) error {
	if link == "" || path.IsAbs(filepath.ToSlash(link)) || filepath.VolumeName(link) != "" {
		return fmt.Errorf("symlink %s -> %q leaves the destination", target, link)
	}
	if err := w.prepare(target); err != nil {
		return err
	}
	if err := w.checkLink(target, link); err != nil {
		return err
	}
	return os.Symlink(link, target)
}

func (w *writer) hardlink(target, linkname string) error {
	rel, ok, err := w.target(linkname)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("hard link %s -> %q is stripped away", target, linkname)
	}
	source := filepath.Join(w.dest, filepath.FromSlash(rel))
	if err := w.checkParents(source); err != nil {
		return err
	}
	if err := w.prepare(target); err != nil {
		return err
	}
	return os.Link(source, target)
}

// checkParents fails when a directory between dest and target is a symlink.
// Entries are then never written through a link, whatever it points to.
func (w *writer) checkParents(target string) error {
	rel, err := filepath.Rel(w.dest, filepath.Dir(target))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	cur := w.dest
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%s: parent %s is a symlink", target, cur)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: parent %s is not a directory", target, cur)
		}
	}
	return nil
}

// checkLink resolves link as seen from the directory of target, following
// links already on disk, and fails when it lands outside dest.
func (w *writer) checkLink(target, link string) error {
	resolved, err := resolveLink(filepath.Dir(target), link, 0)
	if err != nil {
		return fmt.Errorf("symlink %s -> %q: %w", target, link, err)
	}
	if !isSubpath(w.dest, resolved) {
		return fmt.Errorf("symlink %s -> %q leaves the destination", target, link)
	}
	return nil
}

// checkLinks re-resolves every symlink once the whole tree is on disk. A link
// made before the links it goes through can only be judged here.
func (w *writer) checkLinks() error {
	return filepath.WalkDir(w.dest, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink == 0 {
			return nil
		}
		link, err := os.Readlink(p)
		if err != nil {
			return err
		}
		return w.checkLink(p, link)
	})
}

const maxLinkDepth = 40

// resolveLink walks link from dir one component at a time. Components that
// are symlinks are followed; components that do not exist are joined
// lexically.
func resolveLink(dir, link string, depth int) (string, error) {
	if depth > maxLinkDepth {
		return "", errors.New("too many levels of symbolic links")
	}
	link = filepath.ToSlash(link)
	if path.IsAbs(link) || filepath.VolumeName(link) != "" {
		return filepath.Clean(link), nil
	}
	cur := dir
	parts := strings.Split(link, "/")
	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}
		next := filepath.Join(cur, part)
		info, err := os.Lstat(next)
		if errors.Is(err, os.ErrNotExist) {
			return filepath.Join(append([]string{next}, parts[i+1:]...)...), nil
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			cur = next
			continue
		}
		inner, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if cur, err = resolveLink(cur, inner, depth+1); err != nil {
			return "", err
		}
	}
	return cur, nil
}

func mkdir(dir string) error {
	// #nosec G301 -- extracted trees are world-readable like the archive
	return os.MkdirAll(dir, 0o755)
}

// clearNonDir removes a file or symlink left at target by an earlier entry so
// the new entry never writes through a link.
func clearNonDir(target string) error {
	info, err := os.Lstat(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: directory in the way", target)
	}
	return os.Remove(target)
}

func isSubpath(root, target string) bool {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
