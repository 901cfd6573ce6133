package install

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSync moves the contents of an extracted tree into the install
// directory.
type FileSync interface {
	// Promote makes every top-level entry of src replace the entry of the
	// same name in dst. Entries of dst absent from src are left alone.
	Promote(src, dst string) error
}

// RenameSync promotes by rename and falls back to a recursive copy when
// rename fails, for example across filesystems. Entries being replaced are
// moved aside first and put back if any entry fails to land.
type RenameSync struct {
	rename func(oldpath, newpath string) error
	copy   func(src, dst string) error
}

type promoted struct {
	to     string
	backup string
}

func (s RenameSync) Promote(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	var done []promoted
	for _, e := range entries {
		p := promoted{to: filepath.Join(dst, e.Name())}
		if err := s.place(filepath.Join(src, e.Name()), &p); err != nil {
			s.rollback(done)
			return err
		}
		done = append(done, p)
	}
	for _, p := range done {
		if p.backup != "" {
			os.RemoveAll(p.backup)
		}
	}
	return nil
}

func (s RenameSync) place(from string, p *promoted) error {
	if _, err := os.Lstat(p.to); err == nil {
		backup := filepath.Join(filepath.Dir(p.to), "."+filepath.Base(p.to)+".old")
		if err := os.RemoveAll(backup); err != nil {
			return fmt.Errorf("remove %s: %w", backup, err)
		}
		if err := s.doRename(p.to, backup); err != nil {
			return fmt.Errorf("move aside %s: %w", p.to, err)
		}
		p.backup = backup
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := s.doRename(from, p.to); err == nil {
		return nil
	}
	if err := s.doCopy(from, p.to); err != nil {
		os.RemoveAll(p.to)
		if p.backup != "" {
			os.Rename(p.backup, p.to)
		}
		return fmt.Errorf("copy %s: %w", filepath.Base(p.to), err)
	}
	return nil
}

// rollback puts the previous entries back, newest first.
func (s RenameSync) rollback(done []promoted) {
	for i := len(done) - 1; i >= 0; i-- {
		p := done[i]
		os.RemoveAll(p.to)
		if p.backup != "" {
			os.Rename(p.backup, p.to)
		}
	}
}

func (s RenameSync) doRename(oldpath, newpath string) error {
	if s.rename != nil {
		return s.rename(oldpath, newpath)
	}
	return os.Rename(oldpath, newpath)
}

func (s RenameSync) doCopy(src, dst string) error {
	if s.copy != nil {
		return s.copy(src, dst)
	}
	return copyTree(src, dst)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			// #nosec G301 -- mirrors the extracted tree
			return os.MkdirAll(target, 0o755)
		case d.Type()&os.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(p, target, info.Mode().Perm())
		default:
			return errors.New("unsupported file type: " + p)
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	// #nosec G304 -- src is inside our temp dir
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	// #nosec G304 -- dst is inside the install dir
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
