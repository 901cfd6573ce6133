package install

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"github.com/thrushlang/thrushdeps/internal/model"
)

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var tb bytes.Buffer
	tw := tar.NewWriter(&tb)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	var gb bytes.Buffer
	gw := gzip.NewWriter(&gb)
	if _, err := gw.Write(tb.Bytes()); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := os.WriteFile(path, gb.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func finalDir(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "thrushlang", "backends", "llvm", "build")
}

func TestInstallPromotesStrippedTree(t *testing.T) {
	t.Parallel()

	dest := finalDir(t)
	archive := filepath.Join(t.TempDir(), "llvm-c-linux.tar.gz")
	writeTarGz(t, archive, map[string]string{
		"llvm-c/lib/libLLVM-C.a":       "static",
		"llvm-c/include/llvm-c/Core.h": "header",
	})
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dest, "keep.txt"), []byte("unrelated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	in := &Installer{}
	results, err := in.Install(context.Background(), archive, dest, 1)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	want := []model.StepResult{{Step: model.StepExtract}, {Step: model.StepSync}}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("results (-want +got):\n%s", diff)
	}
	for _, rel := range []string{"lib/libLLVM-C.a", "include/llvm-c/Core.h", "keep.txt"} {
		if _, err := os.Stat(filepath.Join(dest, rel)); err != nil {
			t.Fatalf("%s missing: %v", rel, err)
		}
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(dest), ".build.tmp-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp dirs left behind: %v", leftovers)
	}
}

func TestInstallReplacesPreviousEntries(t *testing.T) {
	t.Parallel()

	dest := finalDir(t)
	if err := os.MkdirAll(filepath.Join(dest, "lib"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dest, "lib", "stale.a"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	archive := filepath.Join(t.TempDir(), "llvm.tar.gz")
	writeTarGz(t, archive, map[string]string{"lib/libLLVM-C.a": "new"})

	if _, err := (&Installer{}).Install(context.Background(), archive, dest, 0); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "lib", "stale.a")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale entry survived promotion: %v", err)
	}
}

func TestInstallFailureLeavesFinalDirUntouched(t *testing.T) {
	t.Parallel()

	dest := finalDir(t)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dest, "libLLVM-C.a"), []byte("previous"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	archive := filepath.Join(t.TempDir(), "llvm.tar.gz")
	if err := os.WriteFile(archive, []byte("truncated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	results, err := (&Installer{}).Install(context.Background(), archive, dest, 1)
	if !errors.Is(err, model.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if len(results) != 1 || results[0].Step != model.StepExtract || results[0].ExitCode == 0 {
		t.Fatalf("results: %+v", results)
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "libLLVM-C.a" {
		t.Fatalf("final dir changed: %v", entries)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(dest), ".build.tmp-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp dirs left behind: %v", leftovers)
	}
}

type fakeExtractor struct {
	code int
}

func (f fakeExtractor) Extract(_ context.Context, _, _ string, _ int) (model.StepResult, error) {
	return model.StepResult{Step: model.StepExtract, ExitCode: f.code}, nil
}

type failingSync struct{}

func (failingSync) Promote(string, string) error { return errors.New("disk full") }

func TestInstallStepFailures(t *testing.T) {
	t.Parallel()

	t.Run("nonzero exit without error", func(t *testing.T) {
		t.Parallel()
		_, err := (&Installer{Extractor: fakeExtractor{code: 2}}).Install(context.Background(), "x.tar", finalDir(t), 0)
		if !errors.Is(err, model.ErrExtraction) || !strings.Contains(err.Error(), "status 2") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	t.Run("sync failure", func(t *testing.T) {
		t.Parallel()
		results, err := (&Installer{Extractor: fakeExtractor{}, Sync: failingSync{}}).Install(context.Background(), "x.tar", finalDir(t), 0)
		if !errors.Is(err, model.ErrExtraction) {
			t.Fatalf("expected ErrExtraction, got %v", err)
		}
		want := []model.StepResult{{Step: model.StepExtract}, {Step: model.StepSync, ExitCode: 1}}
		if diff := cmp.Diff(want, results); diff != "" {
			t.Fatalf("results (-want +got):\n%s", diff)
		}
	})
}

func TestCopyTree(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "lib", "cmake"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "lib", "cmake", "LLVMConfig.cmake"), []byte("cfg"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := filepath.Join(t.TempDir(), "lib")
	if err := copyTree(filepath.Join(src, "lib"), dst); err != nil {
		t.Fatalf("copyTree: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dst, "cmake", "LLVMConfig.cmake"))
	if err != nil || string(got) != "cfg" {
		t.Fatalf("copied content: %q, %v", got, err)
	}
}

func TestRenameSyncRestoresPreviousEntriesOnFailure(t *testing.T) {
	t.Parallel()

	tree := func(root, content string) {
		t.Helper()
		for _, name := range []string{"bin/llvm-config", "lib/libLLVM-C.a"} {
			p := filepath.Join(root, filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
	}
	read := func(p string) string {
		t.Helper()
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		return string(data)
	}

	tests := []struct {
		name    string
		failLib bool
		want    string
	}{
		{"copy fails midway", true, "old"},
		{"copy fallback succeeds", false, "new"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src, dst := t.TempDir(), t.TempDir()
			tree(src, "new")
			tree(dst, "old")

			sync := RenameSync{
				rename: func(oldpath, newpath string) error {
					if strings.HasPrefix(oldpath, src) {
						return errors.New("cross-device link")
					}
					return os.Rename(oldpath, newpath)
				},
				copy: func(from, to string) error {
					if tt.failLib && filepath.Base(from) == "lib" {
						return errors.New("no space left on device")
					}
					return copyTree(from, to)
				},
			}
			err := sync.Promote(src, dst)
			if tt.failLib != (err != nil) {
				t.Fatalf("Promote error = %v, want failure %v", err, tt.failLib)
			}

			if got := read(filepath.Join(dst, "bin", "llvm-config")); got != tt.want {
				t.Fatalf("bin: got %q want %q", got, tt.want)
			}
			if got := read(filepath.Join(dst, "lib", "libLLVM-C.a")); got != tt.want {
				t.Fatalf("lib: got %q want %q", got, tt.want)
			}
			backups, _ := filepath.Glob(filepath.Join(dst, ".*.old"))
			if len(backups) != 0 {
				t.Fatalf("backups left behind: %v", backups)
			}
		})
	}
}

func TestReceiptRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if r, err := ReadReceipt(dir); err != nil || r != nil {
		t.Fatalf("empty dir: %+v, %v", r, err)
	}

	asset := model.Asset{Name: "llvm-c-linux-17.0.6.tar.gz", BrowserDownloadURL: "https://example.com/a"}
	want := NewReceipt("LLVM-C", asset, model.PlatformLinux, "abc123", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err := WriteReceipt(dir, want); err != nil {
		t.Fatalf("WriteReceipt: %v", err)
	}
	got, err := ReadReceipt(dir)
	if err != nil {
		t.Fatalf("ReadReceipt: %v", err)
	}
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Fatalf("receipt (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(filepath.Join(dir, ReceiptName), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r, err := ReadReceipt(dir); err != nil || r != nil {
		t.Fatalf("damaged receipt: %+v, %v", r, err)
	}
}

func TestDecide(t *testing.T) {
	t.Parallel()

	llvm17 := model.Asset{Name: "llvm-c-linux-17.0.6.tar.gz"}
	llvm18 := model.Asset{Name: "llvm-c-linux-18.1.8.tar.gz"}
	plain := model.Asset{Name: "llvm-c-linux.tar.gz"}

	tests := []struct {
		name  string
		prev  *model.Receipt
		next  model.Asset
		force bool
		want  Decision
		msg   string
	}{
		{"fresh", nil, llvm17, false, DecisionInstall, "Installing llvm-c-linux-17.0.6.tar.gz"},
		{"same asset", &model.Receipt{Asset: llvm17.Name}, llvm17, false, DecisionSkip, "--force"},
		{"same asset forced", &model.Receipt{Asset: llvm17.Name}, llvm17, true, DecisionReinstall, "Reinstalling"},
		{"upgrade", &model.Receipt{Asset: llvm17.Name}, llvm18, false, DecisionReplace, "v17.0.6 → v18.1.8"},
		{"downgrade", &model.Receipt{Asset: llvm18.Name}, llvm17, false, DecisionReplace, "Downgrading"},
		{"unversioned", &model.Receipt{Asset: plain.Name}, llvm18, false, DecisionReplace, "Replacing llvm-c-linux.tar.gz"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, msg := Decide(tc.prev, tc.next, tc.force)
			if got != tc.want {
				t.Fatalf("decision: got %q want %q", got, tc.want)
			}
			if !strings.Contains(msg, tc.msg) {
				t.Fatalf("message %q does not contain %q", msg, tc.msg)
			}
		})
	}
}

func TestDescribeDecision(t *testing.T) {
	t.Parallel()

	if got := DescribeDecision(DecisionSkip); got != "Already installed (nothing to do)" {
		t.Fatalf("skip: %q", got)
	}
	if got := DescribeDecision("custom"); got != "custom" {
		t.Fatalf("fallback: %q", got)
	}
	if got := FormatVersionDisplay("18.1.8"); got != "v18.1.8" {
		t.Fatalf("FormatVersionDisplay: %q", got)
	}
}
