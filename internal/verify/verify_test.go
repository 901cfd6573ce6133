package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thrushlang/thrushdeps/internal/model"
)

func TestExtractChecksum(t *testing.T) {
	t.Parallel()

	sha256Digest := strings.Repeat("a", 64)
	sha512Digest := strings.Repeat("b", 128)

	tests := []struct {
		name      string
		data      string
		algo      string
		assetName string
		want      string
		wantErr   string
	}{
		{
			name:    "empty file",
			data:    "\n\n",
			algo:    "sha256",
			wantErr: "empty",
		},
		{
			name: "bare digest",
			data: strings.ToUpper(sha256Digest),
			algo: "sha256",
			want: sha256Digest,
		},
		{
			name:      "consolidated matches by basename",
			data:      sha256Digest + "  ./dist/llvm-c-linux.tar.gz\n" + strings.Repeat("c", 64) + "  other\n",
			algo:      "sha256",
			assetName: "llvm-c-linux.tar.gz",
			want:      sha256Digest,
		},
		{
			name:      "binary mode marker",
			data:      sha256Digest + " *llvm-c-linux.tar.gz\n",
			algo:      "sha256",
			assetName: "llvm-c-linux.tar.gz",
			want:      sha256Digest,
		},
		{
			name:      "ignores comments and blank lines",
			data:      "# comment\n\n" + sha256Digest + " tool\n",
			algo:      "sha256",
			assetName: "tool",
			want:      sha256Digest,
		},
		{
			name:      "asset not found",
			data:      sha256Digest + " tool\n",
			algo:      "sha256",
			assetName: "nope",
			wantErr:   "not found",
		},
		{
			name:      "sha512 digest",
			data:      sha512Digest + " tool\n",
			algo:      "sha512",
			assetName: "tool",
			want:      sha512Digest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractChecksum([]byte(tc.data), tc.algo, tc.assetName)
			if tc.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tc.wantErr)
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("error: got %q want substring %q", err.Error(), tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractChecksum: %v", err)
			}
			if got != tc.want {
				t.Fatalf("checksum: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestFindChecksumAsset(t *testing.T) {
	t.Parallel()

	assets := []model.Asset{
		{Name: "llvm-c-linux.tar.gz"},
		{Name: "SHA256SUMS"},
		{Name: "llvm-c-linux.tar.gz.sha256"},
	}
	got := FindChecksumAsset(assets, "llvm-c-linux.tar.gz")
	if got == nil || got.Name != "llvm-c-linux.tar.gz.sha256" {
		t.Fatalf("expected per-asset checksum first, got %+v", got)
	}
	if got := FindChecksumAsset(assets[:1], "llvm-c-linux.tar.gz"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	payload := []byte("llvm-c payload")
	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])

	assetPath := filepath.Join(dir, "llvm-c-linux.tar.gz")
	if err := os.WriteFile(assetPath, payload, 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	good := filepath.Join(dir, "SHA256SUMS")
	if err := os.WriteFile(good, []byte(digest+"  llvm-c-linux.tar.gz\n"), 0o644); err != nil {
		t.Fatalf("write sums: %v", err)
	}
	got, err := File(assetPath, "llvm-c-linux.tar.gz", good, "SHA256SUMS")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if got != digest {
		t.Fatalf("digest: got %q want %q", got, digest)
	}

	bad := filepath.Join(dir, "bad.sha256")
	if err := os.WriteFile(bad, []byte(strings.Repeat("0", 64)), 0o644); err != nil {
		t.Fatalf("write bad: %v", err)
	}
	if _, err := File(assetPath, "llvm-c-linux.tar.gz", bad, "bad.sha256"); !errors.Is(err, model.ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
}

func TestChecksumHelpers(t *testing.T) {
	t.Parallel()

	if got := DetectChecksumAlgorithm("SHA2-512SUMS", "sha256"); got != "sha512" {
		t.Fatalf("DetectChecksumAlgorithm: got %q", got)
	}
	if got := DetectChecksumAlgorithm("checksums.txt", "sha256"); got != "sha256" {
		t.Fatalf("DetectChecksumAlgorithm default: got %q", got)
	}
	if got := FormatSize(1536); got != "1.5 KB" {
		t.Fatalf("FormatSize: got %q", got)
	}
	if got := FormatSize(300 << 20); got != "300.0 MB" {
		t.Fatalf("FormatSize: got %q", got)
	}
	if _, err := NewHash("md5"); err == nil {
		t.Fatalf("expected error for md5")
	}
}
