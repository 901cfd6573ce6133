package selector

import (
	"errors"
	"testing"

	"github.com/thrushlang/thrushdeps/internal/model"
)

func asset(name string) model.Asset {
	return model.Asset{Name: name, BrowserDownloadURL: "https://example.invalid/" + name}
}

func TestSelectTagNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		releases []model.Release
	}{
		{name: "empty index", releases: nil},
		{name: "other tags only", releases: []model.Release{{TagName: "v1.0.0", Assets: []model.Asset{asset("llvm-c-linux.tar.gz")}}}},
		{name: "case differs", releases: []model.Release{{TagName: "llvm-c", Assets: []model.Asset{asset("llvm-c-linux.tar.gz")}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Select(tc.releases, "LLVM-C", "linux", DigitSum)
			if !errors.Is(err, model.ErrTagNotFound) {
				t.Fatalf("expected ErrTagNotFound, got %v", err)
			}
		})
	}
}

func TestSelectNoAssetForPlatform(t *testing.T) {
	t.Parallel()

	releases := []model.Release{{TagName: "LLVM-C", Assets: []model.Asset{asset("llvm-c-windows-x64.tar.gz")}}}
	_, err := Select(releases, "LLVM-C", "linux", DigitSum)
	if !errors.Is(err, model.ErrNoAssetForPlatform) {
		t.Fatalf("expected ErrNoAssetForPlatform, got %v", err)
	}
}

func TestSelectPlatformMatchIgnoresCase(t *testing.T) {
	t.Parallel()

	releases := []model.Release{{TagName: "LLVM-C", Assets: []model.Asset{
		asset("LLVM-C-Windows-x64.tar.gz"),
		asset("LLVM-C-Linux-x64.tar.gz"),
	}}}
	got, err := Select(releases, "LLVM-C", "linux", DigitSum)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Name != "LLVM-C-Linux-x64.tar.gz" {
		t.Fatalf("selected %q", got.Name)
	}
}

func TestSelectDigitSumTieBreak(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		assets []string
		want   string
	}{
		{
			name:   "higher digit sum wins",
			assets: []string{"foo-linux-1.0.0", "foo-linux-2.1.0"},
			want:   "foo-linux-2.1.0",
		},
		{
			name:   "order does not matter",
			assets: []string{"foo-linux-2.1.0", "foo-linux-1.0.0"},
			want:   "foo-linux-2.1.0",
		},
		{
			name:   "equal sums keep first occurrence",
			assets: []string{"foo-linux-1.2.0", "foo-linux-2.1.0", "foo-linux-3.0.0"},
			want:   "foo-linux-1.2.0",
		},
		{
			name:   "digit sum is not semver",
			assets: []string{"foo-linux-10.0.0", "foo-linux-9.0.0"},
			want:   "foo-linux-9.0.0",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var assets []model.Asset
			for _, n := range tc.assets {
				assets = append(assets, asset(n))
			}
			releases := []model.Release{{TagName: "LLVM-C", Assets: assets}}
			first, err := Select(releases, "LLVM-C", "linux", DigitSum)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if first.Name != tc.want {
				t.Fatalf("selected %q, want %q", first.Name, tc.want)
			}
			for i := 0; i < 5; i++ {
				again, err := Select(releases, "LLVM-C", "linux", DigitSum)
				if err != nil || again != first {
					t.Fatalf("selection not deterministic: %+v vs %+v (%v)", again, first, err)
				}
			}
		})
	}
}

func TestSelectSemver(t *testing.T) {
	t.Parallel()

	releases := []model.Release{{TagName: "LLVM-C", Assets: []model.Asset{
		asset("llvm-c-linux-x64-v9.0.0.tar.gz"),
		asset("llvm-c-linux-x64-v10.0.1.tar.gz"),
		asset("llvm-c-linux-x64-nightly.tar.gz"),
		asset("llvm-c-linux-x64-v10.0.1-rc1.tar.gz"),
	}}}
	got, err := Select(releases, "LLVM-C", "linux", Semver)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Name != "llvm-c-linux-x64-v10.0.1.tar.gz" {
		t.Fatalf("selected %q", got.Name)
	}
}

func TestSelectSemverWithoutVersionsKeepsFirst(t *testing.T) {
	t.Parallel()

	releases := []model.Release{{TagName: "LLVM-C", Assets: []model.Asset{
		asset("llvm-c-linux-a.tar.gz"),
		asset("llvm-c-linux-b.tar.gz"),
	}}}
	got, err := Select(releases, "LLVM-C", "linux", Semver)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Name != "llvm-c-linux-a.tar.gz" {
		t.Fatalf("selected %q", got.Name)
	}
}

func TestVersionOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"llvm-c-linux-x64-v17.0.6.tar.gz", "17.0.6"},
		{"llvm-17.0.6-linux-x64.tar.xz", "17.0.6"},
		{"llvm-c-windows-18.1.tar.zst", "18.1.0"},
		{"llvm-c-linux-x64-v19.1.0-rc2.zip", "19.1.0-rc2"},
	}
	for _, tt := range tests {
		v := VersionOf(tt.name)
		if v == nil {
			t.Errorf("VersionOf(%q) = nil, want %s", tt.name, tt.want)
			continue
		}
		if v.String() != tt.want {
			t.Errorf("VersionOf(%q) = %s, want %s", tt.name, v.String(), tt.want)
		}
	}
	if v := VersionOf("llvm-c-linux-x64.tar.gz"); v != nil {
		t.Errorf("expected no version, got %s", v)
	}
}

func TestDigitSumOf(t *testing.T) {
	t.Parallel()

	if got := DigitSumOf("foo-1.0.0"); got != 1 {
		t.Fatalf("foo-1.0.0: got %d", got)
	}
	if got := DigitSumOf("foo-2.1.0"); got != 3 {
		t.Fatalf("foo-2.1.0: got %d", got)
	}
	if got := DigitSumOf("no digits"); got != 0 {
		t.Fatalf("no digits: got %d", got)
	}
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Strategy{"": DigitSum, "DigitSum": DigitSum, "semver": Semver} {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseStrategy("latest"); err == nil {
		t.Errorf("expected error for unknown strategy")
	}
}
