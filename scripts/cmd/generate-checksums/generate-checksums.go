// Command generate-checksums writes the SHA256SUMS and SHA2-512SUMS files
// published next to the LLVM-C archives in a release. thrushdeps verifies
// downloads against them.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thrushlang/thrushdeps/internal/extract"
	"github.com/thrushlang/thrushdeps/internal/verify"
)

type checksumJob struct {
	algo    string
	outFile string
}

func main() {
	var dir, algos string
	cmd := &cobra.Command{
		Use:   "generate-checksums",
		Short: "Write checksum files for LLVM-C release archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.OutOrStdout(), dir, algos)
		},

		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&dir, "dir", "dist/release", "directory containing release archives")
	cmd.Flags().StringVar(&algos, "algos", "sha256,sha512", "comma-separated list of hash algorithms (sha256, sha512)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(out io.Writer, dir, algoList string) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return errors.New("directory is required")
	}
	if err := ensureDir(dir); err != nil {
		return err
	}

	jobs, err := jobsFromAlgos(algoList)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return errors.New("no hash algorithms specified")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	files := archives(entries)
	if len(files) == 0 {
		return fmt.Errorf("no release archives found in %s", dir)
	}
	sort.Strings(files)

	for _, job := range jobs {
		if err := writeChecksums(dir, files, job); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s (%d entries)\n", filepath.Join(dir, job.outFile), len(files))
	}
	return nil
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory %s not found", dir)
		}
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func jobsFromAlgos(list string) ([]checksumJob, error) {
	var jobs []checksumJob
	seen := make(map[string]struct{})
	for _, raw := range strings.Split(list, ",") {
		algo := strings.ToLower(strings.TrimSpace(raw))
		if algo == "" {
			continue
		}
		if _, ok := seen[algo]; ok {
			continue
		}
		switch algo {
		case "sha256":
			jobs = append(jobs, checksumJob{algo: algo, outFile: "SHA256SUMS"})
		case "sha512":
			jobs = append(jobs, checksumJob{algo: algo, outFile: "SHA2-512SUMS"})
		default:
			return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
		}
		seen[algo] = struct{}{}
	}
	return jobs, nil
}

// archives keeps the entries thrushdeps can extract.
func archives(entries []os.DirEntry) []string {
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if extract.FormatFromName(entry.Name()) == "" {
			continue
		}
		files = append(files, entry.Name())
	}
	return files
}

func writeChecksums(dir string, files []string, job checksumJob) error {
	outPath := filepath.Join(dir, job.outFile)
	var b strings.Builder
	for _, name := range files {
		sum, err := verify.HashFile(filepath.Join(dir, name), job.algo)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%s  %s\n", sum, name)
	}
	// #nosec G306 -- checksum files are published
	if err := os.WriteFile(outPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}
