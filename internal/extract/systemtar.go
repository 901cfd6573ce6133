package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/thrushlang/thrushdeps/internal/model"
)

const maxCommandError = 2048

// SystemTar extracts through the host tar binary. The tar exit status becomes
// the StepResult exit code.
type SystemTar struct {
	// Bin overrides the tar executable; empty means "tar" from PATH.
	Bin string
}

func (s SystemTar) Extract(ctx context.Context, archive, dest string, strip int) (model.StepResult, error) {
	if strip < 0 {
		return failed(fmt.Errorf("%w: negative strip count %d", model.ErrExtraction, strip))
	}
	if err := // #nosec G301 -- dest is an install temp dir
		os.MkdirAll(dest, 0o755); err != nil {
		return failed(fmt.Errorf("%w: mkdir %s: %w", model.ErrExtraction, dest, err))
	}
	bin := s.Bin
	if bin == "" {
		bin = "tar"
	}
	args := []string{"xf", archive, "-C", dest}
	if strip > 0 {
		args = append(args, "--strip-components="+strconv.Itoa(strip))
	}

	code, err := runCommand(ctx, bin, args...)
	res := model.StepResult{Step: model.StepExtract, ExitCode: code}
	if err != nil {
		return res, fmt.Errorf("%w: %w", model.ErrExtraction, err)
	}
	return res, nil
}

// runCommand runs bin and returns its exit status. A binary that cannot be
// started reports status 127, the shell convention for "not found".
func runCommand(ctx context.Context, bin string, args ...string) (int, error) {
	// #nosec G204 -- bin and args are assembled from config, not user shell input
	cmd := exec.CommandContext(ctx, bin, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	code := 127
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		code = exitErr.ExitCode()
	} else if errors.As(err, &exitErr) {
		code = 1
	}
	return code, fmt.Errorf("%s %s: %s", bin, strings.Join(args, " "), trimCommandOutput(combined.String(), err))
}

func trimCommandOutput(out string, err error) string {
	clean := strings.TrimSpace(out)
	if clean == "" {
		return err.Error()
	}
	if len(clean) > maxCommandError {
		return clean[:maxCommandError] + "..."
	}
	return clean
}
