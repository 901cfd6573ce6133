// Package extract unpacks staged archives into a destination directory.
//
// Two implementations satisfy ArchiveExtractor: Native decodes the archive
// in-process and SystemTar shells out to the host tar binary. Both strip a
// fixed number of leading path components from every entry.
package extract

import (
	"context"
	"fmt"

	"github.com/thrushlang/thrushdeps/internal/model"
)

// ArchiveExtractor unpacks archive into dest, dropping the first strip path
// elements of each entry. The returned StepResult carries the exit code of
// the operation (0 on success) even when err is non-nil.
type ArchiveExtractor interface {
	Extract(ctx context.Context, archive, dest string, strip int) (model.StepResult, error)
}

// New returns the extractor registered under kind ("native" or "tar").
func New(kind string) (ArchiveExtractor, error) {
	switch kind {
	case "", "native":
		return Native{}, nil
	case "tar":
		return SystemTar{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown extractor %q", model.ErrInvalidConfig, kind)
	}
}

func failed(err error) (model.StepResult, error) {
	return model.StepResult{Step: model.StepExtract, ExitCode: 1}, err
}
