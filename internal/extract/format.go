package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/thrushlang/thrushdeps/internal/model"
)

// Format is an archive container/compression pair.
type Format string

const (
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarXz  Format = "tar.xz"
	FormatTarZst Format = "tar.zst"
	FormatTarBz2 Format = "tar.bz2"
	FormatZip    Format = "zip"
)

var magics = []struct {
	prefix []byte
	format Format
}{
	{[]byte{0x1f, 0x8b}, FormatTarGz},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, FormatTarXz},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, FormatTarZst},
	{[]byte("BZh"), FormatTarBz2},
	{[]byte("PK\x03\x04"), FormatZip},
	{[]byte("PK\x05\x06"), FormatZip},
}

// FormatFromName infers the format from the file extension. It returns ""
// when the name carries no recognized extension.
func FormatFromName(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return FormatTarBz2
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	default:
		return ""
	}
}

// FormatFromMagic inspects the leading bytes of r.
func FormatFromMagic(r io.Reader) (Format, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	head = head[:n]
	for _, m := range magics {
		if bytes.HasPrefix(head, m.prefix) {
			return m.format, nil
		}
	}
	// POSIX and GNU tar both put "ustar" at offset 257.
	if len(head) >= 262 && bytes.Equal(head[257:262], []byte("ustar")) {
		return FormatTar, nil
	}
	return "", nil
}

// DetectFormat resolves the format of the archive at path, trusting the
// extension first and falling back to magic bytes.
func DetectFormat(path string) (Format, error) {
	if f := FormatFromName(path); f != "" {
		return f, nil
	}
	// #nosec G304 -- path is a staged archive
	fh, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", model.ErrExtraction, path, err)
	}
	defer fh.Close()
	f, err := FormatFromMagic(fh)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", model.ErrExtraction, path, err)
	}
	if f == "" {
		return "", fmt.Errorf("%w: %s: unrecognized archive format", model.ErrExtraction, path)
	}
	return f, nil
}
