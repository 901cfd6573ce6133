// Package hostenv inspects the host filesystem the install directory lives
// on. Every check is best effort and only ever produces warnings.
package hostenv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mount is one row of the kernel mount table.
type Mount struct {
	Point   string
	Options map[string]struct{}
}

// NoExec reports whether the mount forbids executing binaries.
func (m Mount) NoExec() bool {
	_, ok := m.Options["noexec"]
	return ok
}

// MountTable is a parsed mount table.
type MountTable []Mount

// ParseMountinfo parses /proc/self/mountinfo. Options after the "-"
// separator (super options) are merged into the per-mount options.
func ParseMountinfo(content string) MountTable {
	var out MountTable
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		sep := -1
		for i, f := range fields {
			if f == "-" {
				sep = i
				break
			}
		}
		// id parent major:minor root mountpoint options ... - fstype source superopts
		if sep < 6 {
			continue
		}
		opts := splitOptions(fields[5])
		if sep+3 < len(fields) {
			for k := range splitOptions(fields[sep+3]) {
				opts[k] = struct{}{}
			}
		}
		out = append(out, Mount{Point: unescape(fields[4]), Options: opts})
	}
	return out
}

// ParseMounts parses the fstab-style /proc/mounts.
func ParseMounts(content string) MountTable {
	var out MountTable
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		out = append(out, Mount{Point: unescape(fields[1]), Options: splitOptions(fields[3])})
	}
	return out
}

// Lookup returns the mount containing path: the longest mount point that is
// a path prefix of it.
func (t MountTable) Lookup(path string) (Mount, bool) {
	p := filepath.ToSlash(filepath.Clean(path))
	if p == "." || p == "" {
		return Mount{}, false
	}
	var best Mount
	found := false
	for _, m := range t {
		point := filepath.ToSlash(filepath.Clean(m.Point))
		if point == "." || point == "" || !under(p, point) {
			continue
		}
		if !found || len(point) > len(filepath.ToSlash(filepath.Clean(best.Point))) {
			best, found = m, true
		}
	}
	return best, found
}

func splitOptions(opt string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, part := range strings.Split(opt, ",") {
		if part = strings.TrimSpace(part); part != "" {
			m[part] = struct{}{}
		}
	}
	return m
}

var procEscapes = strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)

// unescape decodes the octal escapes procfs uses in paths.
func unescape(value string) string {
	return procEscapes.Replace(value)
}

func under(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// existingAncestor walks up from path to the nearest directory that exists,
// since the install directory may not have been created yet.
func existingAncestor(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}

// Warnings returns human readable warnings about installing into dir.
func Warnings(dir string) []string {
	if dir == "" || !IsNoExecMount(dir) {
		return nil
	}
	return []string{fmt.Sprintf("%s is on a noexec mount; the LLVM toolchain binaries installed there will not be executable", dir)}
}
