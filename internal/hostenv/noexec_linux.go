//go:build linux

package hostenv

import (
	"os"

	"golang.org/x/sys/unix"
)

// IsNoExecMount reports whether path (or its nearest existing ancestor) sits
// on a noexec mount. statfs answers directly; the procfs tables are the
// fallback when it fails.
func IsNoExecMount(path string) bool {
	if path == "" {
		return false
	}
	target := existingAncestor(path)

	var st unix.Statfs_t
	if err := unix.Statfs(target, &st); err == nil {
		return st.Flags&unix.ST_NOEXEC != 0
	}

	if data, err := os.ReadFile("/proc/self/mountinfo"); err == nil { // #nosec G304 -- fixed procfs path
		if m, ok := ParseMountinfo(string(data)).Lookup(target); ok {
			return m.NoExec()
		}
	}
	data, err := os.ReadFile("/proc/mounts") // #nosec G304 -- fixed procfs path
	if err != nil {
		return false
	}
	m, ok := ParseMounts(string(data)).Lookup(target)
	return ok && m.NoExec()
}
