package daemon

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// minFreeBytes is the free space below which the daemon warns at startup.
const minFreeBytes = 64 << 20

// freeBytes reports the space available to unprivileged users on the
// filesystem holding path.
func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
