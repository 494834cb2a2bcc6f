//go:build !windows

package session

import "github.com/google/renameio/v2"

// atomicWrite writes data to path atomically via renameio: write to a
// temp file in the same directory, fsync, then rename over the target.
func atomicWrite(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0o600)
}
