package stream

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Windows paths longer than the legacy MAX_PATH limit need the extended
// length prefix before they reach CreateFile. 248 leaves the customary
// headroom for an 8.3 component.
const legacyPathLimit = 248

const (
	extendedPrefix    = `\\?\`
	uncExtendedPrefix = `\\?\UNC\`
)

// fixLongPath returns path in a form the platform can open regardless of
// length. On non-Windows platforms it is the identity. UNC paths get the
// UNC-specific extended form.
func fixLongPath(path string) string {
	if runtime.GOOS != "windows" || len(path) < legacyPathLimit {
		return path
	}
	if strings.HasPrefix(path, extendedPrefix) {
		return path
	}
	if strings.HasPrefix(path, `\\`) {
		// \\server\share\... -> \\?\UNC\server\share\...
		return uncExtendedPrefix + path[2:]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return extendedPrefix + abs
}
