package scan

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// walkTree traverses root depth-first with an explicit stack (bounded
// stack depth, trivial cancellation points) and returns every supported
// file it finds. Entries whose name begins with a dot are skipped.
// cancelled is probed before each directory and between siblings; a true
// result abandons the walk and returns what was gathered so far.
func walkTree(root string, supported func(string) bool, cancelled func() bool) []string {
	stack := []string{root}
	var found []string

	for len(stack) > 0 {
		if cancelled() {
			return found
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Warn("scan: read dir", "path", dir, "error", err)
			continue
		}
		for _, entry := range entries {
			if cancelled() {
				return found
			}
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			path := filepath.Join(dir, name)
			if entry.IsDir() {
				stack = append(stack, path)
				continue
			}
			if supported(path) {
				found = append(found, path)
			}
		}
	}
	return found
}
