package buildsys

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// DiscoverSpecimens lists the immediate sub-directories of root (skipping dot
// directories) as paths joined with root, sorted by name. It only reads the
// filesystem, so the result always reflects the state at call time.
func DiscoverSpecimens(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to list specimens in %s", root)
	}

	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		isDir := entry.IsDir()
		if !isDir && entry.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(filepath.Join(root, entry.Name()))
			isDir = err == nil && info.IsDir()
		}

		if isDir {
			result = append(result, filepath.Join(root, entry.Name()))
		}
	}

	return result, nil
}
