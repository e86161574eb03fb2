package nav

import (
	"path/filepath"
	"runtime"
	"strings"
)

// ExpandPath expands and normalizes a path string, handling:
// - ~ for home directory
// - Relative paths (../, ./) against cwd
// - Absolute paths
// - Windows drive letters (C:, D:, etc.)
// An empty input yields cwd.
func ExpandPath(input, cwd, home string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return cwd
	}

	if input == "~" {
		return home
	}
	if strings.HasPrefix(input, "~/") || strings.HasPrefix(input, "~\\") {
		return filepath.Clean(filepath.Join(home, input[2:]))
	}

	if isAbsolutePath(input) {
		return filepath.Clean(input)
	}
	return filepath.Clean(filepath.Join(cwd, input))
}

// isAbsolutePath checks if a path is absolute, handling both Unix and Windows paths.
func isAbsolutePath(path string) bool {
	if len(path) == 0 {
		return false
	}
	if path[0] == '/' {
		return true
	}
	if runtime.GOOS == "windows" {
		// Drive letter paths: C:\, D:\, C:/, etc.
		if len(path) >= 2 && isLetter(path[0]) && path[1] == ':' {
			return true
		}
		// UNC paths: \\server\share
		if len(path) >= 2 && path[0] == '\\' && path[1] == '\\' {
			return true
		}
	}
	return false
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
