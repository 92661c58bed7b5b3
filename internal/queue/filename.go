package queue

import "strings"

// FileName returns the last component of path, split on either slash style.
// A path without separators is returned unchanged.
func FileName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
