package service

import "strings"

// IsImageKey reports whether ref names an object in the image store rather
// than an external URL.
func IsImageKey(ref string) bool {
	return ref != "" && !strings.Contains(ref, "/") && !strings.Contains(ref, "\\")
}
