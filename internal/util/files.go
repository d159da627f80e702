package util

import (
	"path/filepath"
	"strings"
)

// DocumentKey derives a document's identity from its filename: the base name
// without extension. Checkpoints, processed markdown, and output datasets
// all key on it, so a document keeps its progress when the containing
// directory moves.
func DocumentKey(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
