package writer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateDocumentKey guards CLI-supplied document keys before they are
// joined into paths under the progress and output directories. Keys come
// from file stems, so any filename-safe text is fine; what must never pass
// is anything that walks out of the data directories.
//
// This prevents CWE-22 (Improper Limitation of a Pathname to a Restricted Directory)
func ValidateDocumentKey(key string) error {
	if key == "" {
		return fmt.Errorf("document key cannot be empty")
	}

	if len(key) > 255 {
		return fmt.Errorf("document key too long (%d characters, max 255)", len(key))
	}

	if strings.Contains(key, "..") {
		return fmt.Errorf("invalid document key: contains '..' (path traversal attempt)")
	}

	if filepath.IsAbs(key) {
		return fmt.Errorf("invalid document key: must not be an absolute path")
	}

	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("invalid document key: must not contain path separators")
	}

	if key == "." {
		return fmt.Errorf("invalid document key: '.'")
	}

	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("invalid document key: contains control characters")
		}
	}

	return nil
}
