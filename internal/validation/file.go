package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultExtension is used when an upload's name carries no usable extension.
const DefaultExtension = "bin"

const maxExtensionLen = 16

// ValidateUploadSize rejects uploads above maxSize. A maxSize <= 0 means no limit.
// It runs before any byte is written so an oversized upload leaves nothing behind.
func ValidateUploadSize(size, maxSize int64) error {
	if maxSize <= 0 {
		return nil
	}
	if size > maxSize {
		return fmt.Errorf("file too large: maximum size is %.0f MB, got %.1f MB",
			float64(maxSize)/(1<<20), float64(size)/(1<<20))
	}
	return nil
}

// UploadExtension extracts the extension of an uploaded file name without the
// leading dot. Anything not purely alphanumeric falls back to DefaultExtension
// so the generated name can never carry path separators.
func UploadExtension(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))

	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return DefaultExtension
	}

	ext := base[i+1:]
	if ext == "" || len(ext) > maxExtensionLen {
		return DefaultExtension
	}
	for _, r := range ext {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			return DefaultExtension
		}
	}

	return ext
}
