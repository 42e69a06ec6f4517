package errors

import (
	"math"
	"strings"
	"unicode"
)

// ValidateFilename validates a delivery filename for safety.
// It ensures the filename is a simple basename without path components.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path separators or traversal sequences
//   - Maximum length of 255 characters
func ValidateFilename(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPath, "filename cannot be empty")
	}

	if len(name) > 255 {
		return New(ErrCodeInvalidPath, "filename too long (max 255 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "filename contains invalid control characters")
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidPath, "filename cannot contain path separators")
	}

	if name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidPath, "filename cannot be a hidden or relative entry")
	}

	return nil
}

// ValidateDimensions checks that a pixel size is strictly positive.
func ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return New(ErrCodeInvalidInput, "invalid surface dimensions %dx%d (must be positive)", width, height)
	}
	return nil
}

// ValidateScale checks that a scale factor is a finite, positive number.
func ValidateScale(scale float64) error {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return New(ErrCodeInvalidDimensionInput, "scale factor must be a positive finite number, got %v", scale)
	}
	return nil
}
