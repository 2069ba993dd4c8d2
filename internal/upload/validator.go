package upload

import (
	"errors"
	"strings"
)

// Validation failures. The messages are part of the HTTP contract.
var (
	ErrNoImage         = errors.New("No image provided")
	ErrNoSelectedFile  = errors.New("No selected file")
	ErrInvalidFileType = errors.New("Invalid file type")
	ErrTooLarge        = errors.New("Image too large")
)

// Extensions is a case-insensitive allow-set of file extensions without the dot.
type Extensions map[string]struct{}

func NewExtensions(exts ...string) Extensions {
	set := make(Extensions, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			set[ext] = struct{}{}
		}
	}
	return set
}

// AllowedFile reports whether the text after the last dot of name is in allowed.
func AllowedFile(name string, allowed Extensions) bool {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return false
	}
	_, ok := allowed[strings.ToLower(name[idx+1:])]
	return ok
}

// Validate checks a client filename before any I/O happens.
func Validate(name string, allowed Extensions) error {
	if name == "" {
		return ErrNoSelectedFile
	}
	if !AllowedFile(name, allowed) {
		return ErrInvalidFileType
	}
	return nil
}

// IsValidationError reports whether err is a client-side upload error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNoImage) ||
		errors.Is(err, ErrNoSelectedFile) ||
		errors.Is(err, ErrInvalidFileType)
}
