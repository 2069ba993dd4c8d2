package upload

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

var windowsDeviceNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename reduces a client supplied name to a flat ASCII file name.
// The result never contains a path separator and never starts with a dot;
// it may be empty.
func SanitizeFilename(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte(' ')
		case r < 0x80:
			b.WriteRune(r)
		}
	}

	joined := strings.Join(strings.Fields(b.String()), "_")
	cleaned := strings.Trim(unsafeFilenameChars.ReplaceAllString(joined, ""), "._")

	if cleaned != "" {
		stem := strings.ToUpper(strings.SplitN(cleaned, ".", 2)[0])
		if _, reserved := windowsDeviceNames[stem]; reserved {
			cleaned = "_" + cleaned
		}
	}
	return cleaned
}
