package utils

import (
	"path"
	"regexp"
	"strings"
)

var (
	// Characters invalid in filenames on most filesystems
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	// Multiple spaces to collapse
	multipleSpaces = regexp.MustCompile(`\s+`)
)

// SanitizeFilename turns a book title into a name usable as a single path
// segment on local disks, WebDAV servers and cloud drives.
func SanitizeFilename(filename string) string {
	// Control characters become spaces before the invalid set strips the rest
	filename = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, filename)
	filename = invalidFilenameChars.ReplaceAllString(filename, "")
	filename = multipleSpaces.ReplaceAllString(filename, " ")

	// A leading dot would hide the entry from listings
	filename = strings.TrimLeft(strings.TrimSpace(filename), ".")
	filename = strings.TrimRight(strings.TrimSpace(filename), ".")

	if len(filename) > 200 {
		filename = strings.TrimSpace(truncateUTF8(filename, 200))
	}

	if filename == "" {
		filename = "Untitled"
	}

	return filename
}

func truncateUTF8(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// KnownBookExtensions contains the file extensions recognised as books in
// generic file stores.
var KnownBookExtensions = []string{
	".epub",
	".htmlz",
	".azw3",
	".mobi",
	".fb2",
	".pdf",
}

// IsHidden reports whether name is a dotfile.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// IsBookFile reports whether name is a visible file with a known book extension.
func IsBookFile(name string) bool {
	if IsHidden(name) {
		return false
	}
	ext := strings.ToLower(path.Ext(name))
	for _, known := range KnownBookExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

// TrimBookExtension strips a known book extension from name.
func TrimBookExtension(name string) string {
	ext := path.Ext(name)
	if IsBookFile(name) {
		return strings.TrimSuffix(name, ext)
	}
	return name
}
