package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// AlternateCaseNumber swaps the L/C prefix of a case number. Historic folders
// were created under C-numbers before intake moved to L-numbers, so lookups
// try both spellings.
func AlternateCaseNumber(number string) string {
	switch {
	case strings.HasPrefix(number, "L"):
		return "C" + number[1:]
	case strings.HasPrefix(number, "C"):
		return "L" + number[1:]
	}
	return ""
}

// SanitizeFileName strips path separators and characters OneDrive rejects in
// item names. Empty results fall back to "file".
func SanitizeFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}
