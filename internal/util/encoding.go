package util

import (
	"golang.org/x/text/unicode/norm"
)

// NormalizeText returns s in Unicode normalization form C. Message bodies are
// composed before they leave the process so clients that send decomposed
// sequences do not produce visually identical but byte-distinct messages.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}
