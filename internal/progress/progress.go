// Package progress renders cursor positions as human-readable text.
package progress

import "fmt"

// Text formats a zero-based offset as "N of T (P%)". N is one-based, T is
// clamped to at least 1, and P is truncated toward zero.
func Text(offset, total int) string {
	current := offset + 1
	safeTotal := total
	if safeTotal < 1 {
		safeTotal = 1
	}
	percent := current * 100 / safeTotal
	return fmt.Sprintf("%d of %d (%d%%)", current, safeTotal, percent)
}

// Percent returns the completion percentage for offset within total, the
// same figure Text prints.
func Percent(offset, total int) float64 {
	safeTotal := total
	if safeTotal < 1 {
		safeTotal = 1
	}
	return float64((offset+1)*100/safeTotal)
}
