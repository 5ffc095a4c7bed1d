package crawler

import (
	"fmt"
	"strconv"
	"strings"
)

// ColonTimeToSeconds converts "H:MM:SS", "MM:SS" or "SS" into seconds.
func ColonTimeToSeconds(display string) (int, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrExtraction)
	}
	parts := strings.Split(display, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: duration %q has too many fields", ErrExtraction, display)
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: duration %q is not numeric", ErrExtraction, display)
		}
		total = total*60 + n
	}
	return total, nil
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
