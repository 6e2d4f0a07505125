package gtfs

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDaySeconds parses an H:MM:SS or HH:MM:SS time of day into seconds
// after midnight. Hours may exceed 23 for trips running past midnight.
func ParseDaySeconds(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	var hms [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && (len(p) != 2 || n > 59)) {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		hms[i] = n
	}
	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}

// FormatDaySeconds is the inverse of ParseDaySeconds; hours are not wrapped.
func FormatDaySeconds(sec int) string {
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}
