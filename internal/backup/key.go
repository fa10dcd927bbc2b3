package backup

import (
	"fmt"
	"strings"
	"time"
)

// Key format verbs, ordered from most to least significant. Every verb
// expands to a fixed-width, zero-padded number, so keys built from a valid
// format sort lexicographically in chronological order.
var keyVerbs = map[rune]struct {
	order  int
	expand func(t time.Time) string
}{
	'Y': {0, func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) }},
	'y': {0, func(t time.Time) string { return fmt.Sprintf("%02d", t.Year()%100) }},
	'm': {1, func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) }},
	'd': {2, func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) }},
	'H': {3, func(t time.Time) string { return fmt.Sprintf("%02d", t.Hour()) }},
	'M': {4, func(t time.Time) string { return fmt.Sprintf("%02d", t.Minute()) }},
	'S': {5, func(t time.Time) string { return fmt.Sprintf("%02d", t.Second()) }},
	'f': {6, func(t time.Time) string { return fmt.Sprintf("%06d", t.Nanosecond()/1000) }},
}

// ValidateKeyFormat checks that the format produces keys whose string order
// matches their chronological order: time verbs must run from the year down
// to the wanted resolution without gaps or repeats. Characters that are not
// verbs pass through as literal separators.
func ValidateKeyFormat(format string) error {
	last := -1
	found := false
	for _, r := range format {
		v, ok := keyVerbs[r]
		if !ok {
			continue
		}
		found = true
		if v.order != last+1 {
			return fmt.Errorf("invalid key format %q: time verbs must run from year down without gaps or repeats", format)
		}
		last = v.order
	}
	if !found {
		return fmt.Errorf("invalid key format %q: must contain at least one of Y y m d H M S f", format)
	}
	return nil
}

// BuildKey renders the snapshot key for a point in time.
func BuildKey(format string, t time.Time) string {
	var b strings.Builder
	for _, r := range format {
		if v, ok := keyVerbs[r]; ok {
			b.WriteString(v.expand(t))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
