// Package slug derives customer subdomain labels from email addresses.
package slug

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	MaxBaseLength = 20
	fallbackBase  = "customer"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Base normalizes the local part of an email into a label of at most
// MaxBaseLength characters.
func Base(email string) string {
	local, _, _ := strings.Cut(email, "@")
	s := nonAlnum.ReplaceAllString(strings.ToLower(local), "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxBaseLength {
		// a cut can leave a hyphen at the end, which is not a valid label ending
		s = strings.TrimRight(s[:MaxBaseLength], "-")
	}
	if s == "" {
		return fallbackBase
	}
	return s
}

// Candidate returns the n-th candidate for base: base itself for n < 2,
// base-n otherwise.
func Candidate(base string, n int) string {
	if n < 2 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}

// FirstFree picks the first candidate of base that is not in taken.
func FirstFree(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		used[t] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		c := Candidate(base, n)
		if _, ok := used[c]; !ok {
			return c
		}
	}
}

// DatabaseName maps a slug onto a postgres identifier.
func DatabaseName(prefix, slug string) string {
	return prefix + strings.ReplaceAll(slug, "-", "_")
}
