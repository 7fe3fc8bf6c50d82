package parser

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackAlias = "bookmark"

// Normalize turns free text into an alias base: accents stripped,
// lower-cased, every run of non-alphanumeric characters collapsed to a
// single '-', leading and trailing '-' removed, truncated to maxLen runes.
func Normalize(s string, maxLen int) string {
	s = RemoveAccents(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	out := b.String()
	if maxLen > 0 {
		out = truncateRunes(out, maxLen)
	}
	return strings.Trim(out, "-")
}

// RemoveAccents strips diacritical marks from a string.
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// HostKeyword returns the registrable-looking part of a URL host with
// "www." dropped, e.g. "github" for https://www.github.com/x.
func HostKeyword(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return ""
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return parts[0]
}

// aliasSet hands out batch-unique aliases in traversal order.
type aliasSet struct {
	used   map[string]struct{}
	maxLen int
}

func newAliasSet(maxLen int) *aliasSet {
	return &aliasSet{used: make(map[string]struct{}), maxLen: maxLen}
}

// assign derives the base alias for a leaf and disambiguates it with
// -2, -3, ... until unused.
func (s *aliasSet) assign(preferred, title, rawURL string) string {
	base := Normalize(preferred, s.maxLen)
	if base == "" {
		base = Normalize(title, s.maxLen)
	}
	if base == "" {
		base = Normalize(hostOf(rawURL), s.maxLen)
	}
	if base == "" {
		base = fallbackAlias
	}

	if _, taken := s.used[base]; !taken {
		s.used[base] = struct{}{}
		return base
	}
	for i := 2; ; i++ {
		suffix := "-" + strconv.Itoa(i)
		candidate := strings.TrimRight(truncateRunes(base, s.maxLen-len(suffix)), "-") + suffix
		if _, taken := s.used[candidate]; !taken {
			s.used[candidate] = struct{}{}
			return candidate
		}
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
