package analyzer

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/teranos/shelf/parser"
)

const (
	// candidateMaxLen bounds a single alias candidate, in runes
	candidateMaxLen = 32
	// shortTitleLen bounds the cleaned-title candidate
	shortTitleLen = 20
)

// bracketed matches (...), [...], {...} and their full-width forms, which
// in page titles usually hold noise like "(2024)" or "【官方】".
var bracketed = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\{[^}]*\}|【[^】]*】|（[^）]*）`)

// codeHosts are hosts whose first two path segments name a project.
var codeHosts = map[string]bool{"github": true, "gitlab": true, "codeberg": true, "bitbucket": true}

// Candidates derives up to max alias candidates for rec, distinct from each
// other and from rec.Alias. Sources in order: the cleaned title, the url
// domain (owner-repo for code hosts), the three longest title words, title
// plus domain, last folder plus title. A single candidate is padded to two
// with a numbered variant; nothing derivable yields an empty list.
func Candidates(rec parser.FlatRecord, max int) []string {
	out := make([]string, 0, max)
	add := func(c string) {
		if c == "" || c == rec.Alias || len(out) >= max {
			return
		}
		for _, existing := range out {
			if existing == c {
				return
			}
		}
		out = append(out, c)
	}

	clean := cleanTitle(rec.Title)
	short := parser.Normalize(clean, shortTitleLen)
	domain := domainKeyword(rec.URL)

	add(short)
	add(domain)
	add(longestWords(clean, 3))
	if short != "" && domain != "" {
		add(parser.Normalize(clean+" "+domain, candidateMaxLen))
	}
	if folder := rec.Group(); folder != "" && short != "" {
		add(parser.Normalize(folder+" "+clean, candidateMaxLen))
	}

	if len(out) == 1 {
		base := out[0]
		for i := 2; len(out) < 2; i++ {
			add(base + "-" + strconv.Itoa(i))
		}
	}
	return out
}

// cleanTitle drops bracketed noise and separators from a page title.
func cleanTitle(title string) string {
	clean := bracketed.ReplaceAllString(title, " ")
	clean = strings.Map(func(r rune) rune {
		switch r {
		case '|', '_', '+', '@', '#', '!', '?', ',', ';', ':', '*', '/', '·', '–', '—':
			return ' '
		}
		return r
	}, clean)
	return strings.Join(strings.Fields(clean), " ")
}

// domainKeyword returns the site keyword of rawURL, or owner-repo for
// code-hosting sites.
func domainKeyword(rawURL string) string {
	keyword := parser.HostKeyword(rawURL)
	if keyword == "" {
		return ""
	}
	if codeHosts[keyword] {
		if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
			segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
			if len(segments) >= 2 {
				return parser.Normalize(segments[0]+" "+segments[1], candidateMaxLen)
			}
		}
	}
	return parser.Normalize(keyword, candidateMaxLen)
}

// longestWords joins the n longest words of title when it has more than n
// words; shorter titles are already covered by the cleaned-title candidate.
func longestWords(title string, n int) string {
	words := strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) <= n {
		return ""
	}
	sort.SliceStable(words, func(i, j int) bool {
		return len([]rune(words[i])) > len([]rune(words[j]))
	})
	return parser.Normalize(strings.Join(words[:n], " "), candidateMaxLen)
}

// urlText is the matchable text of a url: host without "www." plus path.
func urlText(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.") + " " + u.Path
}
