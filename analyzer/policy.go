package analyzer

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/cloudflare/ahocorasick"

	"github.com/teranos/shelf/parser"
)

// Document is what a Policy sees of one record.
type Document struct {
	Title string
	URL   string
	Path  []string
}

// Score is a policy's confidence that a document belongs to a category.
type Score struct {
	Category string   `json:"category"`
	Score    float64  `json:"score"`
	Matched  []string `json:"matched,omitempty"`
}

// Policy classifies documents. Implementations must be safe for concurrent
// use and return scores sorted best first.
type Policy interface {
	Score(doc Document) []Score
}

// Scoring weights for KeywordPolicy.
const (
	tfWeight       = 0.7
	coverageWeight = 0.3
	// hits at which the frequency term saturates
	tfSaturation = 3
)

// KeywordPolicy scores categories by keyword hits found in the title, the
// url and (optionally) the folder path, using a single Aho-Corasick pass
// per field.
type KeywordPolicy struct {
	taxonomy Taxonomy
	usePath  bool

	// patterns[i] is the normalized keyword for automaton index i and
	// owners[i] the categories (by index) that list it.
	patterns []string
	owners   [][]int
	totals   []int // distinct usable keywords per category

	mu      sync.Mutex // ahocorasick.Matcher.Match keeps per-call state
	matcher *ahocorasick.Matcher
}

// NewKeywordPolicy builds the automaton for t.
func NewKeywordPolicy(t Taxonomy, usePath bool) *KeywordPolicy {
	p := &KeywordPolicy{
		taxonomy: t,
		usePath:  usePath,
		totals:   make([]int, len(t.Categories)),
	}

	index := make(map[string]int)
	for ci, c := range t.Categories {
		seen := make(map[string]bool)
		for _, kw := range c.Keywords {
			pattern := keywordPattern(kw)
			if pattern == "" || seen[pattern] {
				continue
			}
			seen[pattern] = true
			p.totals[ci]++

			idx, ok := index[pattern]
			if !ok {
				idx = len(p.patterns)
				index[pattern] = idx
				p.patterns = append(p.patterns, pattern)
				p.owners = append(p.owners, nil)
			}
			p.owners[idx] = append(p.owners[idx], ci)
		}
	}
	if len(p.patterns) > 0 {
		p.matcher = ahocorasick.NewStringMatcher(p.patterns)
	}
	return p
}

// Score implements Policy. Categories without hits are omitted; ties keep
// taxonomy order.
func (p *KeywordPolicy) Score(doc Document) []Score {
	if p.matcher == nil {
		return nil
	}

	fields := []string{doc.Title, urlText(doc.URL)}
	if p.usePath {
		fields = append(fields, strings.Join(doc.Path, " "))
	}

	hits := make([]int, len(p.taxonomy.Categories))
	matched := make([]map[int]bool, len(p.taxonomy.Categories))
	for _, field := range fields {
		text := normalizeText(field)
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, idx := range p.match(text) {
			for _, ci := range p.owners[idx] {
				hits[ci]++
				if matched[ci] == nil {
					matched[ci] = make(map[int]bool)
				}
				matched[ci][idx] = true
			}
		}
	}

	var scores []Score
	for ci, c := range p.taxonomy.Categories {
		if hits[ci] == 0 || p.totals[ci] == 0 {
			continue
		}
		coverage := float64(len(matched[ci])) / float64(p.totals[ci])
		logTF := math.Min(1.0, math.Log1p(float64(hits[ci]))/math.Log1p(tfSaturation))

		keywords := make([]string, 0, len(matched[ci]))
		for idx := range matched[ci] {
			keywords = append(keywords, strings.TrimSpace(p.patterns[idx]))
		}
		sort.Strings(keywords)

		scores = append(scores, Score{
			Category: c.Name,
			Score:    logTF*tfWeight + coverage*coverageWeight,
			Matched:  keywords,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores
}

func (p *KeywordPolicy) match(text string) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.matcher.Match([]byte(text))
}

// normalizeKeyword lower-cases and trims a keyword.
func normalizeKeyword(kw string) string {
	return strings.ToLower(strings.TrimSpace(kw))
}

// keywordPattern turns a keyword into its automaton pattern. Keywords made
// of letters and digits separated by spaces are padded so they only match
// whole words; keywords in scripts written without spaces match anywhere.
func keywordPattern(kw string) string {
	kw = normalizeText(normalizeKeyword(kw))
	kw = strings.Join(strings.Fields(kw), " ")
	if kw == "" {
		return ""
	}
	if hasUnspacedScript(kw) {
		return kw
	}
	return " " + kw + " "
}

// normalizeText lower-cases text and replaces everything but letters and
// digits with single spaces, padding both ends.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(parser.RemoveAccents(text)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

func hasUnspacedScript(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Thai) {
			return true
		}
	}
	return false
}
