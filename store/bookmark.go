package store

import (
	"sort"
	"strings"
	"time"

	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/parser"
)

// Bookmark is a stored bookmark, keyed by URL.
type Bookmark struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Alias           string    `json:"alias,omitempty"`
	Path            []string  `json:"path"`
	Tags            []string  `json:"tags"`
	Category        string    `json:"category,omitempty"`
	Group           string    `json:"group,omitempty"`
	AliasCandidates []string  `json:"aliasCandidates,omitempty"`
	Score           float64   `json:"score,omitempty"`
	Description     string    `json:"description,omitempty"`
	Date            string    `json:"date,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Title    *string
	Alias    *string
	Category *string
	Group    *string
	Tags     []string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Alias == nil && p.Category == nil && p.Group == nil && p.Tags == nil
}

// FromRecord builds a bookmark from a parsed record and its suggestion
// (which may be nil). Folder names become tags.
func FromRecord(rec parser.FlatRecord, s *analyzer.Suggestion) Bookmark {
	b := Bookmark{
		URL:         rec.URL,
		Title:       rec.Title,
		Alias:       rec.Alias,
		Path:        rec.Path,
		Tags:        NormalizeTags(rec.Path),
		Description: rec.Description,
		Date:        rec.Date,
	}
	if s != nil {
		b.Category = s.Category
		b.Group = s.Group
		b.AliasCandidates = s.AliasCandidates
		b.Score = s.Score
	}
	return b
}

// NormalizeTags lower-cases, trims and de-duplicates tags, sorted.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
