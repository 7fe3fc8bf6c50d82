package analyzer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/parser"
)

var csvHeader = []string{
	"title", "url", "folder", "alias",
	"alias_1", "alias_2", "alias_3",
	"category", "group", "score",
}

// WriteCSV writes one row per record joined with its suggestion.
// Records without a suggestion get empty suggestion columns.
func WriteCSV(w io.Writer, records []parser.FlatRecord, suggestions []Suggestion) error {
	joined := join(records, suggestions)

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for i, r := range records {
		s := joined[i]
		row := []string{
			r.Title, r.URL, strings.Join(r.Path, "/"), r.Alias,
			nth(s.AliasCandidates, 0), nth(s.AliasCandidates, 1), nth(s.AliasCandidates, 2),
			s.Category, s.Group, formatScore(s.Score),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "write csv row for %s", r.URL)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteText writes a human-readable report, one block per record.
func WriteText(w io.Writer, records []parser.FlatRecord, suggestions []Suggestion) error {
	joined := join(records, suggestions)
	rule := strings.Repeat("=", 50)

	for i, r := range records {
		s := joined[i]
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		folder := strings.Join(r.Path, "/")
		if folder == "" {
			folder = "(none)"
		}

		var b strings.Builder
		fmt.Fprintf(&b, "\n%s\nBookmark %d: %s\n%s\n", rule, i+1, title, rule)
		fmt.Fprintf(&b, "URL:      %s\n", r.URL)
		fmt.Fprintf(&b, "Folder:   %s\n", folder)
		fmt.Fprintf(&b, "Alias:    %s\n", r.Alias)
		b.WriteString("\nAlias candidates:\n")
		if len(s.AliasCandidates) == 0 {
			b.WriteString("   (none)\n")
		}
		for j, c := range s.AliasCandidates {
			fmt.Fprintf(&b, "   %d. %s\n", j+1, c)
		}
		fmt.Fprintf(&b, "\nCategory: %s\n", s.Category)
		fmt.Fprintf(&b, "Group:    %s\n", s.Group)

		if _, err := io.WriteString(w, b.String()); err != nil {
			return errors.Wrapf(err, "write report for %s", r.URL)
		}
	}
	return nil
}

// join pairs suggestions with records. Aligned slices pair by position,
// which keeps duplicate urls apart; anything else pairs by url.
func join(records []parser.FlatRecord, suggestions []Suggestion) []Suggestion {
	out := make([]Suggestion, len(records))
	if len(records) == len(suggestions) {
		aligned := true
		for i := range records {
			if records[i].URL != suggestions[i].URL {
				aligned = false
				break
			}
		}
		if aligned {
			copy(out, suggestions)
			return out
		}
	}

	byURL := make(map[string]Suggestion, len(suggestions))
	for _, s := range suggestions {
		if _, dup := byURL[s.URL]; !dup {
			byURL[s.URL] = s
		}
	}
	for i, r := range records {
		out[i] = byURL[r.URL]
	}
	return out
}

func nth(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}
	return ""
}

func formatScore(score float64) string {
	if score == 0 {
		return ""
	}
	return strconv.FormatFloat(score, 'f', 3, 64)
}
