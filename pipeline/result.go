package pipeline

import (
	"context"

	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/parser"
)

// State is the position of a run in the pipeline state machine:
// parsing → analyzing → done, or failed from either stage.
type State string

const (
	StateParsing   State = "parsing"
	StateAnalyzing State = "analyzing"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Result is the combined output of one Process call.
type Result struct {
	RunID string `json:"runId"`
	State State  `json:"state"`

	Records     []parser.FlatRecord   `json:"records"`
	Suggestions []analyzer.Suggestion `json:"suggestions"`

	ParsedCount     int                `json:"parsedCount"`
	SuggestionCount int                `json:"suggestionCount"`
	Skipped         int                `json:"skipped"`
	Malformed       []parser.Malformed `json:"malformed,omitempty"`
	Persisted       int                `json:"persisted,omitempty"`
}

// ProcessOptions tune a single Process call.
type ProcessOptions struct {
	// SkipAnalysis stops after parsing; Suggestions stays nil.
	SkipAnalysis bool
	// Persist hands the records to the configured Sink after the run.
	Persist bool

	ParseFlags   []string
	AnalyzeFlags []string
}

// Sink is the persistence collaborator. Persist must make the records
// retrievable by url once it returns nil; suggestions may be nil when
// analysis was skipped. It returns the number of records stored.
type Sink interface {
	Persist(ctx context.Context, records []parser.FlatRecord, suggestions []analyzer.Suggestion) (int, error)
}
