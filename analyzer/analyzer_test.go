package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/parser"
	"github.com/teranos/shelf/unit"
)

func record(title, url, alias string, path ...string) parser.FlatRecord {
	if path == nil {
		path = []string{}
	}
	return parser.FlatRecord{Title: title, URL: url, Alias: alias, Path: path}
}

func TestAnalyze_Classification(t *testing.T) {
	tests := []struct {
		name     string
		rec      parser.FlatRecord
		category string
		group    string
	}{
		{
			name:     "ai tool by title and host",
			rec:      record("ChatGPT – OpenAI", "https://chat.openai.com", "chatgpt-openai"),
			category: "ai-tools",
			group:    "AI Tools",
		},
		{
			name:     "frontend beats dev host",
			rec:      record("React – A JavaScript library for building user interfaces", "https://react.dev", "react"),
			category: "frontend",
			group:    "Frontend",
		},
		{
			name:     "repo in dev folder",
			rec:      record("Repo", "https://git.example/a", "repo", "Dev"),
			category: "open-source",
			group:    "Open Source",
		},
		{
			name:     "chinese keyword without word boundaries",
			rec:      record("人工智能导航", "https://nav.example.cn", "人工智能导航"),
			category: "ai-tools",
			group:    "AI Tools",
		},
		{
			name:     "keywords match whole words only",
			rec:      record("Email client", "https://mail.example.org", "email-client"),
			category: DefaultFallbackCategory,
			group:    DefaultFallbackGroup,
		},
		{
			name:     "unclassifiable falls back",
			rec:      record("Grandma's recipes", "https://recipes.example.org", "grandma-s-recipes"),
			category: DefaultFallbackCategory,
			group:    DefaultFallbackGroup,
		},
	}

	cfg := DefaultConfig()
	policy := NewKeywordPolicy(cfg.Taxonomy, cfg.UsePath)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Analyze(context.Background(), []parser.FlatRecord{tt.rec}, cfg, policy)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tt.rec.URL, out[0].URL)
			assert.Equal(t, tt.category, out[0].Category)
			assert.Equal(t, tt.group, out[0].Group)
		})
	}
}

func TestAnalyze_JoinCompleteness(t *testing.T) {
	records := []parser.FlatRecord{
		record("Repo", "https://git.example/a", "repo", "Dev"),
		record("Repo", "https://git.example/b", "repo-2", "Dev"),
		record("", "file:///tmp/notes.txt", "bookmark"),
		record("Grandma's recipes", "https://recipes.example.org", "grandma-s-recipes"),
	}

	cfg := DefaultConfig()
	out, err := Analyze(context.Background(), records, cfg, NewKeywordPolicy(cfg.Taxonomy, true))
	require.NoError(t, err)

	require.Len(t, out, len(records))
	for i := range records {
		assert.Equal(t, records[i].URL, out[i].URL)
		assert.NotEmpty(t, out[i].Category)
		assert.NotContains(t, out[i].AliasCandidates, records[i].Alias)
	}
	assert.Empty(t, out[2].AliasCandidates)
	assert.NotNil(t, out[2].AliasCandidates)
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	out, err := Analyze(ctx, []parser.FlatRecord{record("x", "https://x.example", "x")}, cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, out)
}

type stubPolicy struct{ scores []Score }

func (s stubPolicy) Score(Document) []Score { return s.scores }

func TestUnit_Execute(t *testing.T) {
	t.Run("records in, suggestions out", func(t *testing.T) {
		u := New(WithLogger(zaptest.NewLogger(t).Sugar()))
		records := []parser.FlatRecord{
			record("Repo", "https://git.example/a", "repo", "Dev"),
			record("Go", "https://go.dev", "go"),
		}

		out, err := u.Execute(context.Background(), unit.Args{Input: records})
		require.NoError(t, err)

		suggestions, ok := out.([]Suggestion)
		require.True(t, ok)
		require.Len(t, suggestions, 2)
		assert.Equal(t, "https://go.dev", suggestions[1].URL)
	})

	t.Run("parse result and json input", func(t *testing.T) {
		u := New()
		res := &parser.Result{Records: []parser.FlatRecord{record("Repo", "https://git.example/a", "repo")}, ParsedCount: 1}

		out, err := u.Execute(context.Background(), unit.Args{Input: res})
		require.NoError(t, err)
		assert.Len(t, out, 1)

		out, err = u.Execute(context.Background(), unit.Args{
			Input: `[{"url":"https://a.example","title":"A","path":[],"alias":"a"}]`,
		})
		require.NoError(t, err)
		assert.Len(t, out, 1)
	})

	t.Run("bad input", func(t *testing.T) {
		_, err := New().Execute(context.Background(), unit.Args{Input: `{"records": 3}`})
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
		assert.True(t, errors.Is(err, errors.ErrExecution))
	})

	t.Run("oversized reader", func(t *testing.T) {
		body := strings.NewReader(strings.Repeat(" ", parser.DefaultMaxDocumentBytes+1))
		_, err := New().Execute(context.Background(), unit.Args{Input: body})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrTooLarge))
		assert.Contains(t, errors.FlattenHints(err), "max_document_bytes")
	})

	t.Run("no-path flag", func(t *testing.T) {
		u := New()
		rec := record("Something", "https://x.example", "something", "Cloud")

		out, err := u.Execute(context.Background(), unit.Args{Input: []parser.FlatRecord{rec}})
		require.NoError(t, err)
		assert.Equal(t, "cloud", out.([]Suggestion)[0].Category)

		out, err = u.Execute(context.Background(), unit.Args{Input: []parser.FlatRecord{rec}, Flags: []string{FlagNoPath}})
		require.NoError(t, err)
		assert.Equal(t, DefaultFallbackCategory, out.([]Suggestion)[0].Category)
	})

	t.Run("custom policy", func(t *testing.T) {
		u := New(WithPolicy(stubPolicy{scores: []Score{{Category: "storage-nas", Score: 0.9}}}))

		out, err := u.Execute(context.Background(), unit.Args{Input: []parser.FlatRecord{record("x", "https://x.example", "x")}})
		require.NoError(t, err)
		s := out.([]Suggestion)[0]
		assert.Equal(t, "storage-nas", s.Category)
		assert.Equal(t, "Storage", s.Group)
		assert.InDelta(t, 0.9, s.Score, 1e-9)
	})

	t.Run("min score", func(t *testing.T) {
		u := New(WithPolicy(stubPolicy{scores: []Score{{Category: "cloud", Score: 0.3}}}))
		require.NoError(t, u.Configure(unit.Options{"min_score": 0.5, "fallback_category": "misc", "fallback_group": "Misc"}))

		out, err := u.Execute(context.Background(), unit.Args{Input: []parser.FlatRecord{record("x", "https://x.example", "x")}})
		require.NoError(t, err)
		s := out.([]Suggestion)[0]
		assert.Equal(t, "misc", s.Category)
		assert.Equal(t, "Misc", s.Group)
	})
}

func TestUnit_Configure(t *testing.T) {
	invalid := []struct {
		name string
		opts unit.Options
	}{
		{"too many candidates", unit.Options{"max_candidates": 4}},
		{"too few candidates", unit.Options{"max_candidates": 1}},
		{"score out of range", unit.Options{"min_score": 1.5}},
		{"empty fallback", unit.Options{"fallback_category": ""}},
		{"use_path not bool", unit.Options{"use_path": "yes"}},
		{"both taxonomy sources", unit.Options{"taxonomy": DefaultTaxonomy(), "taxonomy_file": "x.yaml"}},
		{"taxonomy without keywords", unit.Options{"taxonomy": []Category{{Name: "empty"}}}},
		{"missing taxonomy file", unit.Options{"taxonomy_file": "/nonexistent/taxonomy.yaml"}},
		{"unknown option", unit.Options{"use_ai": true}},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			u := New()
			err := u.Configure(tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig), "got %v", err)
			assert.Equal(t, DefaultConfig(), u.Config())
		})
	}

	t.Run("inline taxonomy from decoded json", func(t *testing.T) {
		u := New()
		err := u.Configure(unit.Options{"taxonomy": []any{
			map[string]any{"name": "recipes", "keywords": []any{"recipe", "recipes"}, "groups": []any{"Kitchen"}},
		}})
		require.NoError(t, err)

		out, err := u.Execute(context.Background(), unit.Args{Input: []parser.FlatRecord{
			record("Grandma's recipes", "https://recipes.example.org", "grandma-s-recipes"),
		}})
		require.NoError(t, err)
		s := out.([]Suggestion)[0]
		assert.Equal(t, "recipes", s.Category)
		assert.Equal(t, "Kitchen", s.Group)
	})

	t.Run("taxonomy file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "taxonomy.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
[[categories]]
name = "recipes"
keywords = ["recipes"]
groups = ["Kitchen"]
`), 0o644))

		u := New()
		require.NoError(t, u.Configure(unit.Options{"taxonomy_file": path}))
		assert.Equal(t, path, u.Config().TaxonomyFile)
		assert.True(t, u.Config().Taxonomy.Has("recipes"))
	})

	t.Run("custom policy survives taxonomy change", func(t *testing.T) {
		u := New(WithPolicy(stubPolicy{scores: []Score{{Category: "x", Score: 1}}}))
		require.NoError(t, u.Configure(unit.Options{"taxonomy": []Category{{Name: "x", Keywords: []string{"x"}}}}))

		out, err := u.Execute(context.Background(), unit.Args{Input: []parser.FlatRecord{record("y", "https://y.example", "y")}})
		require.NoError(t, err)
		assert.Equal(t, "x", out.([]Suggestion)[0].Category)
	})
}

func TestUnit_ThroughRegistry(t *testing.T) {
	reg := unit.NewRegistry("0.1.0", zaptest.NewLogger(t).Sugar())
	require.NoError(t, reg.Register(Name, New()))

	out, err := reg.Run(context.Background(), Name, unit.Args{Input: []parser.FlatRecord{record("Go docs", "https://go.dev/doc", "go-docs")}})
	require.NoError(t, err)
	assert.Equal(t, "documentation", out.([]Suggestion)[0].Category)

	require.NoError(t, ConfigureThrough(reg, Name)(Taxonomy{Categories: []Category{{Name: "golang", Keywords: []string{"go"}}}}))

	out, err = reg.Run(context.Background(), Name, unit.Args{Input: []parser.FlatRecord{record("Go docs", "https://go.dev/doc", "go-docs")}})
	require.NoError(t, err)
	assert.Equal(t, "golang", out.([]Suggestion)[0].Category)
	assert.Equal(t, "golang", out.([]Suggestion)[0].Group)
}
