package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/parser"
	"github.com/teranos/shelf/unit"
)

// stubAnalyzer is a configurable analyzer double.
type stubAnalyzer struct {
	reentrant bool
	fail      error
	drop      int // suggestions to leave out
	release   chan struct{}

	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
}

func (s *stubAnalyzer) Configure(unit.Options) error { return nil }

func (s *stubAnalyzer) Describe() unit.Descriptor {
	return unit.Descriptor{Name: "stub-analyzer", Version: "0.0.1"}
}

func (s *stubAnalyzer) Reentrant() bool { return s.reentrant }

func (s *stubAnalyzer) Execute(ctx context.Context, args unit.Args) (any, error) {
	s.calls.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if s.release != nil {
		<-s.release
	}
	if s.fail != nil {
		return nil, s.fail
	}

	records := args.Input.([]parser.FlatRecord)
	out := make([]analyzer.Suggestion, 0, len(records))
	for _, r := range records[:len(records)-s.drop] {
		out = append(out, analyzer.Suggestion{URL: r.URL, Category: "stub", Group: "stub"})
	}
	return out, nil
}

type memSink struct {
	mu      sync.Mutex
	records map[string]parser.FlatRecord
	fail    error
}

func (m *memSink) Persist(_ context.Context, records []parser.FlatRecord, _ []analyzer.Suggestion) (int, error) {
	if m.fail != nil {
		return 0, m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]parser.FlatRecord)
	}
	for _, r := range records {
		m.records[r.URL] = r
	}
	return len(records), nil
}

func newTestRegistry(t *testing.T, analyzerUnit unit.Unit) *unit.Registry {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	reg := unit.NewRegistry("0.1.0", log)
	require.NoError(t, reg.Register(parser.Name, parser.New(log)))
	if analyzerUnit != nil {
		require.NoError(t, reg.Register(analyzer.Name, analyzerUnit))
	}
	return reg
}

func devTree() *parser.Node {
	return &parser.Node{
		Title: "Dev",
		Children: []*parser.Node{
			{Title: "Repo", URL: "https://git.example/a"},
			{Title: "Repo", URL: "https://git.example/b"},
		},
	}
}

func threeRecordTree() *parser.Node {
	return &parser.Node{
		Children: []*parser.Node{
			{Title: "Go", URL: "https://go.dev"},
			{Title: "Docs", Children: []*parser.Node{
				{Title: "React", URL: "https://react.dev"},
				{Title: "Broken", URL: "::nope"},
			}},
			{Title: "NAS", URL: "https://www.synology.com"},
		},
	}
}

func TestProcess_DevScenario(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	orch := NewOrchestrator(newTestRegistry(t, analyzer.New()),
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithMetrics(metrics))

	res, err := orch.Process(context.Background(), devTree(), ProcessOptions{})
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.ParsedCount)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "repo", res.Records[0].Alias)
	assert.Equal(t, []string{"Dev"}, res.Records[0].Path)
	assert.Equal(t, "https://git.example/a", res.Records[0].URL)
	assert.Equal(t, "repo-2", res.Records[1].Alias)
	assert.Equal(t, "https://git.example/b", res.Records[1].URL)

	require.Len(t, res.Suggestions, len(res.Records))
	assert.Equal(t, 2, res.SuggestionCount)
	for i := range res.Records {
		assert.Equal(t, res.Records[i].URL, res.Suggestions[i].URL)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RecordsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SuggestionsTotal))
}

func TestProcess_EmptyTree(t *testing.T) {
	stub := &stubAnalyzer{}
	orch := NewOrchestrator(newTestRegistry(t, stub))

	res, err := orch.Process(context.Background(), &parser.Node{Children: []*parser.Node{}}, ProcessOptions{})
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 0, res.ParsedCount)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.NotNil(t, res.Suggestions)
	assert.Empty(t, res.Suggestions)
	assert.Equal(t, int32(0), stub.calls.Load(), "analyzer must not run on an empty parse")
}

func TestProcess_PartialSuccess(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	stub := &stubAnalyzer{fail: errors.New("classifier offline")}
	orch := NewOrchestrator(newTestRegistry(t, stub), WithMetrics(metrics))

	res, err := orch.Process(context.Background(), threeRecordTree(), ProcessOptions{})
	require.Error(t, err)
	require.NotNil(t, res, "parsed records must survive an analyzer failure")

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 3, res.ParsedCount)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, 1, res.Skipped)
	assert.Nil(t, res.Suggestions)

	assert.True(t, errors.Is(err, errors.ErrAnalysisFailed))
	assert.True(t, errors.Is(err, errors.ErrExecution))
	assert.Equal(t, errors.StageAnalyze, errors.StageOf(err))
	assert.Equal(t, analyzer.Name, errors.UnitOf(err))
	assert.Contains(t, err.Error(), "classifier offline")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(OutcomeAnalysisFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MalformedNodesTotal))
}

func TestProcess_BrokenJoin(t *testing.T) {
	orch := NewOrchestrator(newTestRegistry(t, &stubAnalyzer{drop: 1}))

	res, err := orch.Process(context.Background(), threeRecordTree(), ProcessOptions{})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.Records, 3)
	assert.True(t, errors.Is(err, errors.ErrAnalysisFailed))
	assert.Contains(t, err.Error(), "2 suggestions for 3 records")
}

func TestProcess_ParseFailure(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	stub := &stubAnalyzer{}
	reg := newTestRegistry(t, stub)
	require.NoError(t, reg.Configure(parser.Name, unit.Options{"max_depth": 1}))
	orch := NewOrchestrator(reg, WithMetrics(metrics))

	tree := &parser.Node{Title: "a", Children: []*parser.Node{
		{Title: "b", Children: []*parser.Node{{Title: "x", URL: "https://x.example"}}},
	}}

	res, err := orch.Process(context.Background(), tree, ProcessOptions{})
	require.Error(t, err)
	assert.Nil(t, res, "parse failures return no partial result")
	assert.True(t, errors.Is(err, errors.ErrMaxDepthExceeded))
	assert.True(t, errors.Is(err, errors.ErrExecution))
	assert.False(t, errors.Is(err, errors.ErrAnalysisFailed))
	assert.Equal(t, errors.StageParse, errors.StageOf(err))
	assert.Equal(t, parser.Name, errors.UnitOf(err))
	assert.Equal(t, int32(0), stub.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(OutcomeParseFailed)))
}

func TestProcess_MissingUnits(t *testing.T) {
	t.Run("parser", func(t *testing.T) {
		reg := unit.NewRegistry("0.1.0", zaptest.NewLogger(t).Sugar())
		orch := NewOrchestrator(reg)

		res, err := orch.Process(context.Background(), devTree(), ProcessOptions{})
		require.Error(t, err)
		assert.Nil(t, res)
		assert.True(t, errors.IsNotFoundError(err))
		assert.Equal(t, errors.StageRegistry, errors.StageOf(err))
		assert.Equal(t, parser.Name, errors.UnitOf(err))
	})

	t.Run("analyzer", func(t *testing.T) {
		orch := NewOrchestrator(newTestRegistry(t, nil))

		res, err := orch.Process(context.Background(), devTree(), ProcessOptions{})
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Len(t, res.Records, 2)
		assert.True(t, errors.IsNotFoundError(err))
		assert.True(t, errors.Is(err, errors.ErrAnalysisFailed))
		assert.Equal(t, errors.StageRegistry, errors.StageOf(err))
		assert.Equal(t, analyzer.Name, errors.UnitOf(err))
	})
}

func TestProcess_SkipAnalysis(t *testing.T) {
	stub := &stubAnalyzer{}
	orch := NewOrchestrator(newTestRegistry(t, stub))

	res, err := orch.Process(context.Background(), devTree(), ProcessOptions{SkipAnalysis: true})
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Len(t, res.Records, 2)
	assert.Nil(t, res.Suggestions)
	assert.Equal(t, int32(0), stub.calls.Load())
}

func TestProcess_Persist(t *testing.T) {
	t.Run("stores records", func(t *testing.T) {
		sink := &memSink{}
		orch := NewOrchestrator(newTestRegistry(t, analyzer.New()), WithSink(sink))
		assert.True(t, orch.HasSink())

		res, err := orch.Process(context.Background(), devTree(), ProcessOptions{Persist: true})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Persisted)
		assert.Contains(t, sink.records, "https://git.example/a")
		assert.Contains(t, sink.records, "https://git.example/b")
	})

	t.Run("no sink", func(t *testing.T) {
		orch := NewOrchestrator(newTestRegistry(t, analyzer.New()))
		assert.False(t, orch.HasSink())

		res, err := orch.Process(context.Background(), devTree(), ProcessOptions{Persist: true})
		require.Error(t, err)
		assert.Nil(t, res)
		assert.True(t, errors.IsInvalidRequestError(err))
		assert.Equal(t, errors.StagePersist, errors.StageOf(err))
	})

	t.Run("sink failure", func(t *testing.T) {
		orch := NewOrchestrator(newTestRegistry(t, analyzer.New()), WithSink(&memSink{fail: errors.New("disk full")}))

		res, err := orch.Process(context.Background(), devTree(), ProcessOptions{Persist: true})
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Equal(t, StateFailed, res.State)
		assert.Len(t, res.Suggestions, 2)
		assert.Equal(t, errors.StagePersist, errors.StageOf(err))
		assert.False(t, errors.Is(err, errors.ErrAnalysisFailed))
	})
}

func TestAnalyze(t *testing.T) {
	orch := NewOrchestrator(newTestRegistry(t, analyzer.New()))
	records := []parser.FlatRecord{{URL: "https://go.dev/doc", Title: "Go docs", Path: []string{}, Alias: "go-docs"}}

	suggestions, err := orch.Analyze(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "https://go.dev/doc", suggestions[0].URL)

	suggestions, err = orch.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, suggestions)

	failing := NewOrchestrator(newTestRegistry(t, &stubAnalyzer{fail: errors.New("boom")}))
	_, err = failing.Analyze(context.Background(), records)
	require.Error(t, err)
	assert.Equal(t, errors.StageAnalyze, errors.StageOf(err))
	assert.False(t, errors.Is(err, errors.ErrAnalysisFailed))
}

func TestParse(t *testing.T) {
	orch := NewOrchestrator(newTestRegistry(t, nil))

	res, err := orch.Parse(context.Background(), `{"title":"Dev","children":[{"title":"Repo","url":"https://git.example/a"}]}`)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ParsedCount)

	_, err = orch.Parse(context.Background(), `{"title":`)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Equal(t, errors.StageParse, errors.StageOf(err))
}

func TestWithUnitNames(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	reg := unit.NewRegistry("0.1.0", log)
	require.NoError(t, reg.Register("html-parser", parser.New(log)))
	stub := &stubAnalyzer{}
	require.NoError(t, reg.Register("stub", stub))

	orch := NewOrchestrator(reg, WithUnitNames("html-parser", "stub"))
	res, err := orch.Process(context.Background(), devTree(), ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, "stub", res.Suggestions[0].Category)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestOrchestrator_SerializesNonReentrantUnits(t *testing.T) {
	stub := &stubAnalyzer{release: make(chan struct{})}
	orch := NewOrchestrator(newTestRegistry(t, stub))
	records := []parser.FlatRecord{{URL: "https://a.example", Alias: "a"}}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Analyze(context.Background(), records)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return stub.active.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), stub.active.Load())

	close(stub.release)
	wg.Wait()
	assert.Equal(t, int32(4), stub.calls.Load())
	assert.Equal(t, int32(1), stub.peak.Load())
	assert.Equal(t, 0, orch.locks.size())
}

func TestOrchestrator_ReentrantUnitsRunConcurrently(t *testing.T) {
	stub := &stubAnalyzer{reentrant: true, release: make(chan struct{})}
	orch := NewOrchestrator(newTestRegistry(t, stub))
	records := []parser.FlatRecord{{URL: "https://a.example", Alias: "a"}}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Analyze(context.Background(), records)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return stub.active.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(stub.release)
	wg.Wait()
	assert.Equal(t, int32(2), stub.peak.Load())
}

func TestOrchestrator_LockWaitHonorsContext(t *testing.T) {
	stub := &stubAnalyzer{release: make(chan struct{})}
	orch := NewOrchestrator(newTestRegistry(t, stub))
	records := []parser.FlatRecord{{URL: "https://a.example", Alias: "a"}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = orch.Analyze(context.Background(), records)
	}()
	require.Eventually(t, func() bool { return stub.active.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := orch.Analyze(ctx, records)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, errors.StageAnalyze, errors.StageOf(err))

	close(stub.release)
	<-done
	assert.Equal(t, int32(1), stub.calls.Load())
	assert.Equal(t, 0, orch.locks.size())
}

func TestCheckJoin(t *testing.T) {
	records := []parser.FlatRecord{{URL: "a"}, {URL: "b"}}

	assert.NoError(t, checkJoin(records, []analyzer.Suggestion{{URL: "a"}, {URL: "b"}}))
	assert.Error(t, checkJoin(records, []analyzer.Suggestion{{URL: "a"}}))
	assert.Error(t, checkJoin(records, []analyzer.Suggestion{{URL: "b"}, {URL: "a"}}))
	assert.NoError(t, checkJoin(nil, nil))
}

func TestParseResultOf(t *testing.T) {
	res, err := parseResultOf([]parser.FlatRecord{{URL: "a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ParsedCount)

	res, err = parseResultOf(parser.Result{ParsedCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ParsedCount)

	_, err = parseResultOf((*parser.Result)(nil))
	assert.Error(t, err)
	_, err = parseResultOf("nope")
	assert.Error(t, err)
}
