// Package pipeline composes the parser and analyzer units into one import
// operation.
//
// Parsing is all-or-nothing: a parse failure returns no Result. Analysis is
// partial-success: when the analyzer fails, the parsed records are still
// returned together with an error matching errors.ErrAnalysisFailed. Units
// are looked up by name in the injected Registry on every run, so they can
// be swapped without touching the orchestrator. Nothing is retried.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/parser"
	"github.com/teranos/shelf/unit"
)

// Orchestrator runs parse → analyze (→ persist) against a unit registry.
type Orchestrator struct {
	registry     *unit.Registry
	parserName   string
	analyzerName string
	sink         Sink
	metrics      *Metrics
	logger       *zap.SugaredLogger
	locks        *unitLocks
	now          func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *Orchestrator) { o.logger = logger.OrNop(log) }
}

// WithMetrics records run metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSink sets the persistence collaborator used when ProcessOptions.Persist is set.
func WithSink(s Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithUnitNames overrides the registry names of the parser and analyzer.
// Empty names keep the defaults.
func WithUnitNames(parserName, analyzerName string) Option {
	return func(o *Orchestrator) {
		if parserName != "" {
			o.parserName = parserName
		}
		if analyzerName != "" {
			o.analyzerName = analyzerName
		}
	}
}

// NewOrchestrator creates an orchestrator over reg.
func NewOrchestrator(reg *unit.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:     reg,
		parserName:   parser.Name,
		analyzerName: analyzer.Name,
		logger:       zap.NewNop().Sugar(),
		locks:        newUnitLocks(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HasSink reports whether a persistence collaborator is configured.
func (o *Orchestrator) HasSink() bool { return o.sink != nil }

// Process parses input, analyzes the records and optionally persists them.
//
// A parse failure returns (nil, err) with err tagged StageParse (or
// StageRegistry when the parser is not registered). An analyzer failure
// returns the Result with its records, State failed, and an error matching
// errors.ErrAnalysisFailed tagged StageAnalyze. A persistence failure returns
// the Result with an error tagged StagePersist.
func (o *Orchestrator) Process(ctx context.Context, input any, po ProcessOptions) (*Result, error) {
	if po.Persist && o.sink == nil {
		return nil, errors.WithStage(
			errors.NewInvalidRequestError("persistence requested but no sink is configured"),
			errors.StagePersist, "")
	}

	res := &Result{RunID: uuid.NewString(), State: StateParsing}
	ctx = logger.WithRunID(ctx, res.RunID)
	log := logger.FromContext(ctx, o.logger)
	start := o.now()

	parsed, err := o.parse(ctx, input, po.ParseFlags)
	if err != nil {
		o.metrics.recordRun(OutcomeParseFailed)
		log.Warnw("Pipeline parse stage failed",
			logger.FieldStage, errors.StageOf(err),
			logger.FieldUnit, o.parserName,
			logger.FieldError, err)
		return nil, err
	}
	res.Records = parsed.Records
	if res.Records == nil {
		res.Records = []parser.FlatRecord{}
	}
	res.ParsedCount = parsed.ParsedCount
	res.Skipped = parsed.Skipped
	res.Malformed = parsed.Malformed

	switch {
	case res.ParsedCount == 0:
		res.Suggestions = []analyzer.Suggestion{}
	case !po.SkipAnalysis:
		o.transition(log, res, StateAnalyzing)
		suggestions, err := o.analyze(ctx, res.Records, po.AnalyzeFlags)
		if err != nil {
			o.transition(log, res, StateFailed)
			o.metrics.recordRun(OutcomeAnalysisFailed)
			log.Warnw("Pipeline analyze stage failed, returning parsed records",
				logger.FieldParsed, res.ParsedCount,
				logger.FieldError, err)
			return res, tagStage(errors.Mark(err, errors.ErrAnalysisFailed), errors.StageAnalyze, o.analyzerName)
		}
		res.Suggestions = suggestions
		res.SuggestionCount = len(suggestions)
	}

	if po.Persist && len(res.Records) > 0 {
		stageStart := o.now()
		n, err := o.sink.Persist(ctx, res.Records, res.Suggestions)
		o.metrics.observeStage(errors.StagePersist, o.now().Sub(stageStart))
		res.Persisted = n
		if err != nil {
			o.transition(log, res, StateFailed)
			o.metrics.recordRun(OutcomePersistFailed)
			log.Warnw("Pipeline persist stage failed", logger.FieldError, err)
			return res, errors.WithStage(errors.Wrap(err, "persist records"), errors.StagePersist, "")
		}
	}

	o.transition(log, res, StateDone)
	o.metrics.recordRun(OutcomeSuccess)
	log.Infow("Pipeline run finished",
		logger.FieldParsed, res.ParsedCount,
		logger.FieldSkipped, res.Skipped,
		logger.FieldSuggestions, res.SuggestionCount,
		"persisted", res.Persisted,
		logger.FieldDurationMS, o.now().Sub(start).Milliseconds())
	return res, nil
}

// Parse runs only the parser unit. Errors are tagged like Process's.
func (o *Orchestrator) Parse(ctx context.Context, input any, flags ...string) (*parser.Result, error) {
	return o.parse(ctx, input, flags)
}

// Analyze runs only the analyzer unit over records already flattened by a
// caller. Errors are tagged StageAnalyze (or StageRegistry).
func (o *Orchestrator) Analyze(ctx context.Context, records []parser.FlatRecord, flags ...string) ([]analyzer.Suggestion, error) {
	if records == nil {
		records = []parser.FlatRecord{}
	}
	suggestions, err := o.analyze(ctx, records, flags)
	if err != nil {
		return nil, tagStage(err, errors.StageAnalyze, o.analyzerName)
	}
	return suggestions, nil
}

func (o *Orchestrator) parse(ctx context.Context, input any, flags []string) (*parser.Result, error) {
	start := o.now()
	out, err := o.run(ctx, o.parserName, unit.Args{Flags: flags, Input: input})
	o.metrics.observeStage(errors.StageParse, o.now().Sub(start))
	if err != nil {
		return nil, tagStage(err, errors.StageParse, o.parserName)
	}

	res, err := parseResultOf(out)
	if err != nil {
		return nil, errors.WithStage(err, errors.StageParse, o.parserName)
	}
	o.metrics.recordParse(res.ParsedCount, len(res.Malformed))
	return res, nil
}

// analyze runs the analyzer and checks that its output joins 1:1 with
// records. Errors are returned untagged.
func (o *Orchestrator) analyze(ctx context.Context, records []parser.FlatRecord, flags []string) ([]analyzer.Suggestion, error) {
	start := o.now()
	out, err := o.run(ctx, o.analyzerName, unit.Args{Flags: flags, Input: records})
	o.metrics.observeStage(errors.StageAnalyze, o.now().Sub(start))
	if err != nil {
		return nil, err
	}

	suggestions, ok := out.([]analyzer.Suggestion)
	if !ok {
		return nil, errors.Newf("unit %s returned %T, want []analyzer.Suggestion", o.analyzerName, out)
	}
	if err := checkJoin(records, suggestions); err != nil {
		return nil, err
	}
	o.metrics.recordSuggestions(len(suggestions))
	return suggestions, nil
}

// run executes name through the registry, holding the unit's lock unless
// the unit declares itself reentrant.
func (o *Orchestrator) run(ctx context.Context, name string, args unit.Args) (any, error) {
	if u, ok := o.registry.Get(name); ok && !unit.IsReentrant(u) {
		release, err := o.locks.acquire(ctx, name)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	return o.registry.Run(ctx, name, args)
}

func (o *Orchestrator) transition(log *zap.SugaredLogger, res *Result, next State) {
	log.Debugw("Pipeline state change", logger.FieldState, next, "from", res.State)
	res.State = next
}

// checkJoin verifies one suggestion per record, in record order.
func checkJoin(records []parser.FlatRecord, suggestions []analyzer.Suggestion) error {
	if len(suggestions) != len(records) {
		return errors.Newf("analyzer returned %d suggestions for %d records", len(suggestions), len(records))
	}
	for i := range records {
		if suggestions[i].URL != records[i].URL {
			return errors.Newf("suggestion %d is for %q, want %q", i, suggestions[i].URL, records[i].URL)
		}
	}
	return nil
}

func parseResultOf(out any) (*parser.Result, error) {
	switch v := out.(type) {
	case *parser.Result:
		if v != nil {
			return v, nil
		}
	case parser.Result:
		return &v, nil
	case []parser.FlatRecord:
		return &parser.Result{Records: v, ParsedCount: len(v)}, nil
	}
	return nil, errors.Newf("parser returned %T, want *parser.Result", out)
}

// tagStage attaches stage and unit unless err already names a stage.
func tagStage(err error, stage errors.Stage, unitName string) error {
	if errors.StageOf(err) != "" {
		return err
	}
	return errors.WithStage(err, stage, unitName)
}
