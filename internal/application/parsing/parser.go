// Package parsing is the application facade over the dose-instruction
// pipeline: normalize, extract entities, segment, interpret and build. It
// owns batch execution, per-input failure recovery and the optional
// cache, persistence and metrics decorators.
package parsing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/internal/intelligence/common"
	interp "github.com/turtacn/sigparse/internal/intelligence/sig_interpreter"
	"github.com/turtacn/sigparse/internal/intelligence/sig_segmenter"
	"github.com/turtacn/sigparse/internal/intelligence/sig_tagger"
	"github.com/turtacn/sigparse/pkg/errors"
)

// ============================================================================
// Modes & inputs
// ============================================================================

// Mode selects how ParseMany schedules inputs.
type Mode string

const (
	// ModeSequential parses one input at a time in order.
	ModeSequential Mode = "sequential"
	// ModeParallel parses on a fixed-size worker pool.
	ModeParallel Mode = "parallel"
	// ModeConcurrent starts every input at once and waits for all of them.
	ModeConcurrent Mode = "concurrent"
)

// ParseMode maps a configuration or flag value onto a Mode. Empty selects
// ModeSequential.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeParallel:
		return ModeParallel, nil
	case ModeConcurrent:
		return ModeConcurrent, nil
	}
	return "", errors.Newf(errors.ErrCodeBatchModeInvalid, "unknown batch mode %q, expected sequential|parallel|concurrent", s)
}

// Input is one instruction to parse.
type Input struct {
	ID   *string `json:"id,omitempty"`
	Text string  `json:"text"`
}

// NewInputs pairs texts with ids. With nil ids every input gets its
// zero-based row index as id.
func NewInputs(texts []string, ids []string) ([]Input, error) {
	if ids != nil && len(ids) != len(texts) {
		return nil, errors.InvalidParam(fmt.Sprintf("got %d ids for %d instructions", len(ids), len(texts)))
	}
	out := make([]Input, len(texts))
	for i, t := range texts {
		out[i].Text = t
		if ids != nil {
			out[i].ID = instruction.Str(ids[i])
		}
	}
	return out, nil
}

// ============================================================================
// Parser
// ============================================================================

const (
	defaultWorkers  = 4
	defaultCacheTTL = 24 * time.Hour
	batchTimeout    = time.Hour
)

// Parser is safe for concurrent use. The normalizer and extractor are
// shared read-only by every parse.
type Parser struct {
	normalizer TextNormalizer
	extractor  sig_tagger.Extractor
	segmenter  *sig_segmenter.Segmenter
	builder    *Builder
	logger     logging.Logger

	cache        Cache
	cacheTTL     time.Duration
	recorder     Recorder
	metrics      Metrics
	batchMetrics common.IntelligenceMetrics

	workers      int
	inputTimeout time.Duration
	maxBatchSize int
	defaultMode  Mode
}

// Option configures a Parser.
type Option func(*Parser)

// WithInterpreter replaces the default field interpreter.
func WithInterpreter(in *interp.Interpreter) Option {
	return func(p *Parser) {
		if in != nil {
			p.builder = NewBuilder(in)
			p.segmenter = sig_segmenter.New(frequencyTyper(in))
		}
	}
}

// WithCache enables the result cache.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(p *Parser) {
		p.cache = c
		if ttl > 0 {
			p.cacheTTL = ttl
		}
	}
}

// WithRecorder persists every result.
func WithRecorder(r Recorder) Option {
	return func(p *Parser) { p.recorder = r }
}

// WithMetrics reports parser activity.
func WithMetrics(m Metrics) Option {
	return func(p *Parser) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithBatchMetrics reports worker pool activity in ModeParallel.
func WithBatchMetrics(m common.IntelligenceMetrics) Option {
	return func(p *Parser) {
		if m != nil {
			p.batchMetrics = m
		}
	}
}

// WithWorkers sets the worker pool size for ModeParallel.
func WithWorkers(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithInputTimeout bounds the extraction of each input. Zero disables it.
func WithInputTimeout(d time.Duration) Option {
	return func(p *Parser) { p.inputTimeout = d }
}

// WithMaxBatchSize rejects batches above n inputs. Zero disables the limit.
func WithMaxBatchSize(n int) Option {
	return func(p *Parser) { p.maxBatchSize = n }
}

// WithDefaultMode sets the mode used when ParseMany is called with "".
func WithDefaultMode(m Mode) Option {
	return func(p *Parser) {
		if m != "" {
			p.defaultMode = m
		}
	}
}

// NewParser assembles the pipeline.
func NewParser(normalizer TextNormalizer, extractor sig_tagger.Extractor, logger logging.Logger, opts ...Option) (*Parser, error) {
	if normalizer == nil {
		return nil, errors.InvalidParam("parsing: normalizer is required")
	}
	if extractor == nil {
		return nil, errors.InvalidParam("parsing: extractor is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	in := interp.New(nil)
	p := &Parser{
		normalizer:   normalizer,
		extractor:    extractor,
		segmenter:    sig_segmenter.New(frequencyTyper(in)),
		builder:      NewBuilder(in),
		logger:       logger.Named("parser"),
		cacheTTL:     defaultCacheTTL,
		metrics:      noopMetrics{},
		batchMetrics: common.NewNoopIntelligenceMetrics(),
		workers:      defaultWorkers,
		defaultMode:  ModeSequential,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func frequencyTyper(in *interp.Interpreter) sig_segmenter.FrequencyTyper {
	return func(text string) *string { return in.FrequencyType(text, nil) }
}

// Parse parses one instruction without an id.
func (p *Parser) Parse(ctx context.Context, text string) []*instruction.StructuredInstruction {
	return p.ParseWithID(ctx, nil, text)
}

// ParseWithID parses one instruction. It never fails: an input that cannot
// be parsed yields a single record carrying only id and text.
func (p *Parser) ParseWithID(ctx context.Context, id *string, text string) []*instruction.StructuredInstruction {
	results := p.parseOne(ctx, id, text)
	p.record(ctx, "", results)
	return results
}

// ParseMany parses a batch under a fresh batch id. Inputs without an id
// get their zero-based row index. Records of input i always precede those
// of input i+1.
func (p *Parser) ParseMany(ctx context.Context, inputs []Input, mode Mode) ([]*instruction.StructuredInstruction, error) {
	return p.ParseBatch(ctx, uuid.NewString(), inputs, mode)
}

// ParseBatch is ParseMany with a caller-chosen batch id for persistence.
func (p *Parser) ParseBatch(ctx context.Context, batchID string, inputs []Input, mode Mode) ([]*instruction.StructuredInstruction, error) {
	if mode == "" {
		mode = p.defaultMode
	}
	if p.maxBatchSize > 0 && len(inputs) > p.maxBatchSize {
		return nil, errors.Newf(errors.ErrCodeBatchTooLarge, "batch of %d exceeds limit %d", len(inputs), p.maxBatchSize)
	}
	inputs = withRowIDs(inputs)

	start := time.Now()
	var (
		perInput [][]*instruction.StructuredInstruction
		err      error
	)
	switch mode {
	case ModeSequential:
		perInput, err = p.runSequential(ctx, inputs)
	case ModeParallel:
		perInput, err = p.runParallel(ctx, inputs)
	case ModeConcurrent:
		perInput, err = p.runConcurrent(ctx, inputs)
	default:
		_, err = ParseMode(string(mode))
	}
	if err != nil {
		return nil, err
	}

	var out []*instruction.StructuredInstruction
	for _, recs := range perInput {
		out = append(out, recs...)
	}
	elapsed := time.Since(start)
	p.metrics.ObserveBatch(mode, len(inputs), len(out), elapsed)
	p.logger.Info("batch parsed",
		logging.String("batch_id", batchID),
		logging.String("mode", string(mode)),
		logging.Int("inputs", len(inputs)),
		logging.Int("records", len(out)),
		logging.Duration("elapsed", elapsed),
	)
	p.record(ctx, batchID, out)
	return out, nil
}

func withRowIDs(inputs []Input) []Input {
	out := make([]Input, len(inputs))
	for i, in := range inputs {
		out[i] = in
		if in.ID == nil {
			out[i].ID = instruction.Str(strconv.Itoa(i))
		}
	}
	return out
}

func (p *Parser) runSequential(ctx context.Context, inputs []Input) ([][]*instruction.StructuredInstruction, error) {
	out := make([][]*instruction.StructuredInstruction, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.parseOne(ctx, in.ID, in.Text)
	}
	return out, nil
}

func (p *Parser) runParallel(ctx context.Context, inputs []Input) ([][]*instruction.StructuredInstruction, error) {
	opts := []common.BatchOption{
		common.WithBatchName("parse"),
		common.WithMaxConcurrency(p.workers),
		common.WithBatchLogger(p.logger),
		common.WithBatchMetrics(p.batchMetrics),
		common.WithBatchTimeout(batchTimeout),
	}
	if p.inputTimeout > 0 {
		// Leave headroom over the extraction timeout for the rule steps.
		opts = append(opts, common.WithItemTimeout(2*p.inputTimeout))
	}
	bp := common.NewBatchProcessor[Input, []*instruction.StructuredInstruction](opts...)
	defer func() { _ = bp.Shutdown(context.Background()) }()

	res, err := bp.Process(ctx, inputs, func(ctx context.Context, in Input) ([]*instruction.StructuredInstruction, error) {
		return p.parseOne(ctx, in.ID, in.Text), nil
	})
	if err != nil {
		return nil, err
	}

	out := make([][]*instruction.StructuredInstruction, len(inputs))
	for i, r := range res.Results {
		if r.Status != common.ItemStatusSuccess || r.Result == nil {
			p.logger.Warn("parse task did not complete",
				logging.String("input_id", derefOr(inputs[i].ID, "")),
				logging.String("status", r.Status.String()),
				logging.Err(r.Error),
			)
			out[i] = []*instruction.StructuredInstruction{instruction.NewEmpty(inputs[i].ID, inputs[i].Text)}
			continue
		}
		out[i] = r.Result
	}
	return out, nil
}

func (p *Parser) runConcurrent(ctx context.Context, inputs []Input) ([][]*instruction.StructuredInstruction, error) {
	out := make([][]*instruction.StructuredInstruction, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			out[i] = p.parseOne(gctx, in.ID, in.Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================================
// Single input
// ============================================================================

// parseOne runs the pipeline for one input and converts every failure,
// including panics, into the all-null record.
func (p *Parser) parseOne(ctx context.Context, id *string, text string) (results []*instruction.StructuredInstruction) {
	start := time.Now()
	diags := interp.NewDiagnostics()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("parse panicked",
				logging.String("input_id", derefOr(id, "")),
				logging.String("text", text),
				logging.Any("panic", r),
			)
			p.flushDiagnostics(id, text, diags)
			p.metrics.ObserveParse(OutcomeFailed, 1, time.Since(start))
			results = []*instruction.StructuredInstruction{instruction.NewEmpty(id, text)}
		}
	}()

	normalized := p.normalizer.Normalize(text)
	if cached, ok := p.fromCache(ctx, id, text, normalized); ok {
		p.metrics.ObserveParse(OutcomeCached, len(cached), time.Since(start))
		return cached
	}

	results, err := p.run(ctx, id, text, normalized, diags)
	p.flushDiagnostics(id, text, diags)
	if err != nil {
		p.logger.Warn("parse failed",
			logging.String("input_id", derefOr(id, "")),
			logging.String("text", text),
			logging.String("code", string(errors.GetCode(err))),
			logging.Err(err),
		)
		p.metrics.ObserveParse(OutcomeFailed, 1, time.Since(start))
		return []*instruction.StructuredInstruction{instruction.NewEmpty(id, text)}
	}

	p.metrics.ObserveParse(OutcomeOK, len(results), time.Since(start))
	p.toCache(ctx, normalized, results)
	return results
}

func (p *Parser) run(ctx context.Context, id *string, text, normalized string, diags *interp.Diagnostics) ([]*instruction.StructuredInstruction, error) {
	extractCtx := ctx
	if p.inputTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, p.inputTimeout)
		defer cancel()
	}
	entities, err := p.extractor.Extract(extractCtx, normalized)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExtractionFailed, "entity extraction failed")
	}

	segments := p.segmenter.Segment(entities)
	p.logger.Debug("instruction segmented",
		logging.String("input_id", derefOr(id, "")),
		logging.String("normalized", normalized),
		logging.Int("entities", len(entities)),
		logging.Int("segments", len(segments)),
	)
	return p.builder.Build(segments, id, text, diags), nil
}

// flushDiagnostics writes interpreter warnings to the log with the input
// they belong to.
func (p *Parser) flushDiagnostics(id *string, text string, diags *interp.Diagnostics) {
	for _, d := range diags.Entries() {
		p.logger.Warn("ambiguous instruction",
			logging.String("input_id", derefOr(id, "")),
			logging.String("text", text),
			logging.String("rule", d.Rule),
			logging.String("detail", d.Message),
		)
		p.metrics.ObserveDiagnostics(d.Rule)
	}
}

// fromCache looks up normalized. A hit carries the caller's id and raw
// text.
func (p *Parser) fromCache(ctx context.Context, id *string, text, normalized string) ([]*instruction.StructuredInstruction, bool) {
	if p.cache == nil {
		return nil, false
	}
	cached, found, err := p.cache.Get(ctx, normalized)
	if err != nil {
		p.logger.Warn("cache read failed", logging.Err(err))
		return nil, false
	}
	p.metrics.ObserveCache(found)
	if !found || len(cached) == 0 {
		return nil, false
	}
	out := make([]*instruction.StructuredInstruction, len(cached))
	for i, c := range cached {
		rec := *c
		rec.InputID = copyStr(id)
		rec.Text = text
		out[i] = &rec
	}
	return out, true
}

func (p *Parser) toCache(ctx context.Context, normalized string, results []*instruction.StructuredInstruction) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, normalized, results, p.cacheTTL); err != nil {
		p.logger.Warn("cache write failed", logging.Err(err))
	}
}

func (p *Parser) record(ctx context.Context, batchID string, results []*instruction.StructuredInstruction) {
	if p.recorder == nil || len(results) == 0 {
		return
	}
	if err := p.recorder.Record(ctx, batchID, results); err != nil {
		p.logger.Error("recording results failed",
			logging.String("batch_id", batchID),
			logging.Int("records", len(results)),
			logging.Err(err),
		)
	}
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
