// Package pipeline runs one document through read, prompt, completion,
// parse and assembly, then optionally stores the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fund_extractor/pkg/core/agent"
	"fund_extractor/pkg/core/errs"
	"fund_extractor/pkg/core/metrics"
	"fund_extractor/pkg/core/parser"
	"fund_extractor/pkg/core/reader"
	"fund_extractor/pkg/core/record"
	"fund_extractor/pkg/core/store"
	"fund_extractor/pkg/models"
)

// DocumentReader normalizes a file into text.
type DocumentReader interface {
	Read(path, ext string) (string, error)
}

// PromptBuilder composes the extraction prompt.
type PromptBuilder interface {
	Build(doc string) string
	SystemPrompt() string
}

// Completer sends a prompt to the model.
type Completer interface {
	Complete(ctx context.Context, agentType, prompt, systemPrompt string) (string, error)
}

// ResponseParser turns model output into a validated extraction.
type ResponseParser interface {
	Parse(response string) (*parser.Extraction, error)
}

// Stage names used in logs and metrics.
const (
	StageRead     = "read"
	StagePrompt   = "prompt"
	StageComplete = "complete"
	StageParse    = "parse"
	StageStore    = "store"
)

// Processor holds only its collaborators and is safe for concurrent use.
type Processor struct {
	reader    DocumentReader
	builder   PromptBuilder
	completer Completer
	parser    ResponseParser
	store     store.Store
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewProcessor wires the pipeline. The reader defaults to reader.New.
func NewProcessor(builder PromptBuilder, completer Completer, p ResponseParser, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		reader:    reader.New(logger),
		builder:   builder,
		completer: completer,
		parser:    p,
		logger:    logger,
	}
}

// SetReader allows injecting a custom reader (e.g., for testing).
func (p *Processor) SetReader(r DocumentReader) { p.reader = r }

// SetStore sets the store used by ProcessAndStore.
func (p *Processor) SetStore(s store.Store) { p.store = s }

// SetMetrics enables metric recording.
func (p *Processor) SetMetrics(m *metrics.Metrics) { p.metrics = m }

// ProcessFile runs the pipeline for path and returns the assembled result.
// Errors from any stage are returned unchanged.
func (p *Processor) ProcessFile(ctx context.Context, path string) (res *models.PortfolioResult, err error) {
	ext := strings.ToLower(filepath.Ext(path))
	log := p.logger.With(zap.String("file", filepath.Base(path)))
	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		p.metrics.Document(ext, outcome)
	}()

	log.Info("Processing file")

	start := time.Now()
	text, err := p.reader.Read(path, ext)
	p.metrics.Stage(StageRead, start)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	prompt := p.builder.Build(text)
	p.metrics.Stage(StagePrompt, start)
	log.Debug("Composed extraction prompt", zap.Int("length", len(prompt)))

	start = time.Now()
	reply, err := p.completer.Complete(ctx, agent.Extraction, prompt, p.builder.SystemPrompt())
	p.metrics.Stage(StageComplete, start)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	ex, err := p.parser.Parse(reply)
	p.metrics.Stage(StageParse, start)
	if err != nil {
		return nil, err
	}
	p.metrics.Holdings(len(ex.Holdings))
	for _, w := range ex.Warnings {
		p.metrics.Warning(w.Code)
	}

	res = record.Assemble(text, ex)
	res.SourceFile = filepath.Base(path)
	res.CreatedAt = time.Now().UTC()

	log.Info("Processed file",
		zap.Int("holdings", len(res.Holdings)), zap.Int("sectors", len(res.Sectors)),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// ProcessAndStore runs ProcessFile and appends the result to the store.
func (p *Processor) ProcessAndStore(ctx context.Context, path string) (*models.PortfolioResult, error) {
	if p.store == nil {
		return nil, fmt.Errorf("processor has no store configured")
	}
	res, err := p.ProcessFile(ctx, path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = p.store.Append(ctx, res)
	p.metrics.Stage(StageStore, start)
	if err != nil {
		return nil, fmt.Errorf("storing result for %s: %w", res.SourceFile, err)
	}
	return res, nil
}

// Outcome is the result of one file in a batch.
type Outcome struct {
	Path   string
	Result *models.PortfolioResult
	Err    error
}

// ProcessFiles runs up to concurrency files at once. Files are independent:
// one failure does not stop the others. Outcomes keep the order of paths.
func (p *Processor) ProcessFiles(ctx context.Context, paths []string, concurrency int, persist bool) []Outcome {
	outcomes := make([]Outcome, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, path := range paths {
		g.Go(func() error {
			var (
				res *models.PortfolioResult
				err error
			)
			if persist {
				res, err = p.ProcessAndStore(gctx, path)
			} else {
				res, err = p.ProcessFile(gctx, path)
			}
			if err != nil {
				p.logger.Error("Error processing document",
					zap.String("file", path), zap.Error(err), zap.String("stack", Trace(err)))
			}
			outcomes[i] = Outcome{Path: path, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Trace returns the stack captured where err originated, if it carries one.
func Trace(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Trace()
	}
	return ""
}
