package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fund_extractor/pkg/core/agent"
	"fund_extractor/pkg/core/errs"
	"fund_extractor/pkg/core/llm"
	"fund_extractor/pkg/core/metrics"
	"fund_extractor/pkg/core/parser"
	"fund_extractor/pkg/core/prompt"
	"fund_extractor/pkg/core/schema"
	"fund_extractor/pkg/core/store"
)

// MockReader implements DocumentReader for testing.
type MockReader struct {
	ReadFunc func(path, ext string) (string, error)
	calls    atomic.Int32
}

func (m *MockReader) Read(path, ext string) (string, error) {
	m.calls.Add(1)
	return m.ReadFunc(path, ext)
}

func modelReply(n int) string {
	var holdings []string
	for i := 0; i < n; i++ {
		holdings = append(holdings, fmt.Sprintf(`{"stock_name": "Company %d Ltd", "isin": "INE%06d", "sector": "Banks", "percentage": 1.5, "value": %d}`, i, i, (i+1)*100))
	}
	return "```json\n{" +
		`"fund_info": {"name": "Sample Fund", "id": "SF1", "type": "Equity", "aum": 1234.50, "currency": "INR"},` +
		`"holdings": [` + strings.Join(holdings, ",") + `],` +
		`"sector_allocation": [{"name": "Banks", "allocation": 100}]` +
		"}\n```"
}

type harness struct {
	proc    *Processor
	mock    *llm.MockProvider
	logs    *observer.ObservedLogs
	metrics *metrics.Metrics
	store   store.Store
}

func newHarness(t *testing.T, mock *llm.MockProvider) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	mgr, err := agent.NewManager(agent.Config{ActiveProvider: "mock"}, agent.Limits{}, logger)
	require.NoError(t, err)
	mgr.Register("mock", mock)

	builder, err := prompt.NewFundPortfolioBuilder()
	require.NoError(t, err)

	m := metrics.New()
	st := store.NewMemory(store.NewMatcher(false, logger))
	proc := NewProcessor(builder, mgr, parser.New(schema.Default(), parser.Config{}, logger), logger)
	proc.SetMetrics(m)
	proc.SetStore(st)
	return &harness{proc: proc, mock: mock, logs: logs, metrics: m, store: st}
}

// writeHoldingsWorkbook saves a two-sheet workbook whose holdings sheet opens
// with two title rows before the header.
func writeHoldingsWorkbook(t *testing.T, holdings int) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Index"))
	_, err := f.NewSheet("Portfolio")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Portfolio", "A1", &[]interface{}{"Portfolio statement as of March"}))
	require.NoError(t, f.SetSheetRow("Portfolio", "A2", &[]interface{}{"Sample Fund (An open ended equity scheme)"}))
	require.NoError(t, f.SetSheetRow("Portfolio", "A3", &[]interface{}{"ISIN", "Security Name", "Industry", "% to NAV", "Market Value"}))
	for i := 0; i < holdings; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		require.NoError(t, err)
		row := []interface{}{fmt.Sprintf("INE%06d", i), fmt.Sprintf("Company %d Ltd", i), "Banks", 6.5, (i + 1) * 100}
		require.NoError(t, f.SetSheetRow("Portfolio", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "march.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestProcessFileEndToEnd(t *testing.T) {
	h := newHarness(t, &llm.MockProvider{Replies: []string{modelReply(15)}})
	path := writeHoldingsWorkbook(t, 15)

	res, err := h.proc.ProcessFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "march.xlsx", res.SourceFile)
	assert.False(t, res.CreatedAt.IsZero())
	assert.Len(t, res.Holdings, 15)
	assert.Len(t, res.Sectors, 1)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []string{"Sample Fund"}, res.Entities.FundNames)
	assert.Equal(t, []string{"1234.50"}, res.Entities.Amounts)
	assert.Equal(t, []string{"INR"}, res.Entities.Currencies)
	assert.Contains(t, res.RawText, "Sheet Name: Portfolio")
	assert.Contains(t, res.RawText, "\nTotal Records: 15\n")
	for _, col := range []string{"ISIN", "Security Name", "Industry", "% to NAV", "Market Value"} {
		assert.Contains(t, res.RawText, "Column: "+col+"\n")
	}
	assert.NotContains(t, res.RawText, "Portfolio statement as of March")
	assert.Contains(t, res.RawText, "Company 14 Ltd")

	skips := h.logs.FilterMessage("Detected header row").All()
	require.Len(t, skips, 1)
	assert.Equal(t, int64(2), skips[0].ContextMap()["skip_rows"])

	calls := h.mock.Calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasSuffix(calls[0].Prompt, "\n\n"+res.RawText), "document is appended verbatim")
	assert.Contains(t, calls[0].SystemPrompt, "financial data extraction expert")
	assert.Equal(t, 0.0, calls[0].Options.Temperature)

	assert.Zero(t, h.logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Contains(t, h.scrape(t), `fundextract_documents_total{format=".xlsx",outcome="ok"} 1`)
}

func (h *harness) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestProcessFileWarnsOnFewHoldings(t *testing.T) {
	h := newHarness(t, &llm.MockProvider{Replies: []string{modelReply(4)}})
	path := writeHoldingsWorkbook(t, 4)

	res, err := h.proc.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, res.Holdings, 4)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Less than 10 holdings found (4)")

	warns := h.logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Message, "incomplete extraction")
	assert.Contains(t, h.scrape(t), `fundextract_soft_warnings_total{code="incomplete_extraction"} 1`)
}

func TestProcessFileUnsupportedNeverCallsModel(t *testing.T) {
	mock := &llm.MockProvider{Replies: []string{modelReply(15)}}
	h := newHarness(t, mock)

	_, err := h.proc.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "notes.docx"))
	require.Error(t, err)
	assert.Equal(t, errs.UnsupportedFormat, errs.KindOf(err))
	assert.Empty(t, mock.Calls())
	assert.Contains(t, h.scrape(t), `fundextract_documents_total{format=".docx",outcome="error"} 1`)
}

func TestProcessFileRemoteFailurePassesThrough(t *testing.T) {
	h := newHarness(t, &llm.MockProvider{Err: errors.New("connection reset")})
	h.proc.SetReader(&MockReader{ReadFunc: func(path, ext string) (string, error) {
		return "ISIN Name\nINE1 Alpha", nil
	}})

	_, err := h.proc.ProcessFile(context.Background(), "upload.csv")
	require.Error(t, err)
	assert.Equal(t, errs.RemoteCallError, errs.KindOf(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotEmpty(t, Trace(err))
}

func TestProcessFileParserErrorsPassThrough(t *testing.T) {
	cases := map[string]struct {
		reply string
		kind  errs.Kind
	}{
		"no json":        {"I could not find any holdings.", errs.NoJsonFound},
		"missing keys":   {`{"fund_info": {}}`, errs.SchemaValidationError},
		"malformed json": {`{"fund_info": {"name": "x" "id": 1}, "holdings": [], "sector_allocation": []}`, errs.JsonDecodeError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, &llm.MockProvider{Replies: []string{tc.reply}})
			h.proc.SetReader(&MockReader{ReadFunc: func(path, ext string) (string, error) { return "table", nil }})

			_, err := h.proc.ProcessFile(context.Background(), "x.pdf")
			require.Error(t, err)
			assert.Equal(t, tc.kind, errs.KindOf(err))
		})
	}
}

func TestProcessAndStore(t *testing.T) {
	h := newHarness(t, &llm.MockProvider{Replies: []string{modelReply(12)}})
	reader := &MockReader{ReadFunc: func(path, ext string) (string, error) { return "table for " + filepath.Base(path), nil }}
	h.proc.SetReader(reader)

	first, err := h.proc.ProcessAndStore(context.Background(), "a.csv")
	require.NoError(t, err)
	_, err = h.proc.ProcessAndStore(context.Background(), "b.csv")
	require.NoError(t, err)

	got, err := h.store.List(context.Background(), store.Filter{"fund_name": "nobody"})
	require.NoError(t, err)
	require.Len(t, got, 2, "filters are ignored unless enabled")
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, "b.csv", got[1].SourceFile)
	assert.NotEmpty(t, got[0].ID)
}

func TestProcessAndStoreRequiresStore(t *testing.T) {
	builder, err := prompt.NewFundPortfolioBuilder()
	require.NoError(t, err)
	proc := NewProcessor(builder, &agent.Manager{}, parser.New(schema.Default(), parser.Config{}, nil), nil)

	_, err = proc.ProcessAndStore(context.Background(), "a.csv")
	assert.Error(t, err)
}

func TestProcessFilesKeepsOrderAndIsolatesFailures(t *testing.T) {
	h := newHarness(t, &llm.MockProvider{Replies: []string{modelReply(11)}})
	h.proc.SetReader(&MockReader{ReadFunc: func(path, ext string) (string, error) {
		if strings.HasPrefix(filepath.Base(path), "bad") {
			return "", errs.New(errs.ReadError, "cannot read %s", path)
		}
		return "table", nil
	}})

	paths := []string{"one.csv", "bad.csv", "two.csv", "three.csv"}
	outcomes := h.proc.ProcessFiles(context.Background(), paths, 2, false)

	require.Len(t, outcomes, len(paths))
	for i, o := range outcomes {
		assert.Equal(t, paths[i], o.Path)
	}
	assert.Equal(t, errs.ReadError, errs.KindOf(outcomes[1].Err))
	for _, i := range []int{0, 2, 3} {
		require.NoError(t, outcomes[i].Err)
		assert.Len(t, outcomes[i].Result.Holdings, 11)
	}
	assert.Len(t, h.mock.Calls(), 3)
	assert.Equal(t, 1, h.logs.FilterMessage("Error processing document").Len())
}
