package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fund_extractor/pkg/api/portfolio"
	"fund_extractor/pkg/core/agent"
	"fund_extractor/pkg/core/llm"
	"fund_extractor/pkg/core/metrics"
	"fund_extractor/pkg/core/parser"
	"fund_extractor/pkg/core/pipeline"
	"fund_extractor/pkg/core/prompt"
	"fund_extractor/pkg/core/schema"
	"fund_extractor/pkg/core/store"
)

func reply(n int) string {
	var holdings []string
	for i := 0; i < n; i++ {
		holdings = append(holdings, fmt.Sprintf(`{"stock_name": "Company %d", "isin": "INE%06d", "value": %d}`, i, i, i+1))
	}
	return `{"fund_info": {"name": "Sample Fund", "id": "SF", "type": "Equity", "aum": 500, "currency": "USD"},` +
		`"holdings": [` + strings.Join(holdings, ",") + `], "sector_allocation": []}`
}

type testServer struct {
	srv  *Server
	mock *llm.MockProvider
	logs *observer.ObservedLogs
}

func newTestServer(t *testing.T, mock *llm.MockProvider) *testServer {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	mgr, err := agent.NewManager(agent.Config{ActiveProvider: "mock"}, agent.Limits{}, logger)
	require.NoError(t, err)
	mgr.Register("mock", mock)
	builder, err := prompt.NewFundPortfolioBuilder()
	require.NoError(t, err)

	m := metrics.New()
	st := store.NewMemory(store.NewMatcher(false, logger))
	proc := pipeline.NewProcessor(builder, mgr, parser.New(schema.Default(), parser.Config{}, logger), logger)
	proc.SetStore(st)
	proc.SetMetrics(m)

	srv, err := New(Deps{
		Processor: proc,
		Store:     st,
		Agents:    mgr,
		Metrics:   m,
		UploadDir: filepath.Join(t.TempDir(), "uploads"),
		Logger:    logger,
	})
	require.NoError(t, err)
	return &testServer{srv: srv, mock: mock, logs: logs}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(portfolio.FileField, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUploadThenQuery(t *testing.T) {
	ts := newTestServer(t, &llm.MockProvider{Replies: []string{reply(12)}})

	rec := ts.do(upload(t, "holdings.csv", "ISIN,Name,Value\nINE1,Alpha,10\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var uploaded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	for _, key := range []string{"id", "raw_text", "entities", "holdings", "sectors", "raw_data"} {
		assert.Contains(t, uploaded, key)
	}
	assert.Len(t, uploaded["holdings"], 12)
	assert.Equal(t, map[string]any{"stock_name": "Company 0", "isin": "INE000000", "value": float64(1)},
		uploaded["holdings"].([]any)[0].(map[string]any)["data"])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/query?currency=EUR", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var q struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	require.Len(t, q.Results, 1)
	assert.Equal(t, uploaded["id"], q.Results[0]["id"])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `fundextract_documents_total{format=".csv",outcome="ok"} 1`)
}

func TestUploadFailureIsLoggedWithStack(t *testing.T) {
	ts := newTestServer(t, &llm.MockProvider{Err: errors.New("upstream unavailable")})

	rec := ts.do(upload(t, "holdings.csv", "ISIN,Name\nINE1,Alpha\n"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t,
		`{"message": "Error processing file: completion via mock failed: upstream unavailable"}`,
		rec.Body.String())

	entries := ts.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "Error processing file: completion via mock failed: upstream unavailable", last.Message)
	assert.NotEmpty(t, last.ContextMap()["stack"])
	assert.Equal(t, int64(http.StatusInternalServerError), last.ContextMap()["status"])
}

func TestUnsupportedUploadSkipsModel(t *testing.T) {
	mock := &llm.MockProvider{Replies: []string{reply(12)}}
	ts := newTestServer(t, mock)

	rec := ts.do(upload(t, "notes.txt", "hello"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message": "Error processing file: Unsupported file type: .txt"}`, rec.Body.String())
	assert.Empty(t, mock.Calls())
}

func TestAncillaryRoutes(t *testing.T) {
	ts := newTestServer(t, &llm.MockProvider{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/config", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active_provider": "mock", "available": ["mock"]}`, rec.Body.String())

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message": "Not Found"}`, rec.Body.String())
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	ts := newTestServer(t, &llm.MockProvider{})

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set(echo.HeaderOrigin, "http://example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := ts.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestRunStopsOnCancel(t *testing.T) {
	ts := newTestServer(t, &llm.MockProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- ts.srv.Run(ctx, "127.0.0.1:0", time.Second) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
