package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund_extractor/pkg/core/agent"
	"fund_extractor/pkg/core/llm"
)

func newTestHandler(t *testing.T) (*echo.Echo, *agent.Manager) {
	t.Helper()
	mgr, err := agent.NewManager(agent.Config{ActiveProvider: "mock"}, agent.Limits{}, nil)
	require.NoError(t, err)
	mgr.Register("mock", &llm.MockProvider{})
	mgr.Register("gemini", &llm.MockProvider{})

	e := echo.New()
	NewHandler(mgr, nil).Register(e.Group("/api/config"))
	return e, mgr
}

func TestHandleConfig(t *testing.T) {
	e, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "mock", resp.ActiveProvider)
	assert.Equal(t, []string{"gemini", "mock"}, resp.Available)
}

func TestHandleSwitch(t *testing.T) {
	e, mgr := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`{"provider":"gemini"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Success: Switched to gemini", rec.Body.String())
	assert.Equal(t, "gemini", mgr.GetActiveProvider())
}

func TestHandleSwitchRejectsUnknownProvider(t *testing.T) {
	e, mgr := newTestHandler(t)

	for _, body := range []string{`{"provider":"kimi"}`, `{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, "mock", mgr.GetActiveProvider())
}
