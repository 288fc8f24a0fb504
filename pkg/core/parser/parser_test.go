package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fund_extractor/pkg/core/errs"
	"fund_extractor/pkg/core/schema"
)

func newTestParser(t *testing.T, cfg Config) (*Parser, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	return New(schema.Default(), cfg, zap.New(core)), logs
}

// reply renders a model answer with n holdings wrapped in prose and a fence.
func reply(n int) string {
	var holdings []string
	for i := 0; i < n; i++ {
		holdings = append(holdings, fmt.Sprintf(`{"stock_name": "Company %d", "isin": "INE%06d", "value": %d.5,}`, i, i, i+1))
	}
	return "Here is the extracted data:\n```json\n{\n" +
		`"fund_info": {"name": "Axis Bluechip", "id": "AXB", "type": "Equity", "aum": 1234.50, "currency": "INR"},` + "\n" +
		`"holdings": [` + strings.Join(holdings, ",\n") + "],\n" +
		`"sector_allocation": [{"name": "Banks", "allocation": 31.2}, // biggest` + "\n" +
		"],\n}\n```\nLet me know if you need anything else."
}

func TestParseFencedReply(t *testing.T) {
	p, logs := newTestParser(t, Config{})

	ex, err := p.Parse(reply(15))
	require.NoError(t, err)
	assert.Len(t, ex.Holdings, 15)
	assert.Len(t, ex.Sectors, 1)
	assert.Empty(t, ex.Warnings)
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	info := ex.Data["fund_info"].(map[string]any)
	assert.Equal(t, json.Number("1234.50"), info["aum"], "numbers keep their literal form")
}

func TestParseWarnsOnFewHoldings(t *testing.T) {
	p, logs := newTestParser(t, Config{})

	ex, err := p.Parse(reply(4))
	require.NoError(t, err)
	assert.Len(t, ex.Holdings, 4)
	require.Len(t, ex.Warnings, 1)
	assert.Equal(t, WarnIncomplete, ex.Warnings[0].Code)
	assert.Contains(t, ex.Warnings[0].Message, "incomplete extraction")

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Message, "Less than 10 holdings")
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		reply(3),
		`{"a": [1, 2, ], "b": "http://example.com/x", } trailing prose`,
		"```json\n{\"a\": 1 // note\n}\n```",
	}
	for _, in := range inputs {
		once, err := Clean(in)
		require.NoError(t, err)
		twice, err := Clean(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestParseRepairedReplyMatchesCleanJSON(t *testing.T) {
	clean := `{"fund_info": {"name": "Axis Bluechip", "aum": 1234.50, "currency": "INR"}, ` +
		`"holdings": [{"isin": "INE000001", "value": 10}, {"isin": "INE000002", "value": 20}], ` +
		`"sector_allocation": [{"name": "Banks", "allocation": 31.2}]}`
	dirty := "Sure, here it is:\n```json\n{\n" +
		`  "fund_info": {"name": "Axis Bluechip", "aum": 1234.50, "currency": "INR",}, // fund level` + "\n" +
		`  "holdings": [{"isin": "INE000001", "value": 10}, {"isin": "INE000002", "value": 20},],` + "\n" +
		`  "sector_allocation": [{"name": "Banks", "allocation": 31.2}, // largest only` + "\n" +
		"  ],\n}\n```\nAnything else?"

	p, _ := newTestParser(t, Config{})
	want, err := p.Parse(clean)
	require.NoError(t, err)
	got, err := p.Parse(dirty)
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)
}

func TestProblemSectionKeepsWholeRunes(t *testing.T) {
	s := strings.Repeat("₹", 40) + `{"x" 1}` + strings.Repeat("é", 40)
	for offset := int64(0); offset <= int64(len(s)); offset++ {
		section := problemSection(s, offset)
		require.True(t, utf8.ValidString(section), "offset %d", offset)
		assert.Contains(t, s, section)
	}
}

func TestCleanKeepsURLsInsideStrings(t *testing.T) {
	got, err := Clean(`{"source": "https://amc.example/portfolio", "n": 1, // count` + "\n}")
	require.NoError(t, err)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &v))
	assert.Equal(t, "https://amc.example/portfolio", v["source"])
}

func TestParseMissingKeys(t *testing.T) {
	p, _ := newTestParser(t, Config{})

	_, err := p.Parse(`{"fund_info": {}, "holdings": []}`)
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.SchemaValidationError, e.Kind)
	assert.Equal(t, []string{"sector_allocation"}, e.Missing)
	assert.Equal(t, "SchemaValidationError: Missing required keys in response: ['sector_allocation']", err.Error())

	_, err = p.Parse(`{"fund_info": {}}`)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, []string{"holdings", "sector_allocation"}, e.Missing)
}

func TestParseNoJSON(t *testing.T) {
	p, _ := newTestParser(t, Config{})

	for _, in := range []string{"", "I could not find any holdings.", "} backwards {"} {
		_, err := p.Parse(in)
		assert.True(t, errs.IsKind(err, errs.NoJsonFound), "input %q", in)
	}
}

func TestParseDecodeErrorCarriesContext(t *testing.T) {
	p, logs := newTestParser(t, Config{})

	in := `{"fund_info": {"name": "Alpha" "aum": 10}, "holdings": [], "sector_allocation": []}`
	_, err := p.Parse(in)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.JsonDecodeError, e.Kind)
	assert.Greater(t, e.Offset, int64(0))
	assert.Contains(t, e.Context, `"Alpha" "aum"`)
	assert.LessOrEqual(t, len(e.Context), 2*contextRadius)

	errLogs := logs.FilterMessage("JSON decode error").All()
	require.Len(t, errLogs, 1)
	assert.Equal(t, e.Context, errLogs[0].ContextMap()["problem_section"])
}

func TestParseRejectsTrailingData(t *testing.T) {
	p, _ := newTestParser(t, Config{})

	_, err := p.Parse(`{"fund_info": {}, "holdings": [], "sector_allocation": []} and also {"x": 1}`)
	assert.True(t, errs.IsKind(err, errs.JsonDecodeError))
}

func TestParseSalvage(t *testing.T) {
	in := `{"fund_info": {'name': 'Alpha'}, "holdings": [], "sector_allocation": []}`

	strict, _ := newTestParser(t, Config{})
	_, err := strict.Parse(in)
	assert.True(t, errs.IsKind(err, errs.JsonDecodeError))

	lenient, _ := newTestParser(t, Config{Salvage: true})
	ex, err := lenient.Parse(in)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", ex.Data["fund_info"].(map[string]any)["name"])
	require.NotEmpty(t, ex.Warnings)
	assert.Equal(t, WarnSalvaged, ex.Warnings[0].Code)
}

func TestParseNonArraySections(t *testing.T) {
	p, _ := newTestParser(t, Config{})

	ex, err := p.Parse(`{"fund_info": {}, "holdings": {"a": 1}, "sector_allocation": null}`)
	require.NoError(t, err)
	assert.Empty(t, ex.Holdings)
	assert.Empty(t, ex.Sectors)
	assert.Equal(t, WarnUnexpectedShape, ex.Warnings[0].Code)
}

func TestSchemaExampleIsAccepted(t *testing.T) {
	p, _ := newTestParser(t, Config{})

	ex, err := p.Parse(schema.Default().Example)
	require.NoError(t, err)
	assert.Len(t, ex.Holdings, 1)
	assert.Len(t, ex.Sectors, 1)
}
