package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"go.uber.org/zap"

	"fund_extractor/pkg/models"
)

// Filter holds query parameters, one value per key.
type Filter map[string]string

// FilterFromValues keeps the first value of every parameter.
func FilterFromValues(v url.Values) Filter {
	f := make(Filter, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			f[k] = vals[0]
		}
	}
	return f
}

// Keys returns the parameter names in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FilterPaths maps the friendly parameter names to jsonpath expressions over
// a stored result. Parameters starting with "$" are used as expressions directly.
var FilterPaths = map[string]string{
	"fund_name":   "$.entities.fund_names[*]",
	"currency":    "$.entities.currencies[*]",
	"isin":        "$.holdings[*].data.isin",
	"stock_name":  "$.holdings[*].data.stock_name",
	"sector":      "$.sectors[*].data.name",
	"fund_id":     "$.raw_data.fund_info.id",
	"fund_type":   "$.raw_data.fund_info.type",
	"source_file": "$.source_file",
}

// Matcher applies a Filter to stored results.
type Matcher struct {
	enabled bool
	logger  *zap.Logger
}

// NewMatcher returns a matcher; a disabled one passes every result through.
func NewMatcher(enabled bool, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{enabled: enabled, logger: logger}
}

func (m *Matcher) apply(results []*models.PortfolioResult, filter Filter) ([]*models.PortfolioResult, error) {
	if len(filter) == 0 {
		return results, nil
	}
	if !m.enabled {
		m.logger.Info("Query parameters ignored", zap.Strings("params", filter.Keys()))
		return results, nil
	}

	out := make([]*models.PortfolioResult, 0, len(results))
	for _, r := range results {
		ok, err := m.Match(r, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	m.logger.Info("Filtered results", zap.Strings("params", filter.Keys()),
		zap.Int("matched", len(out)), zap.Int("total", len(results)))
	return out, nil
}

// Match reports whether r satisfies every parameter. Values compare as text,
// case-insensitively; a path that yields a list matches when any element does.
func (m *Matcher) Match(r *models.PortfolioResult, filter Filter) (bool, error) {
	doc, err := toDocument(r)
	if err != nil {
		return false, err
	}
	for _, key := range filter.Keys() {
		path, ok := FilterPaths[key]
		if !ok {
			if !strings.HasPrefix(key, "$") {
				m.logger.Debug("Unknown query parameter", zap.String("param", key))
				continue
			}
			path = key
		}
		got, err := jsonpath.Get(path, doc)
		if err != nil {
			// a path that does not resolve simply does not match
			return false, nil
		}
		if !valueMatches(got, filter[key]) {
			return false, nil
		}
	}
	return true, nil
}

func valueMatches(v any, want string) bool {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if valueMatches(item, want) {
				return true
			}
		}
		return false
	case nil:
		return false
	default:
		return strings.EqualFold(fmt.Sprint(t), want)
	}
}

// toDocument converts r into the generic tree jsonpath walks.
func toDocument(r *models.PortfolioResult) (any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode result %s: %w", r.ID, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", r.ID, err)
	}
	return doc, nil
}
