// Package parser recovers the extraction object from free-form model output.
//
// Model replies routinely wrap the JSON in prose or markdown fences, leave
// trailing commas and copy the annotated comments of the example. Parse
// applies a fixed, ordered set of text repairs and then decodes strictly.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"fund_extractor/pkg/core/errs"
	"fund_extractor/pkg/core/schema"
	"fund_extractor/pkg/core/utils"
)

// contextRadius is how many bytes either side of a syntax error are reported.
const contextRadius = 50

// Warning codes.
const (
	WarnIncomplete      = "incomplete_extraction"
	WarnSalvaged        = "salvaged_json"
	WarnUnexpectedShape = "unexpected_shape"
)

// Warning is a soft, non-fatal finding attached to a successful parse.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (w Warning) String() string { return w.Code + ": " + w.Message }

// Extraction is a parsed reply that carries every required key.
type Extraction struct {
	// Data is the full decoded object; numbers are json.Number.
	Data     map[string]any
	Holdings []any
	Sectors  []any
	Warnings []Warning
}

// Config tunes parsing.
type Config struct {
	// Salvage retries a failed decode once through json-repair.
	Salvage bool `mapstructure:"salvage"`
}

// Parser is stateless and safe for concurrent use.
type Parser struct {
	def    *schema.Definition
	cfg    Config
	logger *zap.Logger
}

// New creates a parser enforcing def.
func New(def *schema.Definition, cfg Config, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{def: def, cfg: cfg, logger: logger}
}

// Clean applies the text repairs and returns the candidate JSON document.
func Clean(response string) (string, error) {
	window, ok := utils.ExtractJSONObject(response)
	if !ok {
		return "", errs.New(errs.NoJsonFound, "No JSON content found in response")
	}
	s := utils.StripCodeFences(window)
	s = utils.RemoveTrailingCommas(s)
	s = utils.StripLineComments(s)
	// a stripped comment can leave a comma directly before a closer
	return utils.RemoveTrailingCommas(s), nil
}

// Parse extracts, repairs, decodes and validates response.
func (p *Parser) Parse(response string) (*Extraction, error) {
	p.logger.Debug("Raw model response", zap.String("response", response))

	cleaned, err := Clean(response)
	if err != nil {
		p.logger.Error("Failed to parse model response", zap.Error(err))
		return nil, err
	}

	var warnings []Warning
	data, err := decode(cleaned)
	if err != nil {
		var de *errs.Error
		if errors.As(err, &de) {
			p.logger.Error("JSON decode error",
				zap.Error(err), zap.Int64("offset", de.Offset), zap.String("problem_section", de.Context))
		}
		if !p.cfg.Salvage {
			return nil, err
		}
		repaired, rerr := utils.RepairJSON(cleaned)
		if rerr != nil {
			return nil, err
		}
		salvaged, serr := decode(repaired)
		if serr != nil {
			return nil, err
		}
		p.logger.Warn("Recovered malformed JSON with repair pass")
		data = salvaged
		warnings = append(warnings, Warning{Code: WarnSalvaged, Message: "Model output was malformed and had to be repaired."})
	}

	var missing []string
	for _, key := range p.def.Required {
		if _, ok := data[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		err := errs.MissingKeys(missing)
		p.logger.Error("Failed to parse model response", zap.Error(err))
		return nil, err
	}

	ex := &Extraction{Data: data}
	var shapeOK bool
	if ex.Holdings, shapeOK = asList(data["holdings"]); !shapeOK {
		warnings = append(warnings, Warning{Code: WarnUnexpectedShape, Message: "holdings is not an array"})
	}
	if ex.Sectors, shapeOK = asList(data["sector_allocation"]); !shapeOK {
		warnings = append(warnings, Warning{Code: WarnUnexpectedShape, Message: "sector_allocation is not an array"})
	}

	p.logger.Info("Parsed model response",
		zap.Int("holdings", len(ex.Holdings)), zap.Int("sectors", len(ex.Sectors)))

	if n := len(ex.Holdings); n < p.def.MinHoldings {
		w := Warning{
			Code:    WarnIncomplete,
			Message: fmt.Sprintf("Less than %d holdings found (%d). This might indicate incomplete extraction.", p.def.MinHoldings, n),
		}
		p.logger.Warn(w.Message, zap.String("code", w.Code), zap.Int("holdings", n))
		warnings = append(warnings, w)
	}
	ex.Warnings = warnings
	return ex, nil
}

// decode strictly decodes one JSON object spanning all of s.
func decode(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		offset := int64(len(s))
		var se *json.SyntaxError
		if errors.As(err, &se) {
			offset = se.Offset
		}
		return nil, errs.Decode(err, offset, problemSection(s, offset))
	}

	offset := dec.InputOffset()
	if rest := strings.TrimSpace(s[offset:]); rest != "" {
		err := fmt.Errorf("unexpected data after top-level object")
		return nil, errs.Decode(err, offset, problemSection(s, offset))
	}
	return data, nil
}

// problemSection returns the text within contextRadius bytes of offset,
// widened to whole runes.
func problemSection(s string, offset int64) string {
	start := int(offset) - contextRadius
	if start < 0 {
		start = 0
	}
	end := int(offset) + contextRadius
	if end > len(s) {
		end = len(s)
	}
	if start > end {
		start = end
	}
	for start > 0 && !utf8.RuneStart(s[start]) {
		start--
	}
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end++
	}
	return s[start:end]
}

// asList returns v as a slice. A missing or null value is an empty list.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []any:
		return t, true
	default:
		return nil, false
	}
}
