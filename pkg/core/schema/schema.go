// Package schema holds the versioned extraction contract. The prompt shows the
// model Example; the response parser enforces Required and MinHoldings. Both
// read the same embedded document so the two cannot drift apart.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"fund_extractor/pkg/core/utils"
)

//go:embed fund_portfolio.hjson
var fundPortfolioDef []byte

// Definition is one version of the extraction contract.
type Definition struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Required    []string `json:"required"`
	MinHoldings int      `json:"min_holdings"`
	Example     string   `json:"example"`
}

var (
	defaultDef *Definition
	defaultErr error
	once       sync.Once
)

// Default returns the embedded fund portfolio contract.
func Default() *Definition {
	once.Do(func() {
		defaultDef, defaultErr = Parse(fundPortfolioDef)
	})
	if defaultErr != nil {
		// the embedded document is part of the binary; a broken one is a build defect
		panic(defaultErr)
	}
	return defaultDef
}

// Parse decodes a contract written in hjson.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := utils.ParseHJSONToStruct(string(data), &def); err != nil {
		return nil, err
	}
	if def.Version == "" {
		return nil, fmt.Errorf("schema %q: version is required", def.ID)
	}
	if len(def.Required) == 0 {
		return nil, fmt.Errorf("schema %q: at least one required key is needed", def.ID)
	}
	if def.MinHoldings < 0 {
		return nil, fmt.Errorf("schema %q: min_holdings must not be negative", def.ID)
	}
	return &def, nil
}
