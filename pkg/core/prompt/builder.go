package prompt

import (
	"strings"

	"fund_extractor/pkg/core/schema"
)

// FundPortfolioID is the prompt used for portfolio extraction.
const FundPortfolioID = "extraction.fund_portfolio"

// Builder composes extraction prompts. The instruction block is rendered once
// from the contract; Build only appends the document.
type Builder struct {
	instruction string
	system      string
	version     string
}

// NewBuilder renders prompt id from reg against def.
func NewBuilder(reg *Registry, id string, def *schema.Definition) (*Builder, error) {
	pt, err := reg.GetPrompt(id)
	if err != nil {
		return nil, err
	}

	ctx := NewContext().
		Set("Schema", strings.TrimSpace(def.Example)).
		Set("Required", def.Required).
		Set("Version", def.Version)
	instruction, err := RenderUserPrompt(pt, ctx)
	if err != nil {
		return nil, err
	}

	return &Builder{
		instruction: strings.TrimSpace(instruction),
		system:      pt.SystemPrompt,
		version:     def.Version,
	}, nil
}

// NewFundPortfolioBuilder uses the global registry and the embedded contract.
func NewFundPortfolioBuilder() (*Builder, error) {
	return NewBuilder(Get(), FundPortfolioID, schema.Default())
}

// Build returns the instruction block, a blank line and the document, unmodified.
func (b *Builder) Build(doc string) string {
	return b.instruction + "\n\n" + doc
}

// Instruction is the fixed part of every prompt.
func (b *Builder) Instruction() string { return b.instruction }

// SystemPrompt is sent alongside every prompt.
func (b *Builder) SystemPrompt() string { return b.system }

// Version of the contract the instruction was rendered from.
func (b *Builder) Version() string { return b.version }
