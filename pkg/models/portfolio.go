package models

import (
	"time"
)

// Entities summarizes the fund a document describes. Each list holds one
// value per extracted fund; today that is always exactly one.
type Entities struct {
	FundNames        []string `json:"fund_names"`
	Amounts          []string `json:"amounts"`
	Currencies       []string `json:"currencies"`
	FormattedAmounts []string `json:"formatted_amounts,omitempty"`
}

// Wrapped carries one holding or sector object exactly as the model returned it.
type Wrapped struct {
	Data any `json:"data"`
}

// PortfolioResult is the stored outcome of one processed upload.
type PortfolioResult struct {
	ID         string    `json:"id,omitempty"`
	SourceFile string    `json:"source_file,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	RawText  string         `json:"raw_text"`
	Entities Entities       `json:"entities"`
	Holdings []Wrapped      `json:"holdings"`
	Sectors  []Wrapped      `json:"sectors"`
	RawData  map[string]any `json:"raw_data"`
	Warnings []string       `json:"warnings,omitempty"`
}
