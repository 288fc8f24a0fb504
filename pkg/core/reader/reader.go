// Package reader turns one uploaded portfolio document into a single
// self-describing text blob for the extraction model.
//
// The model never sees the original file, so the rendering is lossless with
// respect to row-level content while still surfacing column semantics (types
// and samples) that help it map arbitrarily named columns.
package reader

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"fund_extractor/pkg/core/errs"
)

// Recognized file extensions.
const (
	ExtXLS  = ".xls"
	ExtXLSX = ".xlsx"
	ExtCSV  = ".csv"
	ExtPDF  = ".pdf"
)

var supported = map[string]bool{ExtXLS: true, ExtXLSX: true, ExtCSV: true, ExtPDF: true}

// IsSupported reports whether ext (with or without case) is a recognized extension.
func IsSupported(ext string) bool {
	return supported[strings.ToLower(ext)]
}

// Extensions lists the recognized extensions.
func Extensions() []string {
	return []string{ExtXLS, ExtXLSX, ExtCSV, ExtPDF}
}

// Reader normalizes documents. It holds no per-document state.
type Reader struct {
	logger *zap.Logger
}

// New creates a reader that logs to logger (nil disables logging).
func New(logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{logger: logger}
}

// ReadFile normalizes path using its own extension.
func (r *Reader) ReadFile(path string) (string, error) {
	return r.Read(path, filepath.Ext(path))
}

// Read normalizes the document at path according to its declared extension.
// Unsupported extensions fail before the file is touched.
func (r *Reader) Read(path, ext string) (string, error) {
	ext = strings.ToLower(ext)
	r.logger.Info("Reading file", zap.String("extension", ext), zap.String("path", path))

	if !IsSupported(ext) {
		return "", errs.New(errs.UnsupportedFormat, "Unsupported file type: %s", ext)
	}

	var (
		text string
		err  error
	)
	switch ext {
	case ExtXLS, ExtXLSX:
		text, err = r.readWorkbook(path, ext)
	case ExtCSV:
		text, err = r.readCSV(path)
	case ExtPDF:
		text, err = r.readPDF(path)
	}
	if err != nil {
		r.logger.Error("Error reading file", zap.String("path", path), zap.Error(err))
		return "", err
	}

	r.logger.Debug("Generated text content", zap.Int("length", len(text)))
	return text, nil
}
