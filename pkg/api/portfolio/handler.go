// Package portfolio serves the upload, query and landing page endpoints.
package portfolio

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fund_extractor/pkg/core/errs"
	"fund_extractor/pkg/core/reader"
	"fund_extractor/pkg/core/store"
	"fund_extractor/pkg/core/utils"
	"fund_extractor/pkg/models"
)

//go:embed resources/index.md
var landingMarkdown string

// FileField is the multipart field carrying the upload.
const FileField = "file"

// Processor is the slice of pipeline.Processor the upload endpoint needs.
type Processor interface {
	ProcessAndStore(ctx context.Context, path string) (*models.PortfolioResult, error)
}

// QueryResponse is the body of GET /query.
type QueryResponse struct {
	Results []*models.PortfolioResult `json:"results"`
}

type Handler struct {
	processor Processor
	store     store.Store
	uploadDir string
	maxBytes  int64
	landing   string
	logger    *zap.Logger
}

// NewHandler renders the landing page once; a rendering failure is returned.
func NewHandler(p Processor, s store.Store, uploadDir string, maxBytes int64, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	page, err := utils.RenderMarkdown(landingMarkdown)
	if err != nil {
		return nil, err
	}
	return &Handler{
		processor: p,
		store:     s,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		landing:   "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Fund Portfolio Extractor</title></head><body>\n" + page + "</body></html>\n",
		logger:    logger,
	}, nil
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.HandleLanding)
	e.POST("/upload", h.HandleUpload)
	e.GET("/query", h.HandleQuery)
}

func (h *Handler) HandleLanding(c echo.Context) error {
	return c.HTML(http.StatusOK, h.landing)
}

// HandleUpload saves the file under the upload directory by its base name,
// replacing any earlier upload of the same name, and runs the pipeline on it.
func (h *Handler) HandleUpload(c echo.Context) error {
	if h.maxBytes > 0 {
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.maxBytes)
	}

	header, err := c.FormFile(FileField)
	if err != nil {
		return uploadError(err)
	}
	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		return uploadError(fmt.Errorf("invalid file name %q", header.Filename))
	}
	ext := filepath.Ext(name)
	if !reader.IsSupported(ext) {
		return uploadError(errs.New(errs.UnsupportedFormat, "Unsupported file type: %s", ext))
	}

	h.logger.Info("Received upload", zap.String("file", name), zap.Int64("size", header.Size))

	path, err := h.save(header, name)
	if err != nil {
		return uploadError(err)
	}

	res, err := h.processor.ProcessAndStore(c.Request().Context(), path)
	if err != nil {
		return uploadError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) save(header *multipart.FileHeader, name string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}
	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := filepath.Join(h.uploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("saving upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("saving upload: %w", err)
	}
	return path, dst.Close()
}

// HandleQuery passes every query parameter to the store as a filter.
func (h *Handler) HandleQuery(c echo.Context) error {
	filter := store.FilterFromValues(c.QueryParams())
	results, err := h.store.List(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError,
			"Error processing query: "+message(err)).SetInternal(err)
	}
	if results == nil {
		results = []*models.PortfolioResult{}
	}
	return c.JSON(http.StatusOK, QueryResponse{Results: results})
}

func uploadError(err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError,
		"Error processing file: "+message(err)).SetInternal(err)
}

func message(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}
