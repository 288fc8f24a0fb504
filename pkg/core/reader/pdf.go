package reader

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"fund_extractor/pkg/core/errs"
)

// readPDF concatenates the plain text of every page in order, each page
// followed by a newline. Pages without content contribute only the newline;
// a page whose content cannot be decoded fails the whole read.
func (r *Reader) readPDF(path string) (text string, err error) {
	r.logger.Info("Processing PDF file")

	// ledongthuc/pdf panics on some malformed files
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = errs.Wrap(errs.ReadError, fmt.Errorf("%v", rec), "panic while reading pdf %s", path)
		}
	}()

	f, pr, err := pdf.Open(path)
	if err != nil {
		return "", errs.Wrap(errs.ReadError, err, "failed to open pdf %s", path)
	}
	defer f.Close()

	var b strings.Builder
	pages := pr.NumPage()
	for i := 1; i <= pages; i++ {
		page := pr.Page(i)
		if !page.V.IsNull() && !page.V.Key("Contents").IsNull() {
			content, perr := page.GetPlainText(nil)
			if perr != nil {
				return "", errs.Wrap(errs.ReadError, perr, "failed to extract text from page %d of %s", i, path)
			}
			b.WriteString(content)
		}
		b.WriteString("\n")
	}

	r.logger.Info("Processed PDF pages", zap.Int("pages", pages))
	return b.String(), nil
}
