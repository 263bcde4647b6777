package pdfextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText reads the entire content of r and extracts plain text from the
// PDF, page by page in page order, joined with newlines. Returns empty string
// and nil error if the PDF has no extractable text.
func ExtractText(r io.Reader) (string, error) {
	pages, err := ExtractPages(r)
	if err != nil {
		return "", err
	}
	return strings.Join(pages, "\n"), nil
}

// ExtractPages returns the plain text of every page in page order. Pages
// whose text cannot be decoded are included as empty strings so page indexes
// stay stable.
func ExtractPages(r io.Reader) ([]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	total := pdfReader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
