package ingest

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// fileMarker matches an inline attachment reference like
// "[FILE: uploads/abc.pdf]". Only the first match in a message is honored.
var fileMarker = regexp.MustCompile(`\[FILE: (.*?)\]`)

const invoicePromptTemplate = `Please analyze this invoice and extract the following information in JSON format:
{
  "invoice_number": "",
  "date": "",
  "due_date": "",
  "total_amount": "",
  "vendor": {
    "name": "",
    "address": "",
    "tax_id": ""
  },
  "line_items": [
    {
      "description": "",
      "quantity": "",
      "unit_price": "",
      "amount": ""
    }
  ],
  "taxes": {
    "subtotal": "",
    "tax_rate": "",
    "tax_amount": "",
    "total": ""
  }
}

Here is the invoice content:
%s`

// PDFTextExtractor extracts plain text from PDF bytes.
type PDFTextExtractor func(data []byte) (string, error)

// AttachmentIngestor resolves inline file markers against a fixed upload
// root and substitutes extracted content for downstream model invocation.
type AttachmentIngestor struct {
	root    string
	extract PDFTextExtractor
}

func NewAttachmentIngestor(root string, extract PDFTextExtractor) *AttachmentIngestor {
	return &AttachmentIngestor{root: root, extract: extract}
}

// Rewrite returns the message content to forward to the model. If the content
// carries no file marker, or anything goes wrong while reading or extracting
// the file, the original content comes back unchanged: attachment problems
// must never block the ability to chat. The boolean reports whether a
// substitution happened.
func (a *AttachmentIngestor) Rewrite(content string) (string, bool) {
	match := fileMarker.FindStringSubmatch(content)
	if match == nil {
		return content, false
	}

	path, err := a.resolve(match[1])
	if err != nil {
		log.Printf("attachment ingest: resolve %q failed: %v", match[1], err)
		return content, false
	}

	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		// Only PDF extraction is implemented; other types pass through.
		return content, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("attachment ingest: read %q failed: %v", path, err)
		return content, false
	}

	text, err := a.extract(data)
	if err != nil {
		log.Printf("attachment ingest: extract %q failed: %v", path, err)
		return content, false
	}
	if strings.TrimSpace(text) == "" {
		log.Printf("attachment ingest: %q has no extractable text", path)
		return content, false
	}

	return fmt.Sprintf(invoicePromptTemplate, text), true
}

// resolve joins the marker path with the upload root and rejects anything
// that escapes it.
func (a *AttachmentIngestor) resolve(markerPath string) (string, error) {
	// Upload references are public-root relative and may carry a leading
	// slash, e.g. "/uploads/abc.pdf".
	trimmed := strings.TrimPrefix(strings.TrimSpace(markerPath), "/")
	cleaned := filepath.Clean(trimmed)
	if cleaned == "" || cleaned == "." || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("path escapes upload root")
	}

	root, err := filepath.Abs(a.root)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, cleaned)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes upload root")
	}
	return full, nil
}
