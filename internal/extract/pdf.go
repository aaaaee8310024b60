// Local fallback tier: read the PDF's embedded text layer directly.
//
// No rasterization and no OCR happen here — image-only PDFs produce nothing,
// which the chain reports as ErrNoText. Pages are extracted independently
// and non-empty pages are joined with blank lines, mirroring the paragraph
// separation of the cloud tier.
package extract

import (
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// extractPDFText pulls embedded text from every page of the PDF at path.
func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var pages []string
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			// A single bad page should not sink the document.
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.TrimSpace(strings.Join(pages, "\n\n")), nil
}
