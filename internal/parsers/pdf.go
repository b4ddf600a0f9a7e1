package parsers

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Saurav-kan/gist/internal/giserr"
)

// PDFParser extracts plain text via ledongthuc/pdf, grounded on
// other_examples' file-processor.go extractTextFromPDF. Malformed
// cross-reference tables or unsupported encodings surface as a recoverable
// giserr.BadRequest rather than a process fault, per spec §4.1.
type PDFParser struct{}

func (p *PDFParser) CanParse(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}

func (p *PDFParser) ExtractText(path string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = giserr.Newf(giserr.BadRequest, "pdf extraction panicked: %v", r)
		}
	}()

	f, r, openErr := pdf.Open(path)
	if openErr != nil {
		return "", giserr.Wrap(giserr.BadRequest, "open pdf", openErr)
	}
	defer f.Close()

	reader, textErr := r.GetPlainText()
	if textErr != nil {
		return "", giserr.Wrap(giserr.BadRequest, "extract pdf text", textErr)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", giserr.Wrap(giserr.BadRequest, "read pdf text stream", err)
	}
	return buf.String(), nil
}
