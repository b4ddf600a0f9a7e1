package parsers

import (
	"encoding/xml"
	"path/filepath"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/Saurav-kan/gist/internal/giserr"
)

// DocxParser extracts text from .docx files via nguyenthenguyen/docx, whose
// GetContent only hands back the raw document.xml body — so this parser
// walks that XML itself, concatenating <w:t> run text within a <w:p>
// paragraph with spaces and separating paragraphs with newlines, per
// spec §4.1.
type DocxParser struct{}

func (p *DocxParser) CanParse(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".docx"
}

func (p *DocxParser) ExtractText(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", giserr.Wrap(giserr.BadRequest, "open docx", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	text, err := extractDocxParagraphs(content)
	if err != nil {
		return "", giserr.Wrap(giserr.BadRequest, "parse docx xml", err)
	}
	return text, nil
}

// docxNode is a minimal structural view of WordprocessingML sufficient to
// walk paragraphs and runs without pulling in a full OOXML schema.
type docxNode struct {
	XMLName xml.Name
	Content []byte     `xml:",chardata"`
	Nodes   []docxNode `xml:",any"`
}

func extractDocxParagraphs(xmlContent string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlContent))
	var paragraphs []string

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "p" {
			continue
		}

		var node docxNode
		if err := dec.DecodeElement(&node, &start); err != nil {
			continue
		}

		var runs []string
		collectDocxRuns(node, &runs)
		if para := strings.TrimSpace(strings.Join(runs, " ")); para != "" {
			paragraphs = append(paragraphs, para)
		}
	}

	return strings.Join(paragraphs, "\n"), nil
}

func collectDocxRuns(n docxNode, out *[]string) {
	if n.XMLName.Local == "t" {
		if text := string(n.Content); text != "" {
			*out = append(*out, text)
		}
	}
	for _, child := range n.Nodes {
		collectDocxRuns(child, out)
	}
}
