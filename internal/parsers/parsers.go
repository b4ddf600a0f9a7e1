// Package parsers implements the Parsers contract (spec §4.1): a
// polymorphic capability registry dispatching by extension, the first
// parser claiming a path handling extraction. Grounded on the teacher's
// chunker.IsSupportedFile extension-allowlist-plus-null-byte-sniff pattern
// (internal/chunker/chunker.go) for the Text parser, and on
// other_examples' file-processor.go for the PDF extraction call shape.
package parsers

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/giserr"
)

// Parser is the capability contract: CanParse decides whether a parser
// claims a path, ExtractText performs the extraction.
type Parser interface {
	CanParse(path string) bool
	ExtractText(path string) (string, error)
}

// Registry dispatches to the first parser claiming a path, honoring a
// global exclusion list that suppresses both CanParse and extraction
// regardless of which parser would otherwise claim the file.
type Registry struct {
	parsers            []Parser
	excludedExtensions map[string]bool
}

// NewRegistry builds a registry gated by filters, mirroring original_source's
// ParserRegistry::new(config.FileTypeFilters): Text is omitted if
// IncludeText is false, and PDF/DOCX/XLSX are each optional. Image is
// always present — it never reads file content, so there is no filter to
// gate it on. Order matters only in that more specific parsers should
// precede broader ones; none of these overlap in extension today.
func NewRegistry(filters config.FileTypeFilters) *Registry {
	excluded := make(map[string]bool, len(filters.ExcludedExtensions))
	for _, ext := range filters.ExcludedExtensions {
		excluded[strings.ToLower(ext)] = true
	}

	var ps []Parser
	if filters.IncludeText {
		ps = append(ps, &TextParser{})
	}
	if filters.IncludePDF {
		ps = append(ps, &PDFParser{})
	}
	if filters.IncludeDocx {
		ps = append(ps, &DocxParser{})
	}
	if filters.IncludeXlsx {
		ps = append(ps, &XlsxParser{})
	}
	ps = append(ps, &ImageParser{})

	return &Registry{
		parsers:            ps,
		excludedExtensions: excluded,
	}
}

// NewDefaultRegistry builds a registry with every parser enabled and no
// exclusions, for callers (tests, tools) that don't need filter gating.
func NewDefaultRegistry() *Registry {
	return NewRegistry(config.FileTypeFilters{
		IncludeText: true,
		IncludePDF:  true,
		IncludeDocx: true,
		IncludeXlsx: true,
	})
}

// CanParse reports whether any registered parser claims path and it is not
// globally excluded.
func (r *Registry) CanParse(path string) bool {
	if r.isExcluded(path) {
		return false
	}
	for _, p := range r.parsers {
		if p.CanParse(path) {
			return true
		}
	}
	return false
}

// ExtractText dispatches to the first claiming parser. Returns a
// giserr.NotFound-kind error if no parser claims the path, so callers can
// distinguish "no parser" from "parser failed".
func (r *Registry) ExtractText(path string) (string, error) {
	if r.isExcluded(path) {
		return "", giserr.Newf(giserr.BadRequest, "excluded extension: %s", filepath.Ext(path))
	}
	for _, p := range r.parsers {
		if p.CanParse(path) {
			return p.ExtractText(path)
		}
	}
	return "", giserr.Newf(giserr.NotFound, "no parser registered for %s", path)
}

func (r *Registry) isExcluded(path string) bool {
	return r.excludedExtensions[strings.ToLower(filepath.Ext(path))]
}

// textExtensions is the fixed set of code/text extensions the Text parser
// claims, carried over from the teacher's SupportedExtensions map.
var textExtensions = map[string]bool{
	".md": true, ".txt": true, ".go": true, ".py": true,
	".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".rs": true, ".c": true, ".cpp": true, ".h": true,
	".java": true, ".html": true, ".css": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".kdl": true, ".conf": true, ".xml": true, ".sh": true,
}

// TextParser performs a plain UTF-8 read for a fixed set of code/text
// extensions, refusing files that sniff as binary despite the extension.
type TextParser struct{}

func (p *TextParser) CanParse(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return textExtensions[ext] && !isBinary(path)
}

func (p *TextParser) ExtractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", giserr.Wrap(giserr.Internal, "read text file", err)
	}
	return string(data), nil
}

// isBinary sniffs the first 512 bytes for a null byte, the teacher's
// heuristic for "this has an extension we recognize but the content isn't
// actually text" (truncated downloads, mislabeled binaries).
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}
	return bytes.IndexByte(buf[:n], 0) != -1
}
