package parsers

import (
	"fmt"
	"path/filepath"
	"strings"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".webp": true, ".svg": true, ".ico": true,
	".tiff": true, ".heic": true,
}

// ImageParser never reads pixels; it returns a synthetic string so image
// filenames still participate in embedding-based search without false
// matches from pixel data, per spec §4.1.
type ImageParser struct{}

func (p *ImageParser) CanParse(path string) bool {
	return IsImageExtension(path)
}

// IsImageExtension reports whether path has an image extension, exported
// so the indexer can classify images as metadata-only (spec §4.5 step 1)
// without re-deriving the extension set this parser already owns.
func IsImageExtension(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

func (p *ImageParser) ExtractText(path string) (string, error) {
	return fmt.Sprintf("image file: %s", filepath.Base(path)), nil
}
