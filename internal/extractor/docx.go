package extractor

import (
	"github.com/nguyenthenguyen/docx"
)

func extractDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	// GetContent returns the raw document XML; the tag stripper reduces it
	// to its text nodes.
	content := r.Editable().GetContent()
	return HTMLText(content), nil
}
