// Package extractor converts supported document formats into normalized
// UTF-8 text: path in, whitespace-collapsed plain text out. Extraction is
// deterministic for a fixed input file; the ingestion hash diff depends on
// that.
package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// supportedExts are the file extensions the folder source will pick up.
var supportedExts = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
	".xlsx":     true,
	".ods":      true,
	".csv":      true,
}

// Supported reports whether the file at path has an extractable format.
func Supported(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".csv.gz") {
		return true
	}
	return supportedExts[filepath.Ext(lower)]
}

// IsCSV reports whether path is a CSV file (plain or gzipped).
func IsCSV(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".csv.gz")
}

// Extract reads the file at path and returns its normalized text.
func Extract(path string) (string, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".csv.gz") {
		return ExtractCSV(path)
	}
	switch filepath.Ext(lower) {
	case ".txt", ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return MarkdownText(string(data)), nil
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return HTMLText(string(data)), nil
	case ".pdf":
		return extractPDF(path)
	case ".docx":
		return extractDOCX(path)
	case ".xlsx":
		return extractXLSX(path)
	case ".ods":
		return extractODS(path)
	case ".csv":
		return ExtractCSV(path)
	default:
		return "", fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
}

// Normalize applies the named normalization to raw text from an external row
// source: markdown and plain text pass through the markdown stripper, html
// through the tag stripper, anything else just collapses whitespace.
func Normalize(format, text string) string {
	switch strings.ToLower(format) {
	case "markdown", "md", "text", "plain", "":
		return MarkdownText(text)
	case "html", "htm":
		return HTMLText(text)
	default:
		return collapseWhitespace(text)
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
