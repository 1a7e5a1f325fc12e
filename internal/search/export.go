package search

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"docdex/internal/storage"
)

// WriteResults exports a ranked result list to a file, picking the format
// from the extension: .txt is one tab-separated line per result, .csv has a
// score/path/pos/text header, .json is the pretty-printed result list.
func WriteResults(path string, results []storage.SearchResult) error {
	switch filepath.Ext(path) {
	case ".txt":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		for _, r := range results {
			if _, err := fmt.Fprintf(f, "%.3f\t%s\t%d\t%s\n", exportScore(r), r.DocumentPath, r.Position, r.Text); err != nil {
				return err
			}
		}
		return nil
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w := csv.NewWriter(f)
		if err := w.Write([]string{"score", "path", "pos", "text"}); err != nil {
			return err
		}
		for _, r := range results {
			rec := []string{
				strconv.FormatFloat(exportScore(r), 'f', -1, 64),
				r.DocumentPath,
				strconv.Itoa(r.Position),
				r.Text,
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	case ".json":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	default:
		return fmt.Errorf("unknown export format: %s", path)
	}
}

// Extraction is the structured payload the extract command writes.
type Extraction struct {
	Query     string           `json:"query"`
	Extracted []ExtractedChunk `json:"extracted"`
}

type ExtractedChunk struct {
	Path     string  `json:"path"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

// WriteExtraction writes the top chunks for a query as a JSON document.
func WriteExtraction(path, query string, results []storage.SearchResult) error {
	payload := Extraction{Query: query, Extracted: make([]ExtractedChunk, 0, len(results))}
	for _, r := range results {
		payload.Extracted = append(payload.Extracted, ExtractedChunk{
			Path:     r.DocumentPath,
			Position: r.Position,
			Score:    exportScore(r),
			Text:     r.Text,
		})
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// exportScore prefers the rerank score when a rerank pass assigned one.
func exportScore(r storage.SearchResult) float64 {
	if r.RerankScore != 0 {
		return r.RerankScore
	}
	return r.Score
}
