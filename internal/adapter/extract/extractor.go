// Package extract converts corpus files into text documents.
package extract

import (
	"fmt"
	"sort"
	"strings"

	"tabrag/internal/domain"
)

// Func extracts the documents of one file.
type Func func(file domain.SourceFile) (domain.Extraction, error)

// Registry dispatches extraction by file extension.
type Registry struct {
	byExt map[string]Func
}

// NewRegistry returns a registry with every built-in format registered.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Func)}
	r.Register(".csv", extractCSV(','))
	r.Register(".tsv", extractCSV('\t'))
	r.Register(".xlsx", extractWorkbook)
	r.Register(".xlsm", extractWorkbook)
	r.Register(".xls", extractWorkbook)
	r.Register(".jsonl", extractJSONL)
	r.Register(".txt", extractText)
	r.Register(".md", extractMarkdown)
	r.Register(".pdf", extractPDF)
	r.Register(".docx", extractDOCX)
	return r
}

// Register adds or replaces the extractor for an extension.
func (r *Registry) Register(ext string, fn Func) {
	r.byExt[strings.ToLower(ext)] = fn
}

// Formats lists the registered extensions.
func (r *Registry) Formats() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract runs the extractor registered for the file's extension.
// Every failure is a *domain.ExtractionError.
func (r *Registry) Extract(file domain.SourceFile) (domain.Extraction, error) {
	fn, ok := r.byExt[strings.ToLower(file.Ext)]
	if !ok {
		return domain.Extraction{}, &domain.ExtractionError{Path: file.Path, Err: fmt.Errorf("no extractor for %q", file.Ext)}
	}

	ex, err := fn(file)
	if err != nil {
		return domain.Extraction{}, &domain.ExtractionError{Path: file.Path, Err: err}
	}
	return ex, nil
}

// recordText renders header/value pairs as "column: value" in column order.
// Empty values are left out. Returns "" when the row has no values.
func recordText(header, row []string) string {
	var b strings.Builder
	for i, value := range row {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(columnName(header, i))
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}

func columnName(header []string, i int) string {
	if i < len(header) {
		if name := strings.TrimSpace(header[i]); name != "" {
			return name
		}
	}
	return fmt.Sprintf("column %d", i+1)
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
