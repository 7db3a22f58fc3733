package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"tabrag/internal/domain"
)

// extractPDF yields one document per page with text.
func extractPDF(file domain.SourceFile) (ex domain.Extraction, err error) {
	// The pdf reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			ex = domain.Extraction{}
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(file.AbsPath)
	if err != nil {
		return domain.Extraction{}, err
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			ex.Skipped++
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		ex.Documents = append(ex.Documents, domain.Document{
			SourcePath: file.Path,
			Index:      i,
			Text:       content,
		})
	}
	return ex, nil
}
