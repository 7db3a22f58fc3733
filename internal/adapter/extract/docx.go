package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"tabrag/internal/domain"
)

var (
	docxBreak = regexp.MustCompile(`</w:p>|<w:br/>|<w:tab/>`)
	docxTag   = regexp.MustCompile(`<[^>]+>`)
)

// extractDOCX reads the document body and drops the WordprocessingML markup.
func extractDOCX(file domain.SourceFile) (domain.Extraction, error) {
	r, err := docx.ReadDocxFile(file.AbsPath)
	if err != nil {
		return domain.Extraction{}, err
	}
	defer r.Close()

	return single(file, "", docxPlainText(r.Editable().GetContent())), nil
}

func docxPlainText(xml string) string {
	s := docxBreak.ReplaceAllString(xml, "\n")
	s = docxTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
