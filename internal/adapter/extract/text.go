package extract

import (
	"os"
	"strings"

	"tabrag/internal/domain"
)

// extractText treats the whole file as one document.
func extractText(file domain.SourceFile) (domain.Extraction, error) {
	data, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return domain.Extraction{}, err
	}
	return single(file, "", string(data)), nil
}

func single(file domain.SourceFile, title, text string) domain.Extraction {
	if strings.TrimSpace(text) == "" {
		return domain.Extraction{}
	}
	return domain.Extraction{Documents: []domain.Document{{
		SourcePath: file.Path,
		Title:      title,
		Text:       text,
	}}}
}
