package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"tabrag/internal/domain"
)

// extractCSV yields one document per data row. The first record is the header.
// Rows with the wrong number of fields or broken quoting are skipped and counted.
func extractCSV(delim rune) Func {
	return func(file domain.SourceFile) (domain.Extraction, error) {
		f, err := os.Open(file.AbsPath)
		if err != nil {
			return domain.Extraction{}, err
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.Comma = delim
		r.TrimLeadingSpace = delim != '\t'

		var ex domain.Extraction
		var header []string
		row := 0

		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					if header == nil && !errors.Is(err, csv.ErrFieldCount) {
						return domain.Extraction{}, fmt.Errorf("unreadable header: %w", err)
					}
					ex.Skipped++
					continue
				}
				return domain.Extraction{}, err
			}

			if header == nil {
				if isBlankRow(record) {
					continue
				}
				header = record
				header[0] = strings.TrimPrefix(header[0], "\ufeff")
				continue
			}

			row++
			text := recordText(header, record)
			if text == "" {
				continue
			}
			ex.Documents = append(ex.Documents, domain.Document{
				SourcePath: file.Path,
				Index:      row,
				Text:       text,
			})
		}

		return ex, nil
	}
}
