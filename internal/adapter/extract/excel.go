package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/extrame/xls"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"tabrag/internal/domain"
)

type sheetRows struct {
	name string
	rows [][]string
}

// workbookReader loads every sheet of a workbook as string rows.
type workbookReader func(path string) ([]sheetRows, error)

// workbookReaders are tried in order until one opens the file.
var workbookReaders = []struct {
	name string
	read workbookReader
}{
	{"excelize", readExcelize},
	{"xlsx", readTealeg},
	{"xls", readBIFF},
}

// extractWorkbook yields one document per data row of every sheet.
// The first non-blank row of a sheet is its header.
func extractWorkbook(file domain.SourceFile) (domain.Extraction, error) {
	var sheets []sheetRows
	var errs []error
	for _, r := range workbookReaders {
		s, err := r.read(file.AbsPath)
		if err == nil {
			sheets = s
			errs = nil
			break
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
	}
	if len(errs) > 0 {
		return domain.Extraction{}, errors.Join(errs...)
	}

	var ex domain.Extraction
	index := 0
	for _, sheet := range sheets {
		var header []string
		for _, row := range sheet.rows {
			if isBlankRow(row) {
				continue
			}
			if header == nil {
				header = row
				continue
			}
			index++
			ex.Documents = append(ex.Documents, domain.Document{
				SourcePath: file.Path,
				Index:      index,
				Sheet:      sheet.name,
				Text:       recordText(header, row),
			})
		}
	}
	return ex, nil
}

func readExcelize(path string) ([]sheetRows, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sheets []sheetRows
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		sheets = append(sheets, sheetRows{name: name, rows: rows})
	}
	return sheets, nil
}

func readTealeg(path string) ([]sheetRows, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}

	var sheets []sheetRows
	for _, sheet := range f.Sheets {
		s := sheetRows{name: sheet.Name}
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				if cell != nil {
					cells[i] = cell.String()
				}
			}
			s.rows = append(s.rows, cells)
		}
		sheets = append(sheets, s)
	}
	return sheets, nil
}

// oleSignature starts every compound document, which is how BIFF .xls
// workbooks are stored.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// biffMaxCols is the column limit of the BIFF8 format.
const biffMaxCols = 256

func readBIFF(path string) (sheets []sheetRows, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sig := make([]byte, len(oleSignature))
	if _, err := io.ReadFull(f, sig); err != nil || !bytes.Equal(sig, oleSignature) {
		return nil, errors.New("not a BIFF workbook")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// The BIFF parser indexes its record tables without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			sheets, err = nil, fmt.Errorf("corrupt BIFF workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		return nil, err
	}
	if wb == nil {
		return nil, errors.New("no workbook stream")
	}

	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		s := sheetRows{name: sheet.Name}
		for r := 0; r <= int(sheet.MaxRow); r++ {
			s.rows = append(s.rows, biffRow(sheet, r))
		}
		sheets = append(sheets, s)
	}
	return sheets, nil
}

// biffRow returns the cells of row r with trailing blanks removed, or nil
// for a row the sheet does not contain.
func biffRow(sheet *xls.WorkSheet, r int) (cells []string) {
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()

	row := sheet.Row(r)
	cells = make([]string, biffMaxCols)
	last := -1
	for c := range cells {
		cells[c] = strings.TrimSpace(row.Col(c))
		if cells[c] != "" {
			last = c
		}
	}
	return cells[:last+1]
}
